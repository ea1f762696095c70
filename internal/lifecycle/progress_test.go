package lifecycle

import (
	"testing"
	"time"

	"bonus-tracker-api/internal/models"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func decPtr(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d := dec(t, s)
	return &d
}

func pendingBonus(deadline time.Time) models.BonusRecord {
	return models.BonusRecord{
		ID:              "b1",
		Category:        models.CategoryBank,
		InstitutionName: "Chase",
		Status:          models.StatusPending,
		Deadline:        &deadline,
	}
}

func TestDaysUntilDeadline_SignedWholeDays(t *testing.T) {
	now := time.Date(2025, 10, 21, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		deadline time.Time
		want     int
	}{
		{"five days out", time.Date(2025, 10, 26, 23, 0, 0, 0, time.UTC), 5},
		{"later today", time.Date(2025, 10, 21, 23, 59, 0, 0, time.UTC), 0},
		{"earlier today", time.Date(2025, 10, 21, 1, 0, 0, 0, time.UTC), 0},
		{"five days overdue", time.Date(2025, 10, 16, 9, 0, 0, 0, time.UTC), -5},
		{"yesterday evening", time.Date(2025, 10, 20, 23, 59, 0, 0, time.UTC), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, ok := DaysUntilDeadline(pendingBonus(tt.deadline), now)
			if !ok {
				t.Fatal("expected days to be defined")
			}
			if days != tt.want {
				t.Errorf("expected %d days, got %d", tt.want, days)
			}
		})
	}
}

func TestDaysUntilDeadline_UndefinedCases(t *testing.T) {
	now := time.Date(2025, 10, 21, 10, 0, 0, 0, time.UTC)

	noDeadline := models.BonusRecord{Status: models.StatusPending}
	if _, ok := DaysUntilDeadline(noDeadline, now); ok {
		t.Error("expected no day count without a deadline")
	}

	// Deadline warnings only apply to pending bonuses.
	earned := pendingBonus(now.AddDate(0, 0, 3))
	earned.Status = models.StatusEarned
	if _, ok := DaysUntilDeadline(earned, now); ok {
		t.Error("expected no day count for an earned bonus")
	}
}

func TestDeadlineUrgency_Boundaries(t *testing.T) {
	now := time.Date(2025, 10, 21, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		days int
		want Urgency
	}{
		{"one day overdue", -1, UrgencyExpired},
		{"due today", 0, UrgencyUrgent},
		{"seven days out", 7, UrgencyUrgent},
		{"eight days out", 8, UrgencyWarning},
		{"thirty days out", 30, UrgencyWarning},
		{"thirty-one days out", 31, UrgencyNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := pendingBonus(now.AddDate(0, 0, tt.days))
			if got := DeadlineUrgency(rec, now); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDeadlineUrgency_NoneWhenDaysUndefined(t *testing.T) {
	now := time.Date(2025, 10, 21, 10, 0, 0, 0, time.UTC)

	rec := models.BonusRecord{Status: models.StatusPending}
	if got := DeadlineUrgency(rec, now); got != UrgencyNone {
		t.Errorf("expected %q without a deadline, got %q", UrgencyNone, got)
	}

	received := pendingBonus(now.AddDate(0, 0, -10))
	received.Status = models.StatusReceived
	if got := DeadlineUrgency(received, now); got != UrgencyNone {
		t.Errorf("expected %q for a received bonus, got %q", UrgencyNone, got)
	}
}

func TestSpendProgress_CapsAtHundred(t *testing.T) {
	rec := models.BonusRecord{
		Category:         models.CategoryCreditCard,
		SpendRequirement: decPtr(t, "1000"),
		CurrentSpend:     decPtr(t, "1500"),
	}

	p := SpendProgress(rec)
	if p == nil {
		t.Fatal("expected progress for a credit card with a spend requirement")
	}
	if p.Percentage != 100 {
		t.Errorf("expected percentage capped at 100, got %v", p.Percentage)
	}
	if !p.Current.Equal(dec(t, "1500")) {
		t.Errorf("expected raw current spend preserved, got %s", p.Current)
	}
}

func TestSpendProgress_PartialSpend(t *testing.T) {
	rec := models.BonusRecord{
		Category:         models.CategoryCreditCard,
		SpendRequirement: decPtr(t, "4000"),
		CurrentSpend:     decPtr(t, "1000"),
	}

	p := SpendProgress(rec)
	if p == nil {
		t.Fatal("expected progress")
	}
	if p.Percentage != 25 {
		t.Errorf("expected 25%%, got %v", p.Percentage)
	}
}

func TestSpendProgress_CurrentDefaultsToZero(t *testing.T) {
	rec := models.BonusRecord{
		Category:         models.CategoryCreditCard,
		SpendRequirement: decPtr(t, "3000"),
	}

	p := SpendProgress(rec)
	if p == nil {
		t.Fatal("expected progress")
	}
	if !p.Current.IsZero() || p.Percentage != 0 {
		t.Errorf("expected zero progress, got current=%s percentage=%v", p.Current, p.Percentage)
	}
}

func TestSpendProgress_NilCases(t *testing.T) {
	bank := models.BonusRecord{
		Category:         models.CategoryBank,
		SpendRequirement: decPtr(t, "1000"),
	}
	if SpendProgress(bank) != nil {
		t.Error("expected nil progress for a bank bonus")
	}

	noRequirement := models.BonusRecord{Category: models.CategoryCreditCard}
	if SpendProgress(noRequirement) != nil {
		t.Error("expected nil progress without a spend requirement")
	}

	zeroRequirement := models.BonusRecord{
		Category:         models.CategoryCreditCard,
		SpendRequirement: decPtr(t, "0"),
	}
	if SpendProgress(zeroRequirement) != nil {
		t.Error("expected nil progress for a zero spend requirement")
	}
}
