// Package lifecycle implements the bonus lifecycle engine: deadline
// projections, the status transition rule with its auto-expiration sweep, and
// dashboard aggregations. Everything here is a pure function of a record
// snapshot plus an explicit current time; no I/O, no ambient clock.
package lifecycle

import (
	"time"

	"bonus-tracker-api/internal/models"

	"github.com/shopspring/decimal"
)

// Urgency classifies how close a pending bonus is to its deadline.
type Urgency string

const (
	UrgencyNone    Urgency = "none"
	UrgencyWarning Urgency = "warning" // more than 7, up to 30 days out
	UrgencyUrgent  Urgency = "urgent"  // 7 days or fewer remaining
	UrgencyExpired Urgency = "expired" // deadline has passed
)

// DaysUntilDeadline returns the signed whole-day count from now to the
// record's deadline: calendar-date difference, truncated, negative when
// overdue. ok is false when the record has no deadline or is not pending,
// since deadline warnings only apply to pending bonuses.
func DaysUntilDeadline(rec models.BonusRecord, now time.Time) (days int, ok bool) {
	if rec.Deadline == nil || rec.Status != models.StatusPending {
		return 0, false
	}
	return daysBetween(now, *rec.Deadline), true
}

// daysBetween is the calendar-date difference b.date - a.date in whole days.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// DeadlineUrgency classifies the record's deadline pressure at the given
// instant. Records with no applicable deadline report UrgencyNone.
func DeadlineUrgency(rec models.BonusRecord, now time.Time) Urgency {
	days, ok := DaysUntilDeadline(rec, now)
	if !ok {
		return UrgencyNone
	}
	switch {
	case days < 0:
		return UrgencyExpired
	case days <= 7:
		return UrgencyUrgent
	case days <= 30:
		return UrgencyWarning
	default:
		return UrgencyNone
	}
}

// Progress reports progress toward a credit-card minimum spend requirement.
type Progress struct {
	Current    decimal.Decimal
	Required   decimal.Decimal
	Percentage float64
}

// SpendProgress computes minimum-spend progress for a credit-card bonus. It
// returns nil unless the record is a credit card with a positive spend
// requirement. The raw stored spend may exceed the requirement; the reported
// percentage caps at 100.
func SpendProgress(rec models.BonusRecord) *Progress {
	if rec.Category != models.CategoryCreditCard {
		return nil
	}
	if rec.SpendRequirement == nil || !rec.SpendRequirement.IsPositive() {
		return nil
	}
	current := decimal.Zero
	if rec.CurrentSpend != nil {
		current = *rec.CurrentSpend
	}
	pct, _ := current.Div(*rec.SpendRequirement).Mul(decimal.NewFromInt(100)).Float64()
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return &Progress{
		Current:    current,
		Required:   *rec.SpendRequirement,
		Percentage: pct,
	}
}
