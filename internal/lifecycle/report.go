package lifecycle

import (
	"time"

	"bonus-tracker-api/internal/models"

	"github.com/shopspring/decimal"
)

// CountsByStatus tallies records per status, zero-filled for all four
// statuses so the dashboard always renders every badge.
func CountsByStatus(records []models.BonusRecord) map[models.Status]int {
	counts := make(map[models.Status]int, len(models.Statuses))
	for _, s := range models.Statuses {
		counts[s] = 0
	}
	for _, rec := range records {
		counts[rec.Status]++
	}
	return counts
}

// TotalReceivedValue sums the cash-equivalent value of every received bonus:
// bonus_value_amount when declared, else the nominal amount. Summing one
// figure per record is what keeps points bonuses from being double counted
// against their cash valuation.
func TotalReceivedValue(records []models.BonusRecord) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range records {
		if rec.Status != models.StatusReceived {
			continue
		}
		total = total.Add(rec.CashValue())
	}
	return total
}

// UrgentAlerts returns the pending records that need attention now: deadline
// within 7 days or already past.
func UrgentAlerts(records []models.BonusRecord, now time.Time) []models.BonusRecord {
	var alerts []models.BonusRecord
	for _, rec := range records {
		if rec.Status != models.StatusPending {
			continue
		}
		switch DeadlineUrgency(rec, now) {
		case UrgencyUrgent, UrgencyExpired:
			alerts = append(alerts, rec)
		}
	}
	return alerts
}

// TaxReport is the per-year tax split over received bonuses.
type TaxReport struct {
	TaxableTotal     decimal.Decimal
	NonTaxableTotal  decimal.Decimal
	Form1099Pending  int
	Form1099Received int
}

// TaxSummary summarizes the bonuses received in the given tax year. Taxable
// totals use taxable_amount with the nominal amount as fallback; non-taxable
// bonuses are summed at cash value. 1099 tracking only exists for taxable
// bank bonuses.
func TaxSummary(records []models.BonusRecord, taxYear int) TaxReport {
	report := TaxReport{
		TaxableTotal:    decimal.Zero,
		NonTaxableTotal: decimal.Zero,
	}
	for _, rec := range records {
		if rec.Status != models.StatusReceived || rec.ReceivedDate == nil {
			continue
		}
		if rec.ReceivedDate.Year() != taxYear {
			continue
		}
		if rec.IsTaxable {
			report.TaxableTotal = report.TaxableTotal.Add(rec.TaxableValue())
			if rec.Category == models.CategoryBank {
				if rec.Form1099Received {
					report.Form1099Received++
				} else {
					report.Form1099Pending++
				}
			}
		} else {
			report.NonTaxableTotal = report.NonTaxableTotal.Add(rec.CashValue())
		}
	}
	return report
}
