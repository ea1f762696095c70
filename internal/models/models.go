package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Category discriminates the two bonus variants.
type Category string

const (
	CategoryBank       Category = "bank"
	CategoryCreditCard Category = "creditCard"
)

// Status is the lifecycle state of a bonus.
type Status string

const (
	StatusPending  Status = "pending"
	StatusEarned   Status = "earned"
	StatusReceived Status = "received"
	StatusExpired  Status = "expired"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusEarned, StatusReceived, StatusExpired}

// ParseStatus converts a stored status string back to a Status. An unknown
// value indicates corrupted data upstream of the engine.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusEarned, StatusReceived, StatusExpired:
		return Status(s), nil
	}
	return "", fmt.Errorf("unrecognized bonus status %q", s)
}

// ParseCategory converts a stored category string back to a Category.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryBank, CategoryCreditCard:
		return Category(s), nil
	}
	return "", fmt.Errorf("unrecognized bonus category %q", s)
}

// BonusRecord is one tracked signup bonus. The bank and credit-card variants
// share this shape; card_name, bonus_value_amount, spend_requirement and
// current_spend only apply to credit cards, form_1099_received only to banks.
type BonusRecord struct {
	ID               string           `json:"id"`      // uuid
	UserID           string           `json:"user_id"` // uuid
	Category         Category         `json:"category"`
	InstitutionName  string           `json:"institution_name"`
	CardName         string           `json:"card_name,omitempty"`
	BonusAmount      decimal.Decimal  `json:"bonus_amount"`                 // nominal (points/miles/cash)
	BonusValueAmount *decimal.Decimal `json:"bonus_value_amount,omitempty"` // cash-equivalent value
	Status           Status           `json:"status"`
	RequirementsMet  bool             `json:"requirements_met"`
	Deadline         *time.Time       `json:"deadline,omitempty"` // must-act-by date
	SpendRequirement *decimal.Decimal `json:"spend_requirement,omitempty"`
	CurrentSpend     *decimal.Decimal `json:"current_spend,omitempty"`
	ReceivedDate     *time.Time       `json:"received_date,omitempty"`
	IsTaxable        bool             `json:"is_taxable"`
	TaxableAmount    *decimal.Decimal `json:"taxable_amount,omitempty"`
	Form1099Received bool             `json:"form_1099_received"`
	CreatedAt        time.Time        `json:"created_at"`
}

// CashValue returns the cash-equivalent value of the bonus: the declared
// bonus_value_amount when present, falling back to the nominal amount. This is
// the single figure aggregations sum, never both.
func (b BonusRecord) CashValue() decimal.Decimal {
	if b.BonusValueAmount != nil {
		return *b.BonusValueAmount
	}
	return b.BonusAmount
}

// TaxableValue returns taxable_amount when set, else the nominal amount.
func (b BonusRecord) TaxableValue() decimal.Decimal {
	if b.TaxableAmount != nil {
		return *b.TaxableAmount
	}
	return b.BonusAmount
}

// TaxYear is the year the bonus counts toward: the received year when the
// bonus has been received, otherwise the year it was created.
func (b BonusRecord) TaxYear() int {
	if b.ReceivedDate != nil {
		return b.ReceivedDate.Year()
	}
	return b.CreatedAt.Year()
}

// CreateBonusRequest is the request body for creating a bonus. The server
// assigns the id; the record always starts pending with requirements not yet
// met.
type CreateBonusRequest struct {
	UserID           string           `json:"user_id"`
	Category         Category         `json:"category"`
	InstitutionName  string           `json:"institution_name"`
	CardName         string           `json:"card_name,omitempty"`
	BonusAmount      decimal.Decimal  `json:"bonus_amount"`
	BonusValueAmount *decimal.Decimal `json:"bonus_value_amount,omitempty"`
	Deadline         *time.Time       `json:"deadline,omitempty"`
	SpendRequirement *decimal.Decimal `json:"spend_requirement,omitempty"`
	CurrentSpend     *decimal.Decimal `json:"current_spend,omitempty"`
	IsTaxable        *bool            `json:"is_taxable,omitempty"` // defaults to true
	TaxableAmount    *decimal.Decimal `json:"taxable_amount,omitempty"`
}

// UpdateBonusRequest is the request body for PATCH /bonuses/{id}. All fields
// are optional; absent fields are left unchanged. Setting status here is the
// manual override path and bypasses the transition table (audited).
type UpdateBonusRequest struct {
	InstitutionName  *string          `json:"institution_name,omitempty"`
	CardName         *string          `json:"card_name,omitempty"`
	BonusAmount      *decimal.Decimal `json:"bonus_amount,omitempty"`
	BonusValueAmount *decimal.Decimal `json:"bonus_value_amount,omitempty"`
	Deadline         *time.Time       `json:"deadline,omitempty"`
	SpendRequirement *decimal.Decimal `json:"spend_requirement,omitempty"`
	CurrentSpend     *decimal.Decimal `json:"current_spend,omitempty"`
	IsTaxable        *bool            `json:"is_taxable,omitempty"`
	TaxableAmount    *decimal.Decimal `json:"taxable_amount,omitempty"`
	Form1099Received *bool            `json:"form_1099_received,omitempty"`
	Status           *Status          `json:"status,omitempty"`
}

// TransitionRequest is the request body for POST /bonuses/{id}/transition.
type TransitionRequest struct {
	Target Status `json:"target"`
}

// SpendProgressView reports progress toward a credit-card minimum spend.
type SpendProgressView struct {
	Current    decimal.Decimal `json:"current"`
	Required   decimal.Decimal `json:"required"`
	Percentage float64         `json:"percentage"` // capped at 100
}

// BonusView is a bonus record plus its time-dependent projections.
type BonusView struct {
	BonusRecord
	DaysUntilDeadline *int               `json:"days_until_deadline,omitempty"`
	Urgency           string             `json:"urgency"`
	SpendProgress     *SpendProgressView `json:"spend_progress,omitempty"`
}

// ListBonusesResponse is the response for listing a user's bonuses.
type ListBonusesResponse struct {
	UserID  string      `json:"user_id"`
	Bonuses []BonusView `json:"bonuses"`
	Expired int         `json:"expired"` // records auto-expired by this load's sweep
}

// DashboardResponse rolls a user's bonuses up into dashboard statistics.
type DashboardResponse struct {
	UserID             string          `json:"user_id"`
	CountsByStatus     map[Status]int  `json:"counts_by_status"`
	TotalReceivedValue decimal.Decimal `json:"total_received_value"`
	UrgentAlerts       []BonusView     `json:"urgent_alerts"`
}

// TaxSummaryResponse summarizes received bonuses for one tax year.
type TaxSummaryResponse struct {
	UserID           string          `json:"user_id"`
	TaxYear          int             `json:"tax_year"`
	TaxableTotal     decimal.Decimal `json:"taxable_total"`
	NonTaxableTotal  decimal.Decimal `json:"non_taxable_total"`
	Form1099Pending  int             `json:"form_1099_pending"`
	Form1099Received int             `json:"form_1099_received"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
