package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"bonus-tracker-api/internal/models"

	"github.com/shopspring/decimal"
)

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// maxAmount caps any monetary field at 100 million units.
var maxAmount = decimal.NewFromInt(100_000_000)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateCreateBonus checks a bonus creation request.
func ValidateCreateBonus(req models.CreateBonusRequest) error {
	if err := ValidateUUID(req.UserID, "user_id"); err != nil {
		return err
	}

	if _, err := models.ParseCategory(string(req.Category)); err != nil {
		return &ValidationError{
			Field:   "category",
			Message: "must be 'bank' or 'creditCard'",
		}
	}

	if strings.TrimSpace(req.InstitutionName) == "" {
		return &ValidationError{
			Field:   "institution_name",
			Message: "is required",
		}
	}

	if err := validateAmount(req.BonusAmount, "bonus_amount"); err != nil {
		return err
	}
	if err := validateOptionalAmount(req.BonusValueAmount, "bonus_value_amount"); err != nil {
		return err
	}
	if err := validateOptionalAmount(req.TaxableAmount, "taxable_amount"); err != nil {
		return err
	}
	if err := validateOptionalAmount(req.SpendRequirement, "spend_requirement"); err != nil {
		return err
	}
	if err := validateOptionalAmount(req.CurrentSpend, "current_spend"); err != nil {
		return err
	}

	if req.Category == models.CategoryBank {
		if req.CardName != "" {
			return &ValidationError{
				Field:   "card_name",
				Message: "only applies to credit-card bonuses",
			}
		}
		if req.SpendRequirement != nil || req.CurrentSpend != nil {
			return &ValidationError{
				Field:   "spend_requirement",
				Message: "only applies to credit-card bonuses",
			}
		}
		if req.BonusValueAmount != nil {
			return &ValidationError{
				Field:   "bonus_value_amount",
				Message: "only applies to credit-card bonuses",
			}
		}
	}

	if req.Deadline != nil {
		if err := validateDeadline(*req.Deadline); err != nil {
			return err
		}
	}

	return nil
}

// ValidateUpdateBonus checks a partial bonus update.
func ValidateUpdateBonus(req models.UpdateBonusRequest) error {
	if req.InstitutionName != nil && strings.TrimSpace(*req.InstitutionName) == "" {
		return &ValidationError{
			Field:   "institution_name",
			Message: "cannot be empty",
		}
	}

	if err := validateOptionalAmount(req.BonusAmount, "bonus_amount"); err != nil {
		return err
	}
	if err := validateOptionalAmount(req.BonusValueAmount, "bonus_value_amount"); err != nil {
		return err
	}
	if err := validateOptionalAmount(req.TaxableAmount, "taxable_amount"); err != nil {
		return err
	}
	if err := validateOptionalAmount(req.SpendRequirement, "spend_requirement"); err != nil {
		return err
	}
	if err := validateOptionalAmount(req.CurrentSpend, "current_spend"); err != nil {
		return err
	}

	if req.Deadline != nil {
		if err := validateDeadline(*req.Deadline); err != nil {
			return err
		}
	}

	if req.Status != nil {
		if _, err := models.ParseStatus(string(*req.Status)); err != nil {
			return &ValidationError{
				Field:   "status",
				Message: "must be one of pending, earned, received, expired",
			}
		}
	}

	return nil
}

// ValidateTransitionTarget checks the target status of an explicit transition.
func ValidateTransitionTarget(target models.Status) error {
	if target == "" {
		return &ValidationError{
			Field:   "target",
			Message: "is required",
		}
	}
	if _, err := models.ParseStatus(string(target)); err != nil {
		return &ValidationError{
			Field:   "target",
			Message: "must be one of pending, earned, received, expired",
		}
	}
	return nil
}

func validateAmount(amount decimal.Decimal, fieldName string) error {
	if amount.IsNegative() {
		return &ValidationError{
			Field:   fieldName,
			Message: "must be non-negative",
		}
	}
	if amount.GreaterThan(maxAmount) {
		return &ValidationError{
			Field:   fieldName,
			Message: "exceeds maximum allowed amount",
		}
	}
	return nil
}

func validateOptionalAmount(amount *decimal.Decimal, fieldName string) error {
	if amount == nil {
		return nil
	}
	return validateAmount(*amount, fieldName)
}

func validateDeadline(deadline time.Time) error {
	if deadline.IsZero() {
		return &ValidationError{
			Field:   "deadline",
			Message: "must be a valid timestamp",
		}
	}

	maxFuture := time.Now().AddDate(5, 0, 0)
	if deadline.After(maxFuture) {
		return &ValidationError{
			Field:   "deadline",
			Message: "cannot be more than 5 years in the future",
		}
	}

	maxPast := time.Now().AddDate(-10, 0, 0)
	if deadline.Before(maxPast) {
		return &ValidationError{
			Field:   "deadline",
			Message: "cannot be more than 10 years in the past",
		}
	}

	return nil
}

// ValidateTaxYear checks a tax-year query parameter.
func ValidateTaxYear(year int) error {
	if year < 2000 || year > 2100 {
		return &ValidationError{
			Field:   "year",
			Message: "must be between 2000 and 2100",
		}
	}
	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	id = SanitizeString(id)

	if !uuidRegex.MatchString(strings.ToLower(id)) {
		return &ValidationError{
			Field:   fieldName,
			Message: "must be a valid UUID v4",
		}
	}

	return nil
}

func ValidateTimeString(timeStr string) (time.Time, error) {
	if timeStr == "" {
		return time.Time{}, &ValidationError{
			Field:   "time",
			Message: "is required",
		}
	}

	t, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:   "time",
			Message: "must be a valid RFC3339 timestamp",
		}
	}

	return t, nil
}
