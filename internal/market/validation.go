package market

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"carbon-scribe/credit-market/internal/ledger"
)

const (
	DefaultMinVintageYear = 1990
	maxLabelLength        = 64
	maxDescriptionLength  = 1024
)

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 .,'&()/_+-]*$`)

// Validator checks caller-supplied input before it reaches the ledger
type Validator struct {
	MinVintageYear int
	// MaxVintageYear of zero means the current year
	MaxVintageYear int
	Now            func() time.Time
}

// NewValidator creates a validator with the given vintage bounds
func NewValidator(minYear, maxYear int) *Validator {
	if minYear <= 0 {
		minYear = DefaultMinVintageYear
	}
	return &Validator{
		MinVintageYear: minYear,
		MaxVintageYear: maxYear,
		Now:            time.Now,
	}
}

func (v *Validator) maxYear() int {
	if v.MaxVintageYear > 0 {
		return v.MaxVintageYear
	}
	return v.Now().UTC().Year()
}

func (v *Validator) ValidateMint(req MintRequest) error {
	if err := v.ValidateAmount("amount", req.Amount); err != nil {
		return err
	}
	if req.VintageYear < v.MinVintageYear || req.VintageYear > v.maxYear() {
		return ledger.NewValidationError("vintage_year",
			fmt.Sprintf("must be between %d and %d", v.MinVintageYear, v.maxYear()),
			ledger.ErrInvalidVintageYear)
	}
	if err := validateLabel("verification_standard", req.VerificationStandard, ledger.ErrInvalidVerificationStandard); err != nil {
		return err
	}
	return validateLabel("project_type", req.ProjectType, ledger.ErrInvalidProjectType)
}

func (v *Validator) ValidateAmount(field string, amount int64) error {
	if amount <= 0 {
		return ledger.NewValidationError(field, "must be greater than zero", ledger.ErrInvalidAmount)
	}
	return nil
}

func (v *Validator) ValidatePrice(price int64) error {
	if price <= 0 {
		return ledger.NewValidationError("price_per_credit", "must be greater than zero", ledger.ErrInvalidPrice)
	}
	return nil
}

func (v *Validator) ValidateDescription(description string) error {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return ledger.NewValidationError("description", "is required", ledger.ErrInvalidMetadata)
	}
	if !utf8.ValidString(trimmed) {
		return ledger.NewValidationError("description", "must be valid UTF-8", ledger.ErrInvalidMetadata)
	}
	if utf8.RuneCountInString(trimmed) > maxDescriptionLength {
		return ledger.NewValidationError("description",
			fmt.Sprintf("must be at most %d characters", maxDescriptionLength), ledger.ErrInvalidMetadata)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return ledger.NewValidationError("description", "contains control characters", ledger.ErrInvalidMetadata)
		}
	}
	return nil
}

func validateLabel(field, value string, sentinel error) error {
	if value == "" {
		return ledger.NewValidationError(field, "is required", sentinel)
	}
	if len(value) > maxLabelLength {
		return ledger.NewValidationError(field,
			fmt.Sprintf("must be at most %d characters", maxLabelLength), sentinel)
	}
	if !labelPattern.MatchString(value) {
		return ledger.NewValidationError(field, "contains unsupported characters", sentinel)
	}
	return nil
}
