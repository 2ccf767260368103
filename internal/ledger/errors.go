package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by ledger and market operations.
var (
	// Authorization
	ErrOwnerOnly         = errors.New("ledger: caller is not the contract owner")
	ErrUnauthorized      = errors.New("ledger: caller is not the listing seller")
	ErrRecipientRejected = errors.New("ledger: recipient rejected by policy")
	ErrInvalidIdentity   = errors.New("ledger: identity is required")

	// Balances and payments
	ErrInsufficientBalance = errors.New("ledger: insufficient credit balance")
	ErrInsufficientFunds   = errors.New("ledger: insufficient payment funds")
	ErrAmountOverflow      = errors.New("ledger: amount overflows")

	// Input validation
	ErrInvalidAmount               = errors.New("ledger: amount must be positive")
	ErrInvalidPrice                = errors.New("ledger: price must be positive")
	ErrInvalidMetadata             = errors.New("ledger: invalid metadata")
	ErrInvalidVintageYear          = errors.New("ledger: invalid vintage year")
	ErrInvalidVerificationStandard = errors.New("ledger: invalid verification standard")
	ErrInvalidProjectType          = errors.New("ledger: invalid project type")

	// Lookups and lifecycle
	ErrCreditNotFound   = errors.New("ledger: credit not found")
	ErrListingNotFound  = errors.New("ledger: listing not found")
	ErrListingNotActive = errors.New("ledger: listing is not active")

	// Store
	ErrStoreClosed       = errors.New("ledger: store is closed")
	ErrTransactionFailed = errors.New("ledger: transaction failed")
)

// ValidationError reports a rejected input field. It unwraps to one of the
// ErrInvalid* sentinels.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Err, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCreditNotFound) || errors.Is(err, ErrListingNotFound)
}

// IsValidation reports whether err was caused by malformed input.
func IsValidation(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidMetadata) ||
		errors.Is(err, ErrInvalidVintageYear) ||
		errors.Is(err, ErrInvalidVerificationStandard) ||
		errors.Is(err, ErrInvalidProjectType) ||
		errors.Is(err, ErrInvalidIdentity)
}
