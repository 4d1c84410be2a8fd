// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrSARNotFound         = errors.New("suspicious activity report not found")

	// Payment flow errors. ErrTransactionDeclined is the only reason ever
	// shown to a customer when compliance blocks a payment.
	ErrTransactionDeclined   = errors.New("transaction declined")
	ErrDailyLimitExceeded    = errors.New("daily spending limit exceeded")
	ErrAdditionalAuthInvalid = errors.New("additional authentication failed")

	// Validator errors
	ErrInvalidFormat         = errors.New("invalid format")
	ErrSignerMismatch        = errors.New("signer mismatch")
	ErrValidationSystemError = errors.New("validation system error")

	// Compliance errors
	ErrSanctionMatch      = errors.New("sanction match detected")
	ErrScreeningFailed    = errors.New("sanctions screening failed")
	ErrProfileUnavailable = errors.New("customer risk profile unavailable")
)

// ErrConfig marks a misconfigured-system condition, distinct from bad input.
var ErrConfig = errors.New("configuration error")

// Config wraps err as a configuration error so operators can tell a
// misconfigured system apart from a bad request.
func Config(msg string) error {
	return fmt.Errorf("%w: %s", ErrConfig, msg)
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
