// Package common defines shared constants and sentinel errors used across
// the VeilPay engine. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Crypto errors. Any AEAD open failure maps to ErrDecryption with no
	// further detail about which check failed.
	ErrDecryption = errors.New("decryption failed")
	ErrInvalidKey = errors.New("invalid key size")

	// Auth errors (invalid, expired or malformed session credential).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Payroll state machine errors.
	ErrInvalidState = errors.New("invalid state for operation")

	// Per-payment relay failure, recorded on the payment, never retried
	// inside the same batch.
	ErrTransfer = errors.New("transfer failed")

	// Rate limiting.
	ErrRateLimited = errors.New("rate limited")
)

// EligibilityError is returned when a payroll run has no eligible
// employees. PendingRegistration carries the number of invited employees
// that have not registered a stealth wallet yet, so the caller can give
// an actionable message.
type EligibilityError struct {
	PendingRegistration int
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("no eligible employees (%d pending registration)", e.PendingRegistration)
}
