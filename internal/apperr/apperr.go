// Package apperr defines the error kinds shared by the marketplace services
// and their mapping onto HTTP responses.
//
// Packages declare their own sentinels wrapping one of these kinds, e.g.
//
//	var ErrOfferNotFound = fmt.Errorf("trade offer %w", apperr.ErrNotFound)
//
// so handlers can branch on the kind with errors.Is while the message stays
// specific.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("invalid request")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrAlreadyFinalized marks an idempotent repeat. Callers treat it as
	// success and use the value returned alongside it.
	ErrAlreadyFinalized = errors.New("already finalized")
	ErrConflict         = errors.New("conflict")
	ErrUnavailable      = errors.New("temporarily unavailable")
)

// InsufficientFundsError reports how much was needed and how much was spendable.
type InsufficientFundsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %d, available %d", e.Required, e.Available)
}

// Is lets errors.Is(err, ErrInsufficientFunds) match.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// Validation builds an ErrValidation with a user-facing message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Forbidden builds an ErrForbidden with a user-facing message.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Transition builds an ErrInvalidTransition naming both states.
func Transition(what string, from, to any) error {
	return fmt.Errorf("%w: %s cannot move from %v to %v", ErrInvalidTransition, what, from, to)
}

// IsAlreadyFinalized reports whether err is an idempotent repeat.
func IsAlreadyFinalized(err error) bool {
	return errors.Is(err, ErrAlreadyFinalized)
}
