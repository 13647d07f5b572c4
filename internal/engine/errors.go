package engine

import "errors"

// Failure classes. Every operation either completes fully or returns one of
// these (possibly wrapped) with no state change; partial application is never
// observable.
var (
	// ErrInvalid covers bad input: zero or negative amounts, out-of-range
	// coordinates, empty identifiers.
	ErrInvalid = errors.New("invalid argument")

	// ErrUnauthorized covers a wrong caller on a privileged or owner-gated
	// entry point.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound covers nonexistent stations and bookings.
	ErrNotFound = errors.New("not found")

	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInsufficientPayment  = errors.New("insufficient payment")
	ErrInsufficientEarnings = errors.New("insufficient earnings")

	// ErrOverflow marks arithmetic that would exceed the 64-bit value range.
	ErrOverflow = errors.New("value overflow")
)
