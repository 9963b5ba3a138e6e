package store

import (
	"context"
	"errors"
)

// Sentinel kinds for store errors.
var (
	// ErrNotFound signals the referenced document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrValidation signals a malformed document or argument. Never retried.
	ErrValidation = errors.New("invalid document")

	// ErrPermission signals the caller may not perform the operation. Never retried.
	ErrPermission = errors.New("permission denied")

	// ErrUnavailable signals the store is temporarily unreachable.
	ErrUnavailable = errors.New("store unavailable")

	// ErrTimeout signals a store call exceeded its deadline.
	ErrTimeout = errors.New("store operation timed out")

	// ErrConflict signals a transaction lost a write race and exhausted
	// the store's internal retries.
	ErrConflict = errors.New("transaction conflict")
)

// IsNotFound reports whether err is a missing-document error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient reports whether err is worth retrying: timeouts,
// unavailability, and conflicts. Validation and permission errors are not.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, context.DeadlineExceeded)
}
