package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input the store refused: missing or malformed
	// fields, or values outside a column's constraints.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a unique-constraint violation on email.
	ErrConflict = errors.New("email already exists")

	// ErrUnavailable marks connectivity problems and pool exhaustion.
	ErrUnavailable = errors.New("storage unavailable")
)

// ValidationError wraps the reason input was rejected. It matches
// ErrValidation with errors.Is and exposes the cause (for instance a
// validator.ValidationErrors) to errors.As.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

// Invalid wraps err as a *ValidationError.
func Invalid(err error) error {
	return &ValidationError{Err: err}
}

// Unavailable wraps err so that it matches ErrUnavailable while keeping
// the driver error for logs.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
