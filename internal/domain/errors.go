package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrValidationFailed  = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOverReturn        = errors.New("return exceeds issued quantity")
	ErrUnauthorized      = errors.New("unauthorized")

	// ErrConflict is returned by CompareAndSet when the stored values no
	// longer match the expected ones.
	ErrConflict = errors.New("concurrent modification")
	// ErrGuard is returned by Increment when the result would fall below the floor.
	ErrGuard = errors.New("increment guard violated")
)

// ValidationError describes a missing or malformed field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// Invalid builds a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// DuplicateKeyError reports the unique field that collided.
type DuplicateKeyError struct {
	Kind  Kind
	Field string
	Value any
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key: %s.%s = %v", e.Kind, e.Field, e.Value)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// NotFoundError names the kind and id that could not be resolved.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
