package shared

import (
	"errors"
	"fmt"
)

// error kinds shared across the progress engine
// 1st: validation = malformed event, rejected at the boundary, never reaches the store
// 2nd: reference = user or lesson does not resolve, non-retryable
// 3rd: storage = durable store unreachable or rejected the write, retryable
var (
	ErrValidation = errors.New("validation failed")
	ErrReference  = errors.New("unknown user or lesson")
	ErrStorage    = errors.New("progress storage unavailable")
)

// ValidationError describes a single malformed field of an incoming event.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageError wraps a driver error so callers can match ErrStorage
// and still unwrap to the underlying cause.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// ReferenceError reports which side of the (user, lesson) key failed to resolve.
func ReferenceError(kind, id string) error {
	return fmt.Errorf("%w: %s %s not found", ErrReference, kind, id)
}

// IsRetryable reports whether a write may succeed if attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrReference) {
		return false
	}
	return errors.Is(err, ErrStorage)
}
