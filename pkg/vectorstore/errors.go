package vectorstore

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a chunk or query fails input
	// validation. Validation errors are synchronous and never retried.
	ErrValidation = errors.New("validation failed")

	// ErrDimension is returned when an embedding's length does not match
	// the store's configured dimension.
	ErrDimension = errors.New("embedding dimension mismatch")

	// ErrConnection is returned when the vector store backend cannot be
	// reached.
	ErrConnection = errors.New("vector store connection failed")
)

// newValidationError wraps ErrValidation with a message naming the
// offending field or value.
func newValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
