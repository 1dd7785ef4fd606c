package chunker

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when chunk size/overlap settings are
	// rejected at construction.
	ErrInvalidConfig = errors.New("invalid chunking configuration")

	// ErrInvalidDocument is returned when a document is missing a field
	// required for chunking.
	ErrInvalidDocument = errors.New("invalid document")
)

func newInvalidConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func newInvalidDocumentError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...))
}
