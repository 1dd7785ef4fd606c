package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a uniqueness rule is violated, e.g.
	// re-ingesting identical content for the same tenant.
	ErrDuplicate = errors.New("duplicate record")
)
