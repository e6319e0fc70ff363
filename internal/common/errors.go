// Package common defines sentinel errors shared by the storage backends.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// ErrNotFound is returned when a confession or key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorage wraps failures writing to a key-value store (quota, I/O).
	ErrStorage = errors.New("storage write failed")

	// ErrInvalidField is returned for counter paths outside the known set.
	ErrInvalidField = errors.New("invalid counter field")
)
