package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a receipt is not found.
	ErrNotFound = errors.New("receipt not found")
)
