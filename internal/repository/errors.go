package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a write violates a uniqueness constraint,
	// e.g. a second active session for the same bus and activity date.
	ErrConflict = errors.New("entity already exists")
)
