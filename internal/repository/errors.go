package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("entity already exists")

	// ErrStatusChanged is returned when a guarded update finds the entity
	// in a different status than the caller read.
	ErrStatusChanged = errors.New("entity status changed")
)
