package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("conflict")

// ErrNotAvailable is returned when a book has no reservable copy
// (no available copies, inactive, or unknown).
var ErrNotAvailable = errors.New("not available")

// ErrNotActive is returned when a reservation is already in a terminal state.
var ErrNotActive = errors.New("not active")

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
