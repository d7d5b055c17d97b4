package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("conflict")

const uniqueViolation = pq.ErrorCode("23505")

// ConflictError names the unique constraint a write ran into.
type ConflictError struct {
	Constraint string
}

func (e *ConflictError) Error() string {
	return "unique constraint violated: " + e.Constraint
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// translateError maps driver errors onto the store's sentinel errors.
func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return &ConflictError{Constraint: pqErr.Constraint}
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}
