package storage

import (
	"errors"
	"fmt"
)

// Storage error constants
var (
	// ErrNotFound is returned when a key or row does not exist (or has expired)
	ErrNotFound = errors.New("not found")

	// ErrSubmissionNotFound is returned when a contact submission is not found
	ErrSubmissionNotFound = fmt.Errorf("submission %w", ErrNotFound)

	// ErrConstraintViolation is returned when a database constraint is violated,
	// e.g. a comment referencing a submission that does not exist
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrStoreUnavailable is returned when the backing store cannot be reached
	// or answers with an unexpected failure
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidValue is returned when a stored value cannot be interpreted,
	// e.g. INCR on a non-integer key
	ErrInvalidValue = errors.New("invalid stored value")

	// ErrDatabaseClosed is returned when attempting to use a closed store
	ErrDatabaseClosed = errors.New("database is closed")
)

// Error carries the failed operation and its classification. Kind is always
// one of the sentinel errors above so callers can branch with errors.Is.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Is reports whether target matches the error's kind.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}
