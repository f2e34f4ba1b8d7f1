package store

import (
	"errors"
	"fmt"
)

// ErrUnknownDriver is returned by Open for a driver other than pgx or sqlite.
var ErrUnknownDriver = errors.New("unknown database driver")

// PersistenceError reports a batch that could not be written. The batch
// transaction was rolled back, so none of its rows are visible.
type PersistenceError struct {
	Page int
	Rows int
	Err  error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist page %d (%d rows): %v", e.Page, e.Rows, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}
