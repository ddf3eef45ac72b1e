package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a job has no valid created record.
var ErrNotFound = errors.New("simulation not found")

// IOError reports a filesystem failure in the job store.
type IOError struct {
	Op  string
	ID  int
	Err error
}

func (e *IOError) Error() string {
	if e.ID > 0 {
		return fmt.Sprintf("store: %s simulation %d: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
