package engine

import (
	"errors"
	"fmt"

	"agriscore/core"
)

var (
	// ErrPersistence is matched by errors.Is for any *PersistenceError.
	ErrPersistence = errors.New("score persistence failed")
	// ErrInvalidPeriod is returned for an unknown leaderboard period.
	ErrInvalidPeriod = errors.New("invalid leaderboard period")
	// ErrInvalidLimit is returned for a negative leaderboard limit.
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	// ErrClosed is returned for background work submitted after Close.
	ErrClosed = errors.New("score service closed")
)

// PersistenceError reports a storage failure. The mutation it belongs to was not
// applied, so the caller may retry the same event.
type PersistenceError struct {
	Op   string
	User core.UserID
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s for user %s: %v", e.Op, e.User, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Retryable reports whether repeating the call may succeed.
func (e *PersistenceError) Retryable() bool { return true }
