package core

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyUserID is returned when a user identifier is blank.
	ErrEmptyUserID = errors.New("empty user id")
	// ErrInvalidActivityType is matched by errors.Is for any *InvalidActivityTypeError.
	ErrInvalidActivityType = errors.New("invalid activity type")
	// ErrInvalidCatalog wraps catalog validation failures.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// InvalidActivityTypeError reports an unrecognized activity type.
type InvalidActivityTypeError struct {
	Got        string
	Suggestion ActivityType
}

func (e *InvalidActivityTypeError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("invalid activity type %q (did you mean %q?)", e.Got, e.Suggestion)
	}
	return fmt.Sprintf("invalid activity type %q", e.Got)
}

func (e *InvalidActivityTypeError) Is(target error) bool {
	return target == ErrInvalidActivityType
}
