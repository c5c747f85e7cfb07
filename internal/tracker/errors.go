package tracker

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when a Tracker is used before New.
	ErrNotInitialized = errors.New("tracker not initialized")

	// ErrInvariant marks an internal post-condition failure. The accepted
	// state is never modified when it is returned.
	ErrInvariant = errors.New("tracker invariant violated")

	// ErrInvalidLogBase is returned by Ownership for a base that is not
	// positive or equals 1.
	ErrInvalidLogBase = errors.New("log base must be positive and not equal to 1")
)

// InvariantError describes which revision failed reconciliation and why.
type InvariantError struct {
	Revision int
	Msg      string
}

func (e *InvariantError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: revision %d: %s", ErrInvariant.Error(), e.Revision, e.Msg)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

func invariantf(revision int, format string, args ...any) error {
	return &InvariantError{Revision: revision, Msg: fmt.Sprintf(format, args...)}
}
