package workitem

import (
	"errors"
	"fmt"
)

var (
	// ErrNoChanges is returned by BuildUpdate when no field besides the revision
	// precondition would be written. It signals "nothing to do", not a failure.
	ErrNoChanges = errors.New("workitem: update has no field changes")

	// ErrConflict matches a MutationError caused by a failed revision precondition.
	ErrConflict = errors.New("workitem: revision conflict")
)

// ValidationError reports an invalid argument detected before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workitem: invalid %s: %s", e.Field, e.Reason)
}

// MutationError is a failed create, update or link request.
// StatusCode is zero when the request never got a response.
type MutationError struct {
	Op         string
	StatusCode int
	Body       string
	Conflict   bool
	Err        error
}

func (e *MutationError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("workitem %s failed: %v", e.Op, e.Err)
	case e.Conflict:
		return fmt.Sprintf("workitem %s failed: revision conflict (status %d): %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("workitem %s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// Is reports ErrConflict for revision conflicts.
func (e *MutationError) Is(target error) bool {
	return target == ErrConflict && e.Conflict
}

// IsConflict reports whether err is a revision conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
