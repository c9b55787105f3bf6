package agent

import (
	"errors"
	"fmt"
)

// ErrCompletionFailed is returned for any completion backend failure. The
// underlying cause is logged, never surfaced to the user.
var ErrCompletionFailed = errors.New("an error occurred while processing your request")

// ValidationError reports unusable input to a session.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("agent: invalid %s: %s", e.Field, e.Reason)
}

// ErrEmptyMessage is returned by Submit for empty or whitespace-only input.
var ErrEmptyMessage = &ValidationError{Field: "message", Reason: "cannot be empty"}
