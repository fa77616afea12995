package receipt

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that an update or fetch targeted an id that does
	// not resolve to an existing record.
	ErrNotFound = errors.New("receipt not found")

	// ErrConnection signals that the relational backend handle could not be
	// acquired after a retry. Callers must not retry within the same call.
	ErrConnection = errors.New("database connection failed")
)

// ValidationError reports a write payload that failed required-field
// checks. It is raised before any backend call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
