package series

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed create-series request. It is
// surfaced before any persistence and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExpansionError reports a rule that passed structural validation but
// could not be expanded (unsupported constraint combination, or zero
// occurrences in range). The series is not created.
type ExpansionError struct {
	Reason string
	Err    error
}

func (e *ExpansionError) Error() string {
	if e.Err != nil {
		return "expansion failed: " + e.Reason + ": " + e.Err.Error()
	}
	return "expansion failed: " + e.Reason
}

func (e *ExpansionError) Unwrap() error { return e.Err }

var (
	// ErrSlugExhausted means the slug collision retry budget was spent
	// without a successful insert. The caller may retry with another title.
	ErrSlugExhausted = errors.New("series: slug retry budget exhausted")

	// ErrDuplicate is wrapped by Store implementations when an insert hits
	// a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate key")

	// ErrNotFound is wrapped by Store implementations for missing rows.
	ErrNotFound = errors.New("not found")
)
