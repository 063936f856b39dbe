package domain

import "fmt"

// ValidationError reports malformed or missing required input. It is
// surfaced to the caller for user-facing messaging and never retried
// internally.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError reports a referenced id that does not resolve in the
// store, usually a caller/store desync.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError reports a roster uniqueness violation: a member may
// belong to at most one team at a time.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string { return e.Reason }

// PreconditionError reports a business-rule gate that is not met, e.g.
// completing a task while subtasks remain open.
type PreconditionError struct {
	Reason string
}

func (e PreconditionError) Error() string { return e.Reason }
