package domain

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrOwnerNotFound  = errors.New("owner not found")
)

// ValidationError is returned when input fields fail declared constraints.
// Fields maps field name to a human-readable message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	msg := "validation failed:"
	for _, name := range names {
		msg += fmt.Sprintf(" %s (%s);", name, e.Fields[name])
	}
	return msg
}

// InvalidFilterError is returned for structurally malformed filter input,
// such as a date range whose start is after its end. It embeds
// ValidationError so errors.As with either type matches.
type InvalidFilterError struct {
	ValidationError
}

// Unwrap exposes the embedded ValidationError so errors.As matches both.
func (e *InvalidFilterError) Unwrap() error { return &e.ValidationError }

// InvalidTransitionError is returned when a lifecycle operation has no edge
// from the entity's current status. Kept distinct from ValidationError so
// callers can render "already processed" rather than a form error.
type InvalidTransitionError struct {
	Kind    Kind
	Op      Operation
	Current Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("operation %q is not valid from status %q for %s", e.Op, e.Current, e.Kind)
}

// ConflictError is returned when a uniqueness constraint is violated at
// write time, e.g. a duplicate invoice number under race. Callers should
// regenerate the value and retry once.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q is already in use", e.Field, e.Value)
}
