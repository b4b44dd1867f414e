package issue

import (
	"errors"
	"fmt"
	"strings"
)

// Failure classes. Every error returned by a command matches at most one of
// them through errors.Is; anything else is an internal failure.
var (
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")
	ErrBadRequest   = errors.New("bad request")
	ErrValidation   = errors.New("validation failed")
)

// Violation is one failed constraint, translated for the actor.
type Violation struct {
	// FieldID is zero for constraints on the issue itself.
	FieldID uint   `json:"field_id,omitempty"`
	Field   string `json:"field"`
	Key     string `json:"key"`
	Message string `json:"message"`
}

// ValidationError aggregates every violation of one command.
type ValidationError struct {
	Summary    string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return fmt.Sprintf("issue: %s: %s", e.Summary, strings.Join(parts, "; "))
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func notFound(kind string, id uint) error {
	return fmt.Errorf("issue: %s %d: %w", kind, id, ErrNotFound)
}

func denied(action any) error {
	return fmt.Errorf("issue: %v: %w", action, ErrAccessDenied)
}

func badRequest(msg string) error {
	return fmt.Errorf("issue: %s: %w", msg, ErrBadRequest)
}
