package plan

import (
	"fmt"
	"strings"
)

// ParseError reports a plan that is not well formed: bad syntax or a shape
// that does not match the plan schema.
type ParseError struct {
	Problems []string
	Err      error
}

func (e *ParseError) Error() string {
	if len(e.Problems) == 1 {
		return "malformed plan: " + e.Problems[0]
	}
	return fmt.Sprintf("malformed plan (%d problems):\n  - %s", len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Violation is one broken invariant, attributed to the plan element at Path
// (for example "topics[0].coursework[2].due").
type Violation struct {
	Path    string
	Message string
	Err     error
}

func (v Violation) String() string {
	return v.Path + ": " + v.Message
}

// ValidationError collects every invariant violation found in a plan.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		lines[i] = v.String()
	}
	if len(lines) == 1 {
		return "invalid plan: " + lines[0]
	}
	return fmt.Sprintf("invalid plan (%d problems):\n  - %s", len(lines), strings.Join(lines, "\n  - "))
}

// Unwrap exposes the underlying causes so callers can match them with
// errors.Is, e.g. dates.ErrInvalidDateExpression.
func (e *ValidationError) Unwrap() []error {
	var errs []error
	for _, v := range e.Violations {
		if v.Err != nil {
			errs = append(errs, v.Err)
		}
	}
	return errs
}
