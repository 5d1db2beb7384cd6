package types

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind is the terminal failure category of a generation run.
type FailureKind string

const (
	FailureTransport  FailureKind = "transport"
	FailureExtraction FailureKind = "extraction"
	FailureValidation FailureKind = "validation"
)

// UserFacingMessage is the only text end users ever see for a failed run.
const UserFacingMessage = "generation did not produce usable content, please retry"

// Issue is a single schema violation.
type Issue struct {
	Path     string `json:"path"`
	Code     string `json:"code"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// String renders the issue for logs.
func (i Issue) String() string {
	path := i.Path
	if path == "" {
		path = "$"
	}
	return fmt.Sprintf("%s: expected %s, got %s", path, i.Expected, i.Actual)
}

// Failure is the typed terminal error returned by a generation run.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Issues  []Issue     `json:"issues,omitempty"`
	RunID   string      `json:"run_id,omitempty"`
	Cause   error       `json:"-"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	var sb strings.Builder
	sb.WriteString(string(f.Kind))
	sb.WriteString(" failure: ")
	sb.WriteString(f.Message)
	if n := len(f.Issues); n > 0 {
		const maxShown = 3
		shown := f.Issues
		if n > maxShown {
			shown = shown[:maxShown]
		}
		parts := make([]string, len(shown))
		for i, is := range shown {
			parts[i] = is.String()
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(parts, "; "))
		if n > maxShown {
			fmt.Fprintf(&sb, "; ... total %d", n)
		}
		sb.WriteString(")")
	}
	if f.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(f.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error {
	return f.Cause
}

// UserMessage returns the message safe to show to end users. Raw model output
// and repair internals never appear here.
func (f *Failure) UserMessage() string {
	if f.RunID == "" {
		return UserFacingMessage
	}
	return fmt.Sprintf("%s (diagnostic id: %s)", UserFacingMessage, f.RunID)
}

// AsFailure extracts a *Failure from the chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
