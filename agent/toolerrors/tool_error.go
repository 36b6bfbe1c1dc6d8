// Package toolerrors provides a structured error chain type for tool
// invocation failures. ToolError preserves causal chains and supports
// errors.Is/As while staying serialization-friendly, so a failure can cross
// the tool-result boundary (spec.md §7: "Tool errors → captured into
// ToolResult{is_error:true}") and still be inspected by callers.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError represents a structured tool failure. Errors may nest via Cause
// to retain diagnostics across retries and sub-agent hops.
type ToolError struct {
	Message string
	Cause   *ToolError
}

// New constructs a ToolError from a plain message.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// NewWithCause constructs a ToolError wrapping an underlying error.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into a ToolError chain, preserving
// any existing ToolError found via errors.As.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats a message into a ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
