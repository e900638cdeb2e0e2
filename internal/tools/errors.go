package tools

import (
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateTool is returned by [Registry.Register] when the name is
// already taken. Registration happens at startup, so callers treat it as
// fatal.
var ErrDuplicateTool = errors.New("tool already registered")

// ErrUnknownTool reports a call to a name that is not in the registry.
type ErrUnknownTool struct {
	Name string
}

func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("Tool '%s' not found", e.Name)
}

// ErrMissingParameter reports a required schema property absent from the
// call arguments. Only presence is checked, never the value's type.
type ErrMissingParameter struct {
	Tool  string
	Param string
}

func (e *ErrMissingParameter) Error() string {
	return fmt.Sprintf("Required parameter '%s' missing for tool '%s'", e.Param, e.Tool)
}

// ErrToolTimeout reports a handler that ran past the execution budget.
type ErrToolTimeout struct {
	Tool    string
	Timeout time.Duration
}

func (e *ErrToolTimeout) Error() string {
	return fmt.Sprintf("Tool '%s' timed out after %s", e.Tool, e.Timeout)
}

// ErrToolPanic reports a handler that panicked.
type ErrToolPanic struct {
	Tool  string
	Value any
}

func (e *ErrToolPanic) Error() string {
	return fmt.Sprintf("Tool '%s' failed: %v", e.Tool, e.Value)
}
