package tools

import (
	"errors"
	"fmt"
)

// ValidationError rejects a tool call before the tool body runs.
type ValidationError struct {
	Tool    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid input for %s: %s: %s", e.Tool, e.Field, e.Message)
	}
	return fmt.Sprintf("invalid input for %s: %s", e.Tool, e.Message)
}

// ToolExecutionError wraps a failure raised inside a tool body.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// IsToolError reports whether err is a ValidationError or ToolExecutionError.
func IsToolError(err error) bool {
	var ve *ValidationError
	var te *ToolExecutionError
	return errors.As(err, &ve) || errors.As(err, &te)
}

func asValidation(tool string, err error) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		if ve.Tool == "" {
			ve.Tool = tool
		}
		return ve
	}
	return &ValidationError{Tool: tool, Message: err.Error()}
}
