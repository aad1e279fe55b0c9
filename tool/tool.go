// Package tool implements the function calling subsystem that lets the
// orchestrator invoke todo list operations with schema validated arguments,
// consistent error handling and a defined result for unknown tool names.
package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/internal/util"
)

// Tool is a named, schema-described operation the model may request.
//
// Implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a JSON schema for parameters
//   - Return *ToolError for failures the model can act on
//   - Pass *core.ProviderError and *core.StoreError through unchanged
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description is shown to the model to help it decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input.
	Parameters() map[string]any

	// Call executes the tool with already decoded arguments.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes attached to ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeArguments  = "INVALID_ARGUMENTS"
	CodePanic      = "PANIC"
)

// ToolError represents errors that occur during tool execution. They are fed
// back to the model as tool results and never abort a run.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// IsFatal reports whether err must abort the run instead of being returned to
// the model: provider and store failures, and context cancellation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var pErr *core.ProviderError
	if errors.As(err, &pErr) {
		return true
	}
	var sErr *core.StoreError
	if errors.As(err, &sErr) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
