package core

import "fmt"

// NotFoundMessage is the stock tool result returned when a tool name is not
// registered.
const NotFoundMessage = "no function found"

// ProviderError reports that a language model or embedding service was
// unreachable or returned a malformed response. It is never retried and
// aborts the current instruction.
type ProviderError struct {
	Provider string // "openai", "anthropic", "embedding", ...
	Op       string // operation that failed ("chat", "embed", ...)
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err as a ProviderError.
func NewProviderError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// StoreError reports a failed persistence call. Query holds the statement
// (or logical operation) that failed.
type StoreError struct {
	Op    string
	Query string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error { return e.Err }

// ToolNotFoundError reports that the model requested an unregistered tool.
// It is recovered locally and fed back to the model as NotFoundMessage.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %s not found", e.Name)
}
