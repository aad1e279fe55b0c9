package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/todomesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the orchestrator.
// Contents holds the whole turn sequence, system turn included. A nil Tools
// slice means the model must answer in plain text.
type Request struct {
	Contents []core.Content   `json:"contents"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	Stream   bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"` // Indicates if this is a partial response
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the orchestrator to drive generation.
// Implementations close both channels when done and report failures as
// *core.ProviderError.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains a Generate call and returns the final (non-partial)
// response. Errors that are not already a *core.ProviderError are wrapped as
// one, except context cancellation which is returned as is.
func Collect(ctx context.Context, m Model, req Request) (Response, error) {
	return CollectWithPartials(ctx, m, req, nil)
}

// CollectWithPartials behaves like Collect and additionally hands every
// partial chunk to onPartial (when non-nil) as it arrives.
func CollectWithPartials(ctx context.Context, m Model, req Request, onPartial func(Response)) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)
	provider := m.Info().Provider

	var (
		final    Response
		hasFinal bool
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !r.Partial {
				final, hasFinal = r, true
				continue
			}
			if onPartial != nil {
				onPartial(r)
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, asProviderError(provider, err)
			}
		}
	}

	if !hasFinal {
		return Response{}, core.NewProviderError(provider, "chat", errors.New("no final response"))
	}
	if final.Content.Role == "" {
		final.Content.Role = core.RoleAssistant
	}
	return final, nil
}

// Send delivers r on out unless ctx is done first, and reports whether r was
// delivered. Adapters must not block on out outside of Send.
func Send(ctx context.Context, out chan<- Response, r Response) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

func asProviderError(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pErr *core.ProviderError
	if errors.As(err, &pErr) {
		return err
	}
	return core.NewProviderError(provider, "chat", err)
}

// ScriptedModel replays a fixed sequence of assistant turns, one per
// Generate call, and records every request. It is the deterministic stand-in
// for a real provider in tests and offline mode.
type ScriptedModel struct {
	mu       sync.Mutex
	info     Info
	script   []Step
	requests []Request
}

// Step is one scripted reply: either a turn or an error.
type Step struct {
	Content core.Content
	Err     error
}

// NewScriptedModel creates a ScriptedModel replaying steps in order.
func NewScriptedModel(steps ...Step) *ScriptedModel {
	return &ScriptedModel{
		info:   Info{Name: "scripted", Provider: "scripted", SupportsTools: true},
		script: steps,
	}
}

// Reply is a convenience Step carrying content.
func Reply(c core.Content) Step { return Step{Content: c} }

// Fail is a convenience Step producing err.
func Fail(err error) Step { return Step{Err: err} }

// Push appends steps to the script.
func (m *ScriptedModel) Push(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, steps...)
}

// Requests returns copies of all requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	for i, r := range m.requests {
		r.Contents = append([]core.Content(nil), r.Contents...)
		out[i] = r
	}
	return out
}

// Calls returns the number of Generate calls made.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	req.Contents = append([]core.Content(nil), req.Contents...)
	m.requests = append(m.requests, req)
	var (
		step Step
		ok   bool
	)
	if len(m.script) > 0 {
		step, m.script, ok = m.script[0], m.script[1:], true
	}
	n := len(m.requests)
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}
		if !ok {
			errCh <- core.NewProviderError(m.info.Provider, "chat", fmt.Errorf("script exhausted at call %d", n))
			return
		}
		if step.Err != nil {
			errCh <- step.Err
			return
		}

		c := step.Content
		if c.Role == "" {
			c.Role = core.RoleAssistant
		}
		finish := "stop"
		if c.HasFunctionCalls() {
			finish = "tool_calls"
		}
		respCh <- Response{ID: fmt.Sprintf("scripted-%d", n), Content: c, FinishReason: finish}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
