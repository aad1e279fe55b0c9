package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/logging"
	"github.com/hupe1980/todomesh/model"
)

// Result is the outcome of dispatching one function call. Content is the tool
// turn text shown to the model. Err holds the recovered failure, if any
// (*core.ToolNotFoundError or *ToolError); it is informational only.
type Result struct {
	CallID   string
	Name     string
	Content  string
	Err      error
	Duration time.Duration
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// Registry is an ordered, immutable-after-setup mapping from tool name to
// Tool. Lookups are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger logging.Logger
}

// NewRegistry creates a registry holding tools in the given order.
func NewRegistry(tools []Tool, optFns ...func(o *RegistryOptions)) (*Registry, error) {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Registry{
		tools:  make(map[string]Tool, len(tools)),
		logger: logging.OrNoOp(opts.Logger),
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return errors.New("tool: name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool: %s already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, &core.ToolNotFoundError{Name: name}
	}
	return t, nil
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Definitions returns the catalog advertised to the model.
func (r *Registry) Definitions() []model.ToolDefinition {
	tools := r.Tools()
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Dispatch resolves call.Name and invokes the tool. Unknown names, malformed
// arguments and tool failures become the Result content; only fatal errors
// (see IsFatal) are returned as err and must abort the run.
func (r *Registry) Dispatch(ctx context.Context, call core.FunctionCall) (res Result, err error) {
	start := time.Now()
	res = Result{CallID: call.ID, Name: call.Name}
	defer func() { res.Duration = time.Since(start) }()

	t, lookupErr := r.Lookup(call.Name)
	if lookupErr != nil {
		r.logger.Warn("tool.call.not_found", "tool", call.Name, "fc_id", call.ID)
		res.Content = core.NotFoundMessage
		res.Err = lookupErr
		return res, nil
	}

	args, argErr := ParseArguments(call.Arguments)
	if argErr != nil {
		r.logger.Warn("tool.call.invalid_arguments", "tool", call.Name, "error", argErr.Error())
		res.Err = NewToolError(call.Name, argErr.Error(), CodeArguments)
		res.Content = errorContent(argErr.Error())
		return res, nil
	}

	r.logger.Debug("tool.call.start", "tool", call.Name, "fc_id", call.ID)

	out, callErr := r.safeCall(ctx, t, args)
	if callErr != nil {
		if IsFatal(callErr) {
			r.logger.Error("tool.call.aborted", "tool", call.Name, "error", callErr.Error())
			return res, callErr
		}

		msg := callErr.Error()
		var toolErr *ToolError
		if errors.As(callErr, &toolErr) {
			msg = toolErr.Message
		}
		r.logger.Warn("tool.call.error", "tool", call.Name, "error", msg)
		res.Err = callErr
		res.Content = errorContent(msg)
		return res, nil
	}

	content, encErr := Stringify(out)
	if encErr != nil {
		res.Err = NewToolError(call.Name, encErr.Error(), CodeExecution)
		res.Content = errorContent(encErr.Error())
		return res, nil
	}

	r.logger.Info("tool.call.success", "tool", call.Name, "duration_ms", time.Since(start).Milliseconds())
	res.Content = content
	return res, nil
}

func (r *Registry) safeCall(ctx context.Context, t Tool, args map[string]any) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = NewToolError(t.Name(), fmt.Sprintf("panic recovered: %v", rec), CodePanic)
		}
	}()
	return t.Call(ctx, args)
}

// ParseArguments decodes the raw argument payload of a function call. An
// empty payload means no arguments. A JSON string wrapping an object, as sent
// by some OpenAI-compatible servers, is unwrapped once.
func ParseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}

	if s, ok := decoded.(string); ok {
		if strings.TrimSpace(s) == "" {
			return map[string]any{}, nil
		}
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("invalid JSON arguments: %w", err)
		}
	}

	args, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments must be a JSON object, got %T", decoded)
	}
	return args, nil
}

// Stringify renders a tool return value as tool turn content. Strings are kept
// verbatim, everything else is JSON encoded.
func Stringify(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case fmt.Stringer:
		return val.String(), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}

func errorContent(msg string) string { return "error: " + msg }
