// Package flow drives the conversation between a language model and the todo
// tool catalog.
//
// One Run processes one instruction end to end:
//
//	AWAITING_MODEL ──no tool calls──────────────────────────────▶ DONE
//	      │ tool calls
//	      ▼
//	DISPATCHING_TOOLS ──rounds < MaxRounds──▶ AWAITING_MODEL
//	      │ budget spent
//	      ▼
//	AWAITING_FINAL ─────────────────────────────────────────────▶ DONE
//
// MaxRounds = 1 is the "ask, dispatch, ask again" shape; larger budgets let the
// model chain tool calls until it answers in plain text. Tool calls within a
// round run sequentially in the order the model requested them.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/logging"
	"github.com/hupe1980/todomesh/model"
	"github.com/hupe1980/todomesh/tool"
)

// Dispatcher resolves and executes tool calls. *tool.Registry implements it.
type Dispatcher interface {
	Definitions() []model.ToolDefinition
	Dispatch(ctx context.Context, call core.FunctionCall) (tool.Result, error)
}

// Options configures a Flow.
type Options struct {
	// Name identifies the flow in logs.
	Name string
	// MaxRounds bounds the number of dispatch rounds per run (minimum 1).
	MaxRounds int
	// Instruction is rendered into the system turn of every run.
	Instruction Instruction
	// InstructionVars are extra template variables for the instruction.
	InstructionVars map[string]any
	// FinalWithTools keeps the catalog in the AWAITING_FINAL request. Some
	// providers reject histories with tool calls when no tools are declared.
	FinalWithTools bool
	// Stream asks the model for incremental output.
	Stream bool
	// TokenCounter estimates prompt size for model call logs.
	TokenCounter TokenCounter
	Logger       logging.Logger
}

// Flow is the conversation orchestrator. It holds no per-conversation state;
// the history lives in the *core.Session passed to Run. A Flow is safe for
// concurrent use across different sessions.
type Flow struct {
	model      model.Model
	dispatcher Dispatcher
	opts       Options
	logger     logging.Logger
}

// New creates a Flow for m and the tools of d.
func New(m model.Model, d Dispatcher, optFns ...func(o *Options)) *Flow {
	opts := Options{
		Name:         "todo",
		MaxRounds:    1,
		TokenCounter: approxCounter{},
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxRounds < 1 {
		opts.MaxRounds = 1
	}
	if opts.TokenCounter == nil {
		opts.TokenCounter = approxCounter{}
	}
	return &Flow{model: m, dispatcher: d, opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// MaxRounds returns the configured round budget.
func (f *Flow) MaxRounds() int { return f.opts.MaxRounds }

// RunOptions configures a single Run.
type RunOptions struct {
	// OnPartial receives streamed assistant text as it arrives.
	OnPartial func(text string)
	// OnToolResult is called after each dispatched tool call.
	OnToolResult func(res tool.Result)
}

// Result is the observable outcome of one Run.
type Result struct {
	// Answer is the text of the last assistant turn. It is the model's own
	// narration; callers re-read the store to present the list.
	Answer string
	// Turns holds every turn this run appended to the session, in order.
	Turns []core.Content
	// ToolResults holds the dispatch outcomes in execution order.
	ToolResults []tool.Result
	// Rounds counts completed dispatch rounds.
	Rounds int
	// State is DONE on success, or the state the run failed in.
	State State
}

// Run processes input against sess. It holds the session's run lock for its
// whole duration so instructions of one conversation never interleave.
//
// Provider and store errors abort the run; turns appended before the failure
// stay in the session and the partial Result is returned alongside the error.
// Calls the aborted round never answered get an AbortedResult tool turn, so the
// history stays a valid request for the next run.
func (f *Flow) Run(ctx context.Context, sess *core.Session, input string, optFns ...func(o *RunOptions)) (*Result, error) {
	var ropts RunOptions
	for _, fn := range optFns {
		fn(&ropts)
	}

	release := sess.AcquireRun()
	defer release()

	start := time.Now()
	mark := sess.Len()
	res := &Result{State: StateAwaitingModel}

	err := f.run(ctx, sess, input, ropts, res)
	res.Turns = sess.Since(mark)
	f.logRun(sess.ID, res, time.Since(start), err)
	if err != nil {
		return res, err
	}
	return res, nil
}

// AbortedResult is recorded for tool calls left unanswered by an aborted run.
const AbortedResult = "error: aborted"

func (f *Flow) run(ctx context.Context, sess *core.Session, input string, ropts RunOptions, res *Result) (err error) {
	system, err := f.opts.Instruction.Resolve(ctx, sess, f.instructionVars(sess, input))
	if err != nil {
		return fmt.Errorf("flow: resolve instruction: %w", err)
	}
	if system != "" {
		sess.Append(core.NewTextContent(core.RoleSystem, system))
	}
	sess.Append(core.NewTextContent(core.RoleUser, input))

	var pending []core.FunctionCall
	defer func() {
		if err != nil && len(pending) > 0 {
			f.closeCalls(sess, pending)
		}
	}()

	for res.State != StateDone {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch res.State {
		case StateAwaitingModel:
			reply, err := f.ask(ctx, sess, f.dispatcher.Definitions(), ropts)
			if err != nil {
				return err
			}
			sess.Append(reply)
			pending = reply.FunctionCalls()
			if len(pending) == 0 {
				res.Answer = reply.Text()
				res.State = StateDone
				continue
			}
			res.State = StateDispatchingTools

		case StateDispatchingTools:
			for len(pending) > 0 {
				call := pending[0]
				out, err := f.dispatch(ctx, call)
				if err != nil {
					return err
				}
				sess.Append(core.NewToolResultContent(call.ID, call.Name, out.Content))
				pending = pending[1:]
				res.ToolResults = append(res.ToolResults, out)
				if ropts.OnToolResult != nil {
					ropts.OnToolResult(out)
				}
			}
			res.Rounds++
			if res.Rounds < f.opts.MaxRounds {
				res.State = StateAwaitingModel
			} else {
				res.State = StateAwaitingFinal
			}

		case StateAwaitingFinal:
			var tools []model.ToolDefinition
			if f.opts.FinalWithTools {
				tools = f.dispatcher.Definitions()
			}
			reply, err := f.ask(ctx, sess, tools, ropts)
			if err != nil {
				return err
			}
			if reply.HasFunctionCalls() {
				f.logger.Warn("flow.final.tool_calls_ignored", "session_id", sess.ID, "calls", len(reply.FunctionCalls()))
				reply = withoutCalls(reply)
			}
			sess.Append(reply)
			res.Answer = reply.Text()
			res.State = StateDone
		}
	}
	return nil
}

// ask sends the full history to the model and returns its reply turn.
func (f *Flow) ask(ctx context.Context, sess *core.Session, tools []model.ToolDefinition, ropts RunOptions) (core.Content, error) {
	turns := sess.Turns()
	req := model.Request{Contents: turns, Tools: tools, Stream: f.opts.Stream}

	var onPartial func(model.Response)
	if ropts.OnPartial != nil {
		onPartial = func(r model.Response) {
			if text := r.Content.Text(); text != "" {
				ropts.OnPartial(text)
			}
		}
	}

	start := time.Now()
	resp, err := model.CollectWithPartials(ctx, f.model, req, onPartial)
	f.logModelCall(estimateTokens(f.opts.TokenCounter, turns), time.Since(start), err)
	if err != nil {
		return core.Content{}, err
	}

	reply := resp.Content
	reply.Role = core.RoleAssistant
	return reply, nil
}

// closeCalls answers calls an aborted round left open.
func (f *Flow) closeCalls(sess *core.Session, calls []core.FunctionCall) {
	f.logger.Warn("flow.tool_calls_aborted", "session_id", sess.ID, "calls", len(calls))
	for _, call := range calls {
		sess.Append(core.NewToolResultContent(call.ID, call.Name, AbortedResult))
	}
}

// withoutCalls drops the function call parts of an assistant turn. The
// session must never hold a call without a matching tool turn.
func withoutCalls(c core.Content) core.Content {
	parts := make([]core.Part, 0, len(c.Parts))
	for _, p := range c.Parts {
		if _, ok := p.(core.FunctionCallPart); ok {
			continue
		}
		parts = append(parts, p)
	}
	c.Parts = parts
	return c
}

func (f *Flow) dispatch(ctx context.Context, call core.FunctionCall) (tool.Result, error) {
	out, err := f.dispatcher.Dispatch(ctx, call)
	f.logToolCall(out, err)
	return out, err
}

func (f *Flow) instructionVars(sess *core.Session, input string) map[string]any {
	vars := make(map[string]any, len(f.opts.InstructionVars)+3)
	for k, v := range f.opts.InstructionVars {
		vars[k] = v
	}
	vars["session_id"] = sess.ID
	vars["input"] = input
	vars["max_rounds"] = f.opts.MaxRounds
	return vars
}

// metricsLogger is implemented by *logging.StructuredLogger.
type metricsLogger interface {
	LogLLMCall(model string, tokens int, dur time.Duration, success bool, err error)
	LogToolCall(tool string, dur time.Duration, success bool, err error)
	LogFlowExecution(flow string, rounds int, dur time.Duration, success bool, err error)
}

func (f *Flow) logModelCall(tokens int, dur time.Duration, err error) {
	name := f.model.Info().Name
	if ml, ok := f.logger.(metricsLogger); ok {
		ml.LogLLMCall(name, tokens, dur, err == nil, err)
		return
	}
	if err != nil {
		f.logger.Error("flow.model.error", "model", name, "tokens", tokens, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	f.logger.Info("flow.model.call", "model", name, "tokens", tokens, "duration_ms", dur.Milliseconds())
}

func (f *Flow) logToolCall(out tool.Result, err error) {
	failure := err
	if failure == nil {
		failure = out.Err
	}
	if ml, ok := f.logger.(metricsLogger); ok {
		ml.LogToolCall(out.Name, out.Duration, failure == nil, failure)
		return
	}
	f.logger.Debug("flow.tool.call", "tool", out.Name, "duration_ms", out.Duration.Milliseconds(), "success", failure == nil)
}

func (f *Flow) logRun(sessionID string, res *Result, dur time.Duration, err error) {
	if ml, ok := f.logger.(metricsLogger); ok {
		ml.LogFlowExecution(f.opts.Name, res.Rounds, dur, err == nil, err)
		return
	}
	if err != nil {
		var pErr *core.ProviderError
		kind := "internal"
		if errors.As(err, &pErr) {
			kind = "provider"
		}
		f.logger.Error("flow.run.failed", "flow", f.opts.Name, "session_id", sessionID, "state", res.State.String(), "kind", kind, "error", err.Error())
		return
	}
	f.logger.Info("flow.run.completed", "flow", f.opts.Name, "session_id", sessionID, "rounds", res.Rounds, "duration_ms", dur.Milliseconds())
}
