package flow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/embedding"
	"github.com/hupe1980/todomesh/flow"
	"github.com/hupe1980/todomesh/internal/testutil"
	"github.com/hupe1980/todomesh/memory"
	"github.com/hupe1980/todomesh/model"
	"github.com/hupe1980/todomesh/store"
	"github.com/hupe1980/todomesh/todotools"
	"github.com/hupe1980/todomesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyStore records every call and delegates to a real store.
type spyStore struct {
	mu    sync.Mutex
	calls []string
	inner *store.Store
}

func newSpyStore() *spyStore {
	return &spyStore{inner: store.New(memory.NewInMemoryStore(), embedding.NewHashEmbedder(64))}
}

func (s *spyStore) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)
}

func (s *spyStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *spyStore) Add(ctx context.Context, d string) (string, error) {
	s.record("add:" + d)
	return s.inner.Add(ctx, d)
}

func (s *spyStore) MarkDone(ctx context.Context, d string) (string, error) {
	s.record("done:" + d)
	return s.inner.MarkDone(ctx, d)
}

func (s *spyStore) Remove(ctx context.Context, d string) (string, error) {
	s.record("remove:" + d)
	return s.inner.Remove(ctx, d)
}

func (s *spyStore) ListJSON(ctx context.Context) (string, error) {
	s.record("list")
	return s.inner.ListJSON(ctx)
}

func newBasicFlow(t *testing.T, m model.Model, st todotools.ItemStore, optFns ...func(o *flow.Options)) *flow.Flow {
	t.Helper()
	catalog := todotools.Basic(st)
	reg, err := catalog.Registry()
	require.NoError(t, err)
	opts := append([]func(o *flow.Options){func(o *flow.Options) {
		o.Instruction = flow.NewInstructionFromText(catalog.Instruction)
		o.MaxRounds = catalog.MaxRounds
	}}, optFns...)
	return flow.New(m, reg, opts...)
}

func TestFlow_NoToolCallsGoesStraightToDone(t *testing.T) {
	st := newSpyStore()
	m := model.NewScriptedModel(model.Reply(testutil.Answer("Hello! What should I add?")))
	f := newBasicFlow(t, m, st)
	sess := core.NewSession("e")

	res, err := f.Run(context.Background(), sess, "hi")
	require.NoError(t, err)

	assert.Equal(t, flow.StateDone, res.State)
	assert.Equal(t, "Hello! What should I add?", res.Answer)
	assert.Equal(t, 0, res.Rounds)
	assert.Empty(t, st.Calls())
	assert.Equal(t, 1, m.Calls())

	require.Len(t, res.Turns, 3)
	assert.Equal(t, core.RoleSystem, res.Turns[0].Role)
	assert.Equal(t, core.RoleUser, res.Turns[1].Role)
	assert.Equal(t, core.RoleAssistant, res.Turns[2].Role)
}

func TestFlow_SingleRoundAddThenFinalAnswer(t *testing.T) {
	st := newSpyStore()
	m := model.NewScriptedModel(
		model.Reply(testutil.ToolCalls(testutil.Call("c1", "add_item", map[string]any{"description": "buy milk"}))),
		model.Reply(testutil.Answer("Added buy milk.")),
	)
	f := newBasicFlow(t, m, st)
	sess := core.NewSession("a")

	res, err := f.Run(context.Background(), sess, "add buy milk")
	require.NoError(t, err)
	assert.Equal(t, "Added buy milk.", res.Answer)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, []string{"buy milk has been added to the list"}, testutil.ToolResults(res.Turns))

	items, err := st.inner.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "buy milk", items[0].Description)
	assert.False(t, items[0].Done)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[0].Tools, 4)
	assert.Empty(t, reqs[1].Tools, "final ask omits the catalog")
	assert.Len(t, reqs[1].Contents, 4, "system, user, assistant call, tool result")
}

func TestFlow_DispatchOrderIsPreserved(t *testing.T) {
	st := newSpyStore()
	m := model.NewScriptedModel(
		model.Reply(testutil.ToolCalls(
			testutil.Call("c1", "add_item", map[string]any{"description": "walk the dog"}),
			testutil.Call("c2", "get_list", nil),
		)),
		model.Reply(testutil.Answer("ok")),
	)
	f := newBasicFlow(t, m, st)

	res, err := f.Run(context.Background(), core.NewSession("order"), "add walk the dog and show me the list")
	require.NoError(t, err)

	assert.Equal(t, []string{"add:walk the dog", "list"}, st.Calls())
	results := testutil.ToolResults(res.Turns)
	require.Len(t, results, 2)
	assert.Equal(t, "walk the dog has been added to the list", results[0])
	assert.Contains(t, results[1], `"description":"walk the dog"`)

	require.Len(t, res.ToolResults, 2)
	assert.Equal(t, "c1", res.ToolResults[0].CallID)
	assert.Equal(t, "c2", res.ToolResults[1].CallID)
}

func TestFlow_UnknownToolIsFedBack(t *testing.T) {
	st := newSpyStore()
	m := model.NewScriptedModel(
		model.Reply(testutil.ToolCalls(testutil.Call("c1", "fooBar", map[string]any{"x": 1}))),
		model.Reply(testutil.Answer("Sorry, I could not do that.")),
	)
	f := newBasicFlow(t, m, st)

	res, err := f.Run(context.Background(), core.NewSession("d"), "do something odd")
	require.NoError(t, err)
	assert.Equal(t, flow.StateDone, res.State)
	assert.Equal(t, []string{core.NotFoundMessage}, testutil.ToolResults(res.Turns))

	var nf *core.ToolNotFoundError
	require.Len(t, res.ToolResults, 1)
	assert.True(t, errors.As(res.ToolResults[0].Err, &nf))
	assert.Empty(t, st.Calls())
}

func TestFlow_ValidationErrorIsFedBack(t *testing.T) {
	st := newSpyStore()
	m := model.NewScriptedModel(
		model.Reply(testutil.ToolCalls(testutil.Call("c1", "add_item", map[string]any{"item": "milk"}))),
		model.Reply(testutil.Answer("I need a description.")),
	)
	f := newBasicFlow(t, m, st)

	res, err := f.Run(context.Background(), core.NewSession("v"), "add")
	require.NoError(t, err)

	results := testutil.ToolResults(res.Turns)
	require.Len(t, results, 1)
	assert.Contains(t, results[0], "error:")
	assert.Contains(t, results[0], "description")
	assert.Empty(t, st.Calls())
}

func TestFlow_NotFoundIsANormalResult(t *testing.T) {
	st := newSpyStore()
	m := model.NewScriptedModel(
		model.Reply(testutil.ToolCalls(testutil.Call("c1", "mark_as_done", map[string]any{"description": "laundry"}))),
		model.Reply(testutil.Answer("There is nothing like that on your list.")),
	)
	f := newBasicFlow(t, m, st)

	res, err := f.Run(context.Background(), core.NewSession("nf"), "mark laundry done")
	require.NoError(t, err)
	assert.Equal(t, []string{store.NotFoundMessage}, testutil.ToolResults(res.Turns))
}

func TestFlow_MultiRoundLoopsUntilPlainText(t *testing.T) {
	st := newSpyStore()
	m := model.NewScriptedModel(
		model.Reply(testutil.ToolCalls(testutil.Call("c1", "add_item", map[string]any{"description": "buy milk"}))),
		model.Reply(testutil.ToolCalls(testutil.Call("c2", "mark_as_done", map[string]any{"description": "the milk"}))),
		model.Reply(testutil.Answer("Added and completed buy milk.")),
	)
	f := newBasicFlow(t, m, st, func(o *flow.Options) { o.MaxRounds = 5 })

	res, err := f.Run(context.Background(), core.NewSession("multi"), "add milk then mark it done")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, "Added and completed buy milk.", res.Answer)

	for _, req := range m.Requests() {
		assert.Len(t, req.Tools, 4, "every ask within budget carries the catalog")
	}

	items, _ := st.inner.List(context.Background())
	require.Len(t, items, 1)
	assert.True(t, items[0].Done)
}

func TestFlow_RoundBudgetExhausted(t *testing.T) {
	st := newSpyStore()
	call := func(id string) model.Step {
		return model.Reply(testutil.ToolCalls(testutil.Call(id, "get_list", nil)))
	}
	m := model.NewScriptedModel(
		call("c1"),
		call("c2"),
		model.Reply(testutil.Answer("Here is what I found so far.")),
	)
	f := newBasicFlow(t, m, st, func(o *flow.Options) { o.MaxRounds = 2 })

	res, err := f.Run(context.Background(), core.NewSession("budget"), "keep listing")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, flow.StateDone, res.State)
	assert.Equal(t, "Here is what I found so far.", res.Answer)

	reqs := m.Requests()
	require.Len(t, reqs, 3)
	assert.Empty(t, reqs[2].Tools)
}

// unansweredCalls returns the ids of assistant tool calls in contents that no
// tool turn answers.
func unansweredCalls(contents []core.Content) []string {
	answered := map[string]bool{}
	for _, c := range contents {
		for _, r := range c.FunctionResponses() {
			answered[r.ID] = true
		}
	}
	var open []string
	for _, c := range contents {
		if c.Role != core.RoleAssistant {
			continue
		}
		for _, call := range c.FunctionCalls() {
			if !answered[call.ID] {
				open = append(open, call.ID)
			}
		}
	}
	return open
}

func TestFlow_FinalReplyToolCallsAreDropped(t *testing.T) {
	st := newSpyStore()
	m := model.NewScriptedModel(
		model.Reply(testutil.ToolCalls(testutil.Call("c1", "get_list", nil))),
		model.Reply(core.Content{Role: core.RoleAssistant, Parts: []core.Part{
			core.TextPart{Text: "Your list is empty."},
			core.FunctionCallPart{FunctionCall: testutil.Call("c2", "add_item", map[string]any{"description": "x"})},
		}}),
		model.Reply(testutil.Answer("Nothing to do.")),
	)
	f := newBasicFlow(t, m, st, func(o *flow.Options) { o.FinalWithTools = true })
	sess := core.NewSession("final")

	res, err := f.Run(context.Background(), sess, "list")
	require.NoError(t, err)
	assert.Equal(t, flow.StateDone, res.State)
	assert.Equal(t, "Your list is empty.", res.Answer)
	assert.Equal(t, []string{"list"}, st.Calls())
	assert.Len(t, m.Requests()[1].Tools, 4)

	last := res.Turns[len(res.Turns)-1]
	assert.Equal(t, core.RoleAssistant, last.Role)
	assert.False(t, last.HasFunctionCalls())

	_, err = f.Run(context.Background(), sess, "thanks")
	require.NoError(t, err)
	reqs := m.Requests()
	require.Len(t, reqs, 3)
	assert.Empty(t, unansweredCalls(reqs[2].Contents))
}

func TestFlow_ProviderErrorAborts(t *testing.T) {
	st := newSpyStore()
	m := model.NewScriptedModel(
		model.Reply(testutil.ToolCalls(testutil.Call("c1", "add_item", map[string]any{"description": "buy milk"}))),
		model.Fail(errors.New("connection refused")),
		model.Reply(testutil.Answer("Your list has buy milk.")),
	)
	f := newBasicFlow(t, m, st)
	sess := core.NewSession("fail")

	res, err := f.Run(context.Background(), sess, "add buy milk")
	require.Error(t, err)

	var pe *core.ProviderError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, flow.StateAwaitingFinal, res.State)
	assert.Len(t, res.Turns, 4, "turns appended before the failure stay in the session")
	assert.Equal(t, 4, sess.Len())

	_, err = f.Run(context.Background(), sess, "what is on my list?")
	require.NoError(t, err)
	reqs := m.Requests()
	require.Len(t, reqs, 3)
	assert.Empty(t, unansweredCalls(reqs[2].Contents))
}

type fatalStore struct{ spyStore }

func (f *fatalStore) Add(context.Context, string) (string, error) {
	return "", &core.StoreError{Op: "insert", Err: errors.New("disk full")}
}

func TestFlow_StoreErrorAborts(t *testing.T) {
	m := model.NewScriptedModel(
		model.Reply(testutil.ToolCalls(
			testutil.Call("c1", "add_item", map[string]any{"description": "a"}),
			testutil.Call("c2", "add_item", map[string]any{"description": "b"}),
		)),
		model.Reply(testutil.Answer("I could not reach the list.")),
	)
	f := newBasicFlow(t, m, &fatalStore{})
	sess := core.NewSession("store")

	res, err := f.Run(context.Background(), sess, "add a and b")
	var se *core.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, flow.StateDispatchingTools, res.State)
	assert.Empty(t, res.ToolResults)
	assert.Equal(t, []string{flow.AbortedResult, flow.AbortedResult}, testutil.ToolResults(res.Turns))
	assert.Equal(t, 1, m.Calls())

	_, err = f.Run(context.Background(), sess, "try again")
	require.NoError(t, err)
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, unansweredCalls(reqs[1].Contents))
}

// cancelStore cancels the run's context from inside the first insert.
type cancelStore struct {
	spyStore
	cancel context.CancelFunc
}

func (c *cancelStore) Add(ctx context.Context, _ string) (string, error) {
	c.cancel()
	return "", ctx.Err()
}

func TestFlow_CancelDuringDispatchClosesCalls(t *testing.T) {
	m := model.NewScriptedModel(
		model.Reply(testutil.ToolCalls(
			testutil.Call("c1", "add_item", map[string]any{"description": "a"}),
			testutil.Call("c2", "get_list", nil),
		)),
		model.Reply(testutil.Answer("ok")),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newBasicFlow(t, m, &cancelStore{cancel: cancel})
	sess := core.NewSession("cancel-dispatch")

	res, err := f.Run(ctx, sess, "add a")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{flow.AbortedResult, flow.AbortedResult}, testutil.ToolResults(res.Turns))
	assert.Empty(t, unansweredCalls(sess.Turns()))
}

func TestFlow_SessionHistoryAccumulates(t *testing.T) {
	st := newSpyStore()
	m := model.NewScriptedModel(
		model.Reply(testutil.Answer("first")),
		model.Reply(testutil.Answer("second")),
	)
	f := newBasicFlow(t, m, st)
	sess := core.NewSession("history")

	_, err := f.Run(context.Background(), sess, "one")
	require.NoError(t, err)
	res, err := f.Run(context.Background(), sess, "two")
	require.NoError(t, err)

	assert.Len(t, res.Turns, 3)
	assert.Equal(t, 6, sess.Len())
	assert.Len(t, m.Requests()[1].Contents, 5, "second run sees the first run's turns")
}

func TestFlow_InstructionTemplate(t *testing.T) {
	m := model.NewScriptedModel(model.Reply(testutil.Answer("ok")))
	reg, err := tool.NewRegistry(nil)
	require.NoError(t, err)

	f := flow.New(m, reg, func(o *flow.Options) {
		o.Instruction = flow.NewInstructionFromText("schema={{.schema}} session={{.session_id}}")
		o.InstructionVars = map[string]any{"schema": "todos"}
	})

	res, err := f.Run(context.Background(), core.NewSession("tpl"), "hi")
	require.NoError(t, err)
	assert.Equal(t, "schema=todos session=tpl", res.Turns[0].Text())
}

func TestFlow_InstructionProviderError(t *testing.T) {
	m := model.NewScriptedModel()
	reg, _ := tool.NewRegistry(nil)
	f := flow.New(m, reg, func(o *flow.Options) {
		o.Instruction = flow.NewInstructionFromProvider(flow.InstructionFunc(func(context.Context, *core.Session) (string, error) {
			return "", errors.New("no instruction")
		}))
	})

	_, err := f.Run(context.Background(), core.NewSession("ip"), "hi")
	assert.Error(t, err)
	assert.Equal(t, 0, m.Calls())
}

func TestFlow_NoInstructionSkipsSystemTurn(t *testing.T) {
	m := model.NewScriptedModel(model.Reply(testutil.Answer("ok")))
	reg, _ := tool.NewRegistry(nil)

	res, err := flow.New(m, reg).Run(context.Background(), core.NewSession("plain"), "hi")
	require.NoError(t, err)
	require.Len(t, res.Turns, 2)
	assert.Equal(t, core.RoleUser, res.Turns[0].Role)
}

func TestFlow_CancelledContext(t *testing.T) {
	m := model.NewScriptedModel(model.Reply(testutil.Answer("never")))
	f := newBasicFlow(t, m, newSpyStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Run(ctx, core.NewSession("cancel"), "hi")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Calls())
}

func TestFlow_OnToolResultCallback(t *testing.T) {
	m := model.NewScriptedModel(
		model.Reply(testutil.ToolCalls(testutil.Call("c1", "get_list", nil))),
		model.Reply(testutil.Answer("done")),
	)
	f := newBasicFlow(t, m, newSpyStore())

	var seen []string
	_, err := f.Run(context.Background(), core.NewSession("cb"), "list", func(o *flow.RunOptions) {
		o.OnToolResult = func(r tool.Result) { seen = append(seen, r.Name) }
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"get_list"}, seen)
}

func TestFlow_MaxRoundsFloor(t *testing.T) {
	reg, _ := tool.NewRegistry(nil)
	f := flow.New(model.NewScriptedModel(), reg, func(o *flow.Options) { o.MaxRounds = 0 })
	assert.Equal(t, 1, f.MaxRounds())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "AWAITING_MODEL", flow.StateAwaitingModel.String())
	assert.Equal(t, "DISPATCHING_TOOLS", flow.StateDispatchingTools.String())
	assert.Equal(t, "AWAITING_FINAL", flow.StateAwaitingFinal.String())
	assert.Equal(t, "DONE", flow.StateDone.String())
	assert.Equal(t, "UNKNOWN", flow.State(42).String())
}
