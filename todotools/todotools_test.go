package todotools

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/embedding"
	"github.com/hupe1980/todomesh/internal/testutil"
	"github.com/hupe1980/todomesh/memory"
	"github.com/hupe1980/todomesh/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() *store.Store {
	return store.New(memory.NewInMemoryStore(), embedding.NewHashEmbedder(128))
}

type fakeDocs struct {
	text    string
	written string
}

func (d *fakeDocs) Read(context.Context) (string, error) { return d.text, nil }

func (d *fakeDocs) WriteReport(_ context.Context, text string) (string, error) {
	d.written = text
	return "I've saved the report", nil
}

type fakeExec struct{ queries []string }

func (e *fakeExec) ExecuteQuery(_ context.Context, q string) (string, error) {
	e.queries = append(e.queries, q)
	return `{"count":1}`, nil
}

func TestBasic_Catalog(t *testing.T) {
	c := Basic(newStore())
	reg, err := c.Registry()
	require.NoError(t, err)

	assert.Equal(t, []string{"add_item", "mark_as_done", "remove_item", "get_list"}, reg.Names())
	assert.Equal(t, 1, c.MaxRounds)

	defs := reg.Definitions()
	assert.Equal(t, []string{"description"}, defs[0].Function.Parameters["required"])
	_, hasRequired := defs[3].Function.Parameters["required"]
	assert.False(t, hasRequired, "get_list takes no required arguments")
}

func TestBasic_ScenarioFlow(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	reg, err := Basic(st).Registry()
	require.NoError(t, err)

	res, err := reg.Dispatch(ctx, testutil.Call("1", "add_item", map[string]any{"description": "buy milk"}))
	require.NoError(t, err)
	assert.Equal(t, "buy milk has been added to the list", res.Content)

	res, err = reg.Dispatch(ctx, testutil.Call("2", "mark_as_done", map[string]any{"description": "the milk", "extra": true}))
	require.NoError(t, err)
	assert.Equal(t, store.DoneMessage, res.Content)

	items, _ := st.List(ctx)
	require.Len(t, items, 1)
	assert.True(t, items[0].Done)

	res, err = reg.Dispatch(ctx, testutil.Call("3", "remove_item", map[string]any{"description": "milk"}))
	require.NoError(t, err)
	assert.Equal(t, store.DoneMessage, res.Content)

	res, err = reg.Dispatch(ctx, testutil.Call("4", "get_list", nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", res.Content)

	res, err = reg.Dispatch(ctx, testutil.Call("5", "remove_item", map[string]any{"description": "milk"}))
	require.NoError(t, err)
	assert.Equal(t, store.NotFoundMessage, res.Content)
}

func TestAssistant_Catalog(t *testing.T) {
	ctx := context.Background()
	docs := &fakeDocs{text: "blood test results"}
	c := Assistant(newStore(), docs)
	reg, err := c.Registry()
	require.NoError(t, err)

	assert.Equal(t, AssistantMaxRounds, c.MaxRounds)
	assert.Equal(t, []string{"addItem", "setAsDone", "removeItem", "findItems", "readFile", "writeFile"}, reg.Names())

	res, err := reg.Dispatch(ctx, testutil.Call("1", "addItem", map[string]any{"content": "book a doctor visit"}))
	require.NoError(t, err)
	assert.Equal(t, "book a doctor visit has been added to the list", res.Content)

	res, err = reg.Dispatch(ctx, testutil.Call("2", "readFile", nil))
	require.NoError(t, err)
	assert.Equal(t, "blood test results", res.Content)

	res, err = reg.Dispatch(ctx, testutil.Call("3", "writeFile", map[string]any{"description": "summary"}))
	require.NoError(t, err)
	assert.Equal(t, "I've saved the report", res.Content)
	assert.Equal(t, "summary", docs.written)

	// addItem reads "content", not "description".
	res, err = reg.Dispatch(ctx, testutil.Call("4", "addItem", map[string]any{"description": "x"}))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "error:")
}

func TestAssistant_WithoutDocuments(t *testing.T) {
	reg, err := Assistant(newStore(), nil).Registry()
	require.NoError(t, err)
	assert.Equal(t, []string{"addItem", "setAsDone", "removeItem", "findItems"}, reg.Names())

	res, err := reg.Dispatch(context.Background(), testutil.Call("1", "readFile", nil))
	require.NoError(t, err)
	assert.Equal(t, core.NotFoundMessage, res.Content)
}

func TestQuery_Catalog(t *testing.T) {
	exec := &fakeExec{}
	c := Query(exec, "CREATE TABLE todos (...)")
	reg, err := c.Registry()
	require.NoError(t, err)

	assert.Contains(t, c.Instruction, "{{.schema}}")
	assert.Equal(t, "CREATE TABLE todos (...)", c.Vars["schema"])

	res, err := reg.Dispatch(context.Background(), testutil.Call("1", "execute_query", map[string]any{"query": "SELECT 1"}))
	require.NoError(t, err)
	assert.Equal(t, `{"count":1}`, res.Content)
	assert.Equal(t, []string{"SELECT 1"}, exec.queries)
}

func TestByName(t *testing.T) {
	st := newStore()
	for name, want := range map[string]string{"": "basic", "basic": "basic", "assistant": "assistant", "query": "query"} {
		c, err := ByName(name, st, &fakeExec{}, nil, "schema")
		require.NoError(t, err, name)
		assert.Equal(t, want, c.Name)
	}

	_, err := ByName("query", st, nil, nil, "")
	assert.Error(t, err)

	_, err = ByName("nope", st, nil, nil, "")
	assert.Error(t, err)
}

type failingExec struct{}

func (failingExec) ExecuteQuery(context.Context, string) (string, error) {
	return "", &core.StoreError{Op: "execute", Err: errors.New("syntax error")}
}

func TestQuery_StoreErrorIsFatal(t *testing.T) {
	reg, err := Query(failingExec{}, "").Registry()
	require.NoError(t, err)

	_, err = reg.Dispatch(context.Background(), testutil.Call("1", "execute_query", map[string]any{"query": "SELEC"}))
	var se *core.StoreError
	assert.True(t, errors.As(err, &se))
}
