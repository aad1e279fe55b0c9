// Package todomesh provides a high-level façade over the todo item store, the
// tool catalogs and the conversation orchestrator. Most applications interact
// with this package by:
//  1. Creating a TodoMesh via New() with a model (optionally overriding the
//     default in-memory repository, hash embedder and basic catalog)
//  2. Sending free-text instructions through Handle, one session per
//     conversation
//  3. Presenting the returned item list, re-read from the store after the run
//
// All defaults are safe for local development and testing; production
// deployments supply store/sqlstore, an OpenAI embedder and a structured logger.
package todomesh

import (
	"context"
	"fmt"

	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/embedding"
	"github.com/hupe1980/todomesh/flow"
	"github.com/hupe1980/todomesh/logging"
	"github.com/hupe1980/todomesh/memory"
	"github.com/hupe1980/todomesh/model"
	"github.com/hupe1980/todomesh/session"
	"github.com/hupe1980/todomesh/store"
	"github.com/hupe1980/todomesh/todotools"
	"github.com/hupe1980/todomesh/tool"
)

// Options configures the TodoMesh instance.
type Options struct {
	// Repository persists items (defaults to an in-memory repository).
	Repository store.Repository
	// Embedder computes item and query vectors (defaults to HashEmbedder).
	Embedder embedding.Embedder

	// Catalog names the tool catalog: basic, assistant or query.
	Catalog string
	// Documents backs the assistant file tools (optional).
	Documents todotools.Documents
	// QueryExecutor backs the query catalog; Schema is shown to the model.
	QueryExecutor todotools.QueryExecutor
	Schema        string

	// MaxRounds overrides the catalog's default budget when > 0.
	MaxRounds      int
	FinalWithTools bool
	Stream         bool
	TokenCounter   flow.TokenCounter

	// Sessions holds one history per conversation (defaults to in-memory).
	Sessions *session.InMemoryStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// TodoMesh is the high-level façade aggregating store, catalog and flow.
type TodoMesh struct {
	store    *store.Store
	catalog  todotools.Catalog
	registry *tool.Registry
	flow     *flow.Flow
	sessions *session.InMemoryStore
	logger   logging.Logger
}

// Reply is the outcome of one instruction.
type Reply struct {
	SessionID string
	Answer    string
	// Items is the list re-read from the store after the run.
	Items  []core.Item
	Result *flow.Result
}

// New creates a TodoMesh driving m. Any unset service is initialized with an
// in-memory implementation.
func New(m model.Model, optFns ...func(o *Options)) (*TodoMesh, error) {
	opts := Options{
		Repository: memory.NewInMemoryStore(),
		Embedder:   embedding.NewHashEmbedder(embedding.DefaultDimensions),
		Catalog:    "basic",
		Sessions:   session.NewInMemoryStore(),
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if m == nil {
		return nil, fmt.Errorf("todomesh: model is required")
	}
	logger := logging.OrNoOp(opts.Logger)

	st := store.New(opts.Repository, opts.Embedder, func(o *store.Options) { o.Logger = logger })

	catalog, err := todotools.ByName(opts.Catalog, st, opts.QueryExecutor, opts.Documents, opts.Schema)
	if err != nil {
		return nil, err
	}
	reg, err := catalog.Registry(func(o *tool.RegistryOptions) { o.Logger = logger })
	if err != nil {
		return nil, err
	}

	rounds := catalog.MaxRounds
	if opts.MaxRounds > 0 {
		rounds = opts.MaxRounds
	}

	f := flow.New(m, reg, func(o *flow.Options) {
		o.Name = catalog.Name
		o.MaxRounds = rounds
		o.Instruction = flow.NewInstructionFromText(catalog.Instruction)
		o.InstructionVars = catalog.Vars
		o.FinalWithTools = opts.FinalWithTools
		o.Stream = opts.Stream
		o.TokenCounter = opts.TokenCounter
		o.Logger = logger
	})

	return &TodoMesh{
		store:    st,
		catalog:  catalog,
		registry: reg,
		flow:     f,
		sessions: opts.Sessions,
		logger:   logger,
	}, nil
}

// Handle runs one instruction in the named session and returns the model's
// answer together with the current list.
func (t *TodoMesh) Handle(ctx context.Context, sessionID, instruction string, optFns ...func(o *flow.RunOptions)) (*Reply, error) {
	sess := t.sessions.Get(sessionID)

	res, err := t.flow.Run(ctx, sess, instruction, optFns...)
	if err != nil {
		return nil, err
	}

	items, err := t.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return &Reply{SessionID: sess.ID, Answer: res.Answer, Items: items, Result: res}, nil
}

// Items returns the current list in storage order.
func (t *TodoMesh) Items(ctx context.Context) ([]core.Item, error) { return t.store.List(ctx) }

// Store exposes the item store.
func (t *TodoMesh) Store() *store.Store { return t.store }

// Registry exposes the tool registry of the configured catalog.
func (t *TodoMesh) Registry() *tool.Registry { return t.registry }

// CatalogName returns the name of the configured catalog.
func (t *TodoMesh) CatalogName() string { return t.catalog.Name }

// Sessions exposes the session registry.
func (t *TodoMesh) Sessions() *session.InMemoryStore { return t.sessions }
