package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/embedding"
	"github.com/hupe1980/todomesh/logging"
)

// Result phrases returned by the store operations. They are written for the
// language model, which relays them to the user.
const (
	addedFormat     = "%s has been added to the list"
	DoneMessage     = "Done, can I do anything else for you?"
	NotFoundMessage = "Sorry I can't find the item you looking for."
)

// Repository is the persistence contract used by Store. Nearest-neighbor
// methods order items by cosine distance ascending and act on the top-1 item;
// they return a nil Match (and nil error) when the repository is empty. The
// *Nearest mutators must resolve and mutate atomically.
type Repository interface {
	Insert(ctx context.Context, item core.Item) error
	Nearest(ctx context.Context, vec []float32) (*core.Match, error)
	MarkNearestDone(ctx context.Context, vec []float32) (*core.Match, error)
	DeleteNearest(ctx context.Context, vec []float32) (*core.Match, error)
	List(ctx context.Context) ([]core.Item, error)
}

// Options configures a Store.
type Options struct {
	Logger logging.Logger
}

// Store owns all todo item persistence.
type Store struct {
	repo     Repository
	embedder embedding.Embedder
	logger   logging.Logger
}

// New creates a Store on top of repo using embedder for all vectors.
func New(repo Repository, embedder embedding.Embedder, optFns ...func(o *Options)) *Store {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{repo: repo, embedder: embedder, logger: logging.OrNoOp(opts.Logger)}
}

// Dimensions returns the embedding size enforced for stored items.
func (s *Store) Dimensions() int { return s.embedder.Dimensions() }

// Add embeds description, persists a new open item and returns a confirmation.
func (s *Store) Add(ctx context.Context, description string) (string, error) {
	vec, err := s.embedder.EmbedDocument(ctx, description)
	if err != nil {
		return "", err
	}
	if err := embedding.CheckDimensions("embedding", vec, s.embedder.Dimensions()); err != nil {
		return "", err
	}

	item := core.Item{ID: core.NewID(), Description: description, Embedding: vec}
	if err := s.repo.Insert(ctx, item); err != nil {
		return "", err
	}

	s.logger.Info("store.add", "id", item.ID, "description", description)

	return fmt.Sprintf(addedFormat, description), nil
}

// FindClosest returns the stored item nearest to query, or nil when the store
// is empty. Even a poor match is returned.
func (s *Store) FindClosest(ctx context.Context, query string) (*core.Match, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	m, err := s.repo.Nearest(ctx, vec)
	if err != nil {
		return nil, err
	}
	s.logMatch("store.find_closest", query, m)
	return m, nil
}

// MarkDone flips the closest item to done. A missing item is reported through
// the returned phrase, not as an error.
func (s *Store) MarkDone(ctx context.Context, description string) (string, error) {
	vec, err := s.embedder.Embed(ctx, description)
	if err != nil {
		return "", err
	}
	m, err := s.repo.MarkNearestDone(ctx, vec)
	if err != nil {
		return "", err
	}
	s.logMatch("store.mark_done", description, m)
	if m == nil {
		return NotFoundMessage, nil
	}
	return DoneMessage, nil
}

// Remove deletes the closest item. A missing item is reported through the
// returned phrase, not as an error.
func (s *Store) Remove(ctx context.Context, description string) (string, error) {
	vec, err := s.embedder.Embed(ctx, description)
	if err != nil {
		return "", err
	}
	m, err := s.repo.DeleteNearest(ctx, vec)
	if err != nil {
		return "", err
	}
	s.logMatch("store.remove", description, m)
	if m == nil {
		return NotFoundMessage, nil
	}
	return DoneMessage, nil
}

// List returns all items in storage order.
func (s *Store) List(ctx context.Context) ([]core.Item, error) {
	return s.repo.List(ctx)
}

// ListJSON returns the list serialized the way it is shown to the model.
func (s *Store) ListJSON(ctx context.Context) (string, error) {
	items, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	if items == nil {
		items = []core.Item{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", &core.StoreError{Op: "list", Err: err}
	}
	return string(b), nil
}

func (s *Store) logMatch(op, query string, m *core.Match) {
	if m == nil {
		s.logger.Info(op, "query", query, "found", false)
		return
	}
	s.logger.Info(op, "query", query, "found", true, "id", m.Item.ID, "description", m.Item.Description, "distance", m.Distance)
}
