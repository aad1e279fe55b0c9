package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/embedding"
)

// InMemoryStore is a naive process-local Repository.
//
// Concurrency: protected by RWMutex. Nearest-neighbor mutators hold the write
// lock for both the lookup and the mutation, so two concurrent instructions
// can never resolve and mutate the same item twice.
type InMemoryStore struct {
	mu    sync.RWMutex
	items []core.Item
}

// NewInMemoryStore creates a new empty in-memory repository.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Insert appends a copy of item.
func (m *InMemoryStore) Insert(ctx context.Context, item core.Item) error {
	if err := ctx.Err(); err != nil {
		return &core.StoreError{Op: "insert", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.ID == item.ID {
			return &core.StoreError{Op: "insert", Err: fmt.Errorf("duplicate id %s", item.ID)}
		}
	}
	m.items = append(m.items, cloneItem(item))
	return nil
}

// Nearest returns the closest item without mutating anything.
func (m *InMemoryStore) Nearest(ctx context.Context, vec []float32) (*core.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.StoreError{Op: "nearest", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, dist := m.nearestLocked(vec)
	if idx < 0 {
		return nil, nil
	}
	return &core.Match{Item: cloneItem(m.items[idx]), Distance: dist}, nil
}

// MarkNearestDone flips the closest item to done.
func (m *InMemoryStore) MarkNearestDone(ctx context.Context, vec []float32) (*core.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.StoreError{Op: "mark_done", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, dist := m.nearestLocked(vec)
	if idx < 0 {
		return nil, nil
	}
	m.items[idx].Done = true
	return &core.Match{Item: cloneItem(m.items[idx]), Distance: dist}, nil
}

// DeleteNearest removes the closest item.
func (m *InMemoryStore) DeleteNearest(ctx context.Context, vec []float32) (*core.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.StoreError{Op: "delete", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, dist := m.nearestLocked(vec)
	if idx < 0 {
		return nil, nil
	}
	removed := m.items[idx]
	m.items = append(m.items[:idx], m.items[idx+1:]...)
	return &core.Match{Item: removed, Distance: dist}, nil
}

// List returns copies of all items in insertion order.
func (m *InMemoryStore) List(ctx context.Context) ([]core.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.StoreError{Op: "list", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Item, len(m.items))
	for i, it := range m.items {
		out[i] = cloneItem(it)
	}
	return out, nil
}

// nearestLocked returns the index of the closest item (first wins on ties) or
// -1 when empty. Caller must hold the lock.
func (m *InMemoryStore) nearestLocked(vec []float32) (int, float64) {
	best, bestDist := -1, 0.0
	for i, it := range m.items {
		d := embedding.CosineDistance(it.Embedding, vec)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

func cloneItem(it core.Item) core.Item {
	if it.Embedding != nil {
		vec := make([]float32, len(it.Embedding))
		copy(vec, it.Embedding)
		it.Embedding = vec
	}
	return it
}
