package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/internal/testutil"
	"github.com/hupe1980/todomesh/store"
	"github.com/stretchr/testify/assert"
)

// Interface compliance (compile-time assertions)
var _ store.Repository = (*InMemoryStore)(nil)

func TestInMemoryStore_Repository(t *testing.T) {
	testutil.RunRepositoryTests(t, func(*testing.T) store.Repository { return NewInMemoryStore() })
}

func TestInMemoryStore_DuplicateID(t *testing.T) {
	m := NewInMemoryStore()
	ctx := context.Background()
	assert.NoError(t, m.Insert(ctx, core.Item{ID: "1"}))

	err := m.Insert(ctx, core.Item{ID: "1"})
	var se *core.StoreError
	assert.True(t, errors.As(err, &se))
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	m := NewInMemoryStore()
	ctx := context.Background()
	_ = m.Insert(ctx, core.Item{ID: "1", Embedding: []float32{1, 0}})

	items, _ := m.List(ctx)
	items[0].Embedding[0] = 42
	items[0].Done = true

	again, _ := m.List(ctx)
	assert.Equal(t, float32(1), again[0].Embedding[0])
	assert.False(t, again[0].Done)
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewInMemoryStore().List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
