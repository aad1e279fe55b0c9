package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vec builds a 3-dimensional unit-ish test vector.
func vec(x, y, z float32) []float32 { return []float32{x, y, z} }

// RunRepositoryTests exercises the store.Repository contract. newRepo must
// return an empty repository per call.
func RunRepositoryTests(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("EmptyBoundary", func(t *testing.T) {
		r := newRepo(t)
		for name, fn := range map[string]func(context.Context, []float32) (*core.Match, error){
			"nearest": r.Nearest,
			"done":    r.MarkNearestDone,
			"delete":  r.DeleteNearest,
		} {
			m, err := fn(ctx, vec(1, 0, 0))
			require.NoError(t, err, name)
			assert.Nil(t, m, name)
		}
		items, err := r.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("InsertListOrder", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Insert(ctx, core.Item{ID: "b", Description: "second-inserted-first", Embedding: vec(0, 1, 0)}))
		require.NoError(t, r.Insert(ctx, core.Item{ID: "a", Description: "then this", Embedding: vec(1, 0, 0)}))

		first, err := r.List(ctx)
		require.NoError(t, err)
		second, err := r.List(ctx)
		require.NoError(t, err)

		require.Len(t, first, 2)
		assert.Equal(t, "b", first[0].ID)
		assert.Equal(t, "a", first[1].ID)
		assert.Equal(t, first, second)
		assert.Equal(t, vec(0, 1, 0), first[0].Embedding)
	})

	t.Run("NearestPicksClosest", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Insert(ctx, core.Item{ID: "x", Description: "x", Embedding: vec(1, 0, 0)}))
		require.NoError(t, r.Insert(ctx, core.Item{ID: "y", Description: "y", Embedding: vec(0, 1, 0)}))

		m, err := r.Nearest(ctx, vec(0.1, 0.9, 0))
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "y", m.Item.ID)
		assert.Less(t, m.Distance, 0.5)

		// No threshold: an orthogonal query still returns a match.
		m, err = r.Nearest(ctx, vec(0, 0, 1))
		require.NoError(t, err)
		require.NotNil(t, m)
	})

	t.Run("MarkNearestDone", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Insert(ctx, core.Item{ID: "x", Description: "x", Embedding: vec(1, 0, 0)}))
		require.NoError(t, r.Insert(ctx, core.Item{ID: "y", Description: "y", Embedding: vec(0, 1, 0)}))

		m, err := r.MarkNearestDone(ctx, vec(1, 0.1, 0))
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "x", m.Item.ID)
		assert.True(t, m.Item.Done)

		items, _ := r.List(ctx)
		assert.True(t, items[0].Done)
		assert.False(t, items[1].Done)
		assert.Equal(t, vec(1, 0, 0), items[0].Embedding, "embedding must not change on done")
	})

	t.Run("DeleteNearest", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Insert(ctx, core.Item{ID: "x", Description: "x", Embedding: vec(1, 0, 0)}))
		require.NoError(t, r.Insert(ctx, core.Item{ID: "y", Description: "y", Embedding: vec(0, 1, 0)}))

		m, err := r.DeleteNearest(ctx, vec(0, 1, 0))
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "y", m.Item.ID)

		items, _ := r.List(ctx)
		require.Len(t, items, 1)
		assert.Equal(t, "x", items[0].ID)
	})

	t.Run("ConcurrentDeleteNeverDoubleDeletes", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Insert(ctx, core.Item{ID: "only", Description: "only", Embedding: vec(1, 0, 0)}))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			deleted int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m, err := r.DeleteNearest(ctx, vec(1, 0, 0))
				if err != nil {
					t.Errorf("delete: %v", err)
					return
				}
				if m != nil {
					mu.Lock()
					deleted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, deleted)
	})
}
