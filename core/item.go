package core

import "github.com/google/uuid"

// Item is a single todo entry. Embedding is computed once from Description
// when the item is created and never recomputed.
type Item struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Done        bool      `json:"done"`
	Embedding   []float32 `json:"-"`
}

// Match is the result of a nearest-neighbor lookup. Lower Distance means more
// similar. No threshold is applied: the closest item is always authoritative.
type Match struct {
	Item     Item
	Distance float64
}

// NewID generates a new unique identifier for items.
func NewID() string { return uuid.NewString() }
