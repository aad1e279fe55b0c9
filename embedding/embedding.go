package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/todomesh/core"
)

// DefaultDimensions is the vector size used when none is configured.
const DefaultDimensions = 1024

// Embedder converts text into vectors of a fixed dimensionality.
type Embedder interface {
	// Embed returns the vector for the full text (query-time lookups).
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedDocument returns the representative vector stored for an item.
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the fixed vector length.
	Dimensions() int
}

// Chunk splits text on sentence-terminal punctuation, trimming every chunk
// and discarding empty ones.
func Chunk(text string) []string {
	parts := strings.FieldsFunc(strings.TrimSpace(text), func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks
}

// normalizeQuery replaces escaped newlines with spaces before a query embed.
func normalizeQuery(text string) string {
	r := strings.NewReplacer(`\n`, " ", "\n", " ")
	return strings.TrimSpace(r.Replace(text))
}

// CheckDimensions returns a ProviderError when vec does not have dims entries.
func CheckDimensions(provider string, vec []float32, dims int) error {
	if len(vec) != dims {
		return core.NewProviderError(provider, "embed", fmt.Errorf("expected %d dimensions, got %d", dims, len(vec)))
	}
	return nil
}

// CosineDistance returns 1 - cosine similarity. Zero vectors are treated as
// maximally distant (1).
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
