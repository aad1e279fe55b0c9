package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// stopWords are dropped before hashing so that filler words in a vague
// reference ("the milk thing") do not dilute the content words.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "my": {}, "to": {}, "of": {}, "for": {}, "and": {},
	"on": {}, "in": {}, "at": {}, "is": {}, "it": {}, "that": {}, "this": {},
	"thing": {}, "things": {}, "item": {}, "please": {}, "some": {},
}

// HashEmbedder is a deterministic bag-of-words embedder using feature hashing.
// Vectors are L2 normalized so cosine distance reflects shared content words.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder with the given dimensionality
// (DefaultDimensions when dims <= 0).
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions implements Embedder.
func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed implements Embedder.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.vector(normalizeQuery(text)), nil
}

// EmbedDocument implements Embedder using the first sentence chunk.
func (h *HashEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chunks := Chunk(text)
	if len(chunks) == 0 {
		return h.vector(text), nil
	}
	return h.vector(chunks[0]), nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		vec[f.Sum32()%uint32(h.dims)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, skip := stopWords[f]; skip {
			continue
		}
		out = append(out, stem(f))
	}
	return out
}

// stem strips a few common English suffixes so plural and verb forms collide.
func stem(w string) string {
	for _, suffix := range []string{"ing", "es", "s"} {
		if len(w) > len(suffix)+2 && strings.HasSuffix(w, suffix) {
			return strings.TrimSuffix(w, suffix)
		}
	}
	return w
}
