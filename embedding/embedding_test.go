package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hupe1980/todomesh/core"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var (
	_ Embedder = (*HashEmbedder)(nil)
	_ Embedder = (*OpenAIEmbedder)(nil)
)

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{"buy milk", "then eggs"}, Chunk(" buy milk. then eggs. "))
	assert.Equal(t, []string{"a", "b", "c"}, Chunk("a!b?..c"))
	assert.Empty(t, Chunk(" ... "))
}

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0, CosineDistance(a, a), 1e-9)
	assert.InDelta(t, 1, CosineDistance(a, b), 1e-9)
	assert.InDelta(t, 2, CosineDistance(a, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, CosineDistance(a, []float32{0, 0}))
	assert.Equal(t, 1.0, CosineDistance(a, []float32{1}))
}

func TestHashEmbedder_FixedDimensions(t *testing.T) {
	h := NewHashEmbedder(64)
	for _, text := range []string{"buy milk", "", "walk the dog. feed the cat"} {
		vec, err := h.EmbedDocument(context.Background(), text)
		require.NoError(t, err)
		assert.Len(t, vec, 64)
	}
	assert.Equal(t, DefaultDimensions, NewHashEmbedder(0).Dimensions())
}

func TestHashEmbedder_ParaphraseIsCloser(t *testing.T) {
	h := NewHashEmbedder(DefaultDimensions)
	ctx := context.Background()
	milk, _ := h.EmbedDocument(ctx, "buy milk")
	dog, _ := h.EmbedDocument(ctx, "walk the dog")
	q, _ := h.Embed(ctx, "the milk thing")

	assert.Less(t, CosineDistance(q, milk), CosineDistance(q, dog))
}

func TestHashEmbedder_DocumentUsesFirstChunk(t *testing.T) {
	h := NewHashEmbedder(DefaultDimensions)
	ctx := context.Background()
	doc, _ := h.EmbedDocument(ctx, "buy milk. walk the dog")
	first, _ := h.Embed(ctx, "buy milk")
	assert.InDelta(t, 0, CosineDistance(doc, first), 1e-6)
}

func TestHashEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8).Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := openai.NewClient(
		option.WithBaseURL(srv.URL+"/v1/"),
		option.WithAPIKey("test"),
		option.WithMaxRetries(0),
	)
	return &client
}

func TestOpenAIEmbedder_EmbedDocumentBatchesChunks(t *testing.T) {
	var gotInput []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		var body struct {
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotInput = body.Input
		assert.Equal(t, 3, body.Dimensions)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[
			{"object":"embedding","index":1,"embedding":[0,1,0]},
			{"object":"embedding","index":0,"embedding":[1,0,0]}],
			"usage":{"prompt_tokens":1,"total_tokens":1}}`))
	})

	e := NewOpenAIEmbedderFromClient(client, func(o *OpenAIOptions) { o.Dimensions = 3 })
	vec, err := e.EmbedDocument(context.Background(), "buy milk. eggs")
	require.NoError(t, err)
	assert.Equal(t, []string{"buy milk", "eggs"}, gotInput)
	assert.Equal(t, []float32{1, 0, 0}, vec)
}

func TestOpenAIEmbedder_WrongDimensions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1,0]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`))
	})
	e := NewOpenAIEmbedderFromClient(client, func(o *OpenAIOptions) { o.Dimensions = 3 })
	_, err := e.Embed(context.Background(), "milk")

	var pe *core.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "embed", pe.Op)
}

func TestOpenAIEmbedder_ServiceError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad","type":"invalid_request_error"}}`))
	})
	_, err := NewOpenAIEmbedderFromClient(client).Embed(context.Background(), "milk")

	var pe *core.ProviderError
	assert.True(t, errors.As(err, &pe))
}

func TestOpenAIEmbedder_EmptyData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[],"usage":{"prompt_tokens":0,"total_tokens":0}}`))
	})
	_, err := NewOpenAIEmbedderFromClient(client).Embed(context.Background(), "milk")

	var pe *core.ProviderError
	assert.True(t, errors.As(err, &pe))
}
