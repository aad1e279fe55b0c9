package embedding

import (
	"context"
	"fmt"

	"github.com/hupe1980/todomesh/core"
	"github.com/openai/openai-go"
)

// OpenAIOptions configures the OpenAI embeddings adapter.
type OpenAIOptions struct {
	Model      openai.EmbeddingModel
	Dimensions int
}

// OpenAIEmbedder wraps the OpenAI embeddings endpoint behind Embedder.
type OpenAIEmbedder struct {
	client *openai.Client
	opts   OpenAIOptions
}

// NewOpenAIEmbedder creates an embedder using the official client configured
// from the environment (OPENAI_API_KEY, OPENAI_BASE_URL).
func NewOpenAIEmbedder(optFns ...func(o *OpenAIOptions)) *OpenAIEmbedder {
	client := openai.NewClient()
	return NewOpenAIEmbedderFromClient(&client, optFns...)
}

// NewOpenAIEmbedderFromClient creates an embedder from an existing client.
func NewOpenAIEmbedderFromClient(client *openai.Client, optFns ...func(o *OpenAIOptions)) *OpenAIEmbedder {
	opts := OpenAIOptions{
		Model:      openai.EmbeddingModelTextEmbedding3Large,
		Dimensions: DefaultDimensions,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &OpenAIEmbedder{client: client, opts: opts}
}

// Dimensions implements Embedder.
func (e *OpenAIEmbedder) Dimensions() int { return e.opts.Dimensions }

// Embed implements Embedder with a single-input request.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.create(ctx, openai.EmbeddingNewParamsInputUnion{OfString: openai.String(normalizeQuery(text))})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocument implements Embedder. All chunks are embedded in one batch and
// the first chunk's vector is returned.
func (e *OpenAIEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	chunks := Chunk(text)
	if len(chunks) == 0 {
		chunks = []string{text}
	}
	vecs, err := e.create(ctx, openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: chunks})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) create(ctx context.Context, input openai.EmbeddingNewParamsInputUnion) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      input,
		Model:      e.opts.Model,
		Dimensions: openai.Int(int64(e.opts.Dimensions)),
	})
	if err != nil {
		return nil, core.NewProviderError("openai", "embed", err)
	}
	if len(resp.Data) == 0 {
		return nil, core.NewProviderError("openai", "embed", fmt.Errorf("no embeddings returned"))
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, core.NewProviderError("openai", "embed", fmt.Errorf("embedding index %d out of range", d.Index))
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		if err := CheckDimensions("openai", vec, e.opts.Dimensions); err != nil {
			return nil, err
		}
		out[d.Index] = vec
	}
	if out[0] == nil {
		return nil, core.NewProviderError("openai", "embed", fmt.Errorf("missing embedding for first input"))
	}
	return out, nil
}
