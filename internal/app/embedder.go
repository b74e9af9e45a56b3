package app

import (
	"context"
	"math"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"google.golang.org/genai"

	"github.com/nutrichat/nutrichat/internal/config"
	"github.com/nutrichat/nutrichat/internal/index"
)

// dimensionedEmbedder pins every embed call to the index's vector width.
// gemini-embedding-001 emits 3072 dimensions unless OutputDimensionality is
// requested; without this wrapper the index would reject every production
// vector. Providers whose options cannot request a width get their vectors
// truncated and re-normalized at this boundary, which is the documented
// reduction for Matryoshka embedding models.
type dimensionedEmbedder struct {
	inner ai.Embedder
	opts  any
}

func newDimensionedEmbedder(inner ai.Embedder, provider string) ai.Embedder {
	var opts any
	if provider == config.ProviderGemini {
		dim := int32(index.Dimensions)
		opts = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}
	return &dimensionedEmbedder{inner: inner, opts: opts}
}

func (e *dimensionedEmbedder) Name() string { return e.inner.Name() }

func (e *dimensionedEmbedder) Register(r api.Registry) { e.inner.Register(r) }

func (e *dimensionedEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	if req.Options == nil {
		req.Options = e.opts
	}
	resp, err := e.inner.Embed(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, emb := range resp.Embeddings {
		if len(emb.Embedding) > index.Dimensions {
			emb.Embedding = renormalize(emb.Embedding[:index.Dimensions])
		}
	}
	return resp, nil
}

// renormalize rescales a truncated vector to unit length so cosine distances
// stay comparable.
func renormalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
