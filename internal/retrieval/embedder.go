package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// QueryEmbedder is the part of a langchaingo embeddings.Embedder the index
// needs.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Embedder generates text embeddings with a named model.
type Embedder struct {
	model QueryEmbedder
	name  string
}

// NewEmbedder creates an Embedder over the given model.
func NewEmbedder(model QueryEmbedder, name string) *Embedder {
	return &Embedder{model: model, name: name}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.name }

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.model.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding text: empty vector from %s", e.name)
	}
	return vec, nil
}

// EmbedBatch returns embedding vectors for multiple texts concurrently.
// Returns nil (not error) for empty/nil input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // the model server handles few concurrent requests

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
