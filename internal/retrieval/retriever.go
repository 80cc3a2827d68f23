package retrieval

import (
	"context"
	"fmt"
)

// ContextChunk is a retrieved context fragment with its similarity score.
type ContextChunk struct {
	ID         string
	SourceID   string
	SourceType string
	Text       string
	Score      float32
}

// Retriever combines embedding and vector search to find relevant context.
// It is safe for concurrent use; the index it reads is only replaced
// wholesale by Indexer.Build.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve embeds the query and returns the top-K most similar context
// chunks, most similar first.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]ContextChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	return scoredToChunks(scored), nil
}

// Search returns only the texts of the top-K chunks, most similar first.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]string, error) {
	chunks, err := r.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts, nil
}

// Count returns the number of indexed chunks.
func (r *Retriever) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}

func scoredToChunks(scored []ScoredRecord) []ContextChunk {
	chunks := make([]ContextChunk, len(scored))
	for i, s := range scored {
		chunks[i] = ContextChunk{
			ID:         s.ID,
			SourceID:   s.SourceID,
			SourceType: s.SourceType,
			Text:       s.TextChunk,
			Score:      s.Score,
		}
	}
	return chunks
}
