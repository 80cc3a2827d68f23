package retrieval

import (
	"context"
	"time"
)

// VectorStore is the interface for vector storage and similarity search
// backends. The current implementation uses SQLite with brute-force cosine
// similarity, which is plenty for a few thousand chunks.
type VectorStore interface {
	// Replace atomically swaps the whole index for records and stores meta
	// alongside it. Readers never observe a partially built index.
	Replace(ctx context.Context, records []Record, meta map[string]string) error

	// Search returns the top-K most similar records, most similar first.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Meta returns an index metadata value, or storage.ErrNotFound.
	Meta(ctx context.Context, key string) (string, error)
}

// Record represents a row in the vector store.
type Record struct {
	ID         string
	SourceID   string
	SourceType string
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
