package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/kalambet/bizrag/internal/dataset"
	"github.com/kalambet/bizrag/internal/storage"
)

// chunkNamespace scopes the name-based UUIDs of index records.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("bizrag:document_vectors"))

// IndexerOptions configures chunking.
type IndexerOptions struct {
	ChunkSize    int
	ChunkOverlap int
}

// BuildStats summarises an index build.
type BuildStats struct {
	Documents int
	Chunks    int
	// Skipped is true when the stored index already matched the inputs.
	Skipped  bool
	Duration time.Duration
}

// Indexer turns documents into stored vectors.
type Indexer struct {
	embedder *Embedder
	store    VectorStore
	splitter textsplitter.TextSplitter
	opts     IndexerOptions
	logger   *slog.Logger
}

// NewIndexer creates an Indexer that splits documents with a recursive
// character splitter sized by opts.
func NewIndexer(embedder *Embedder, store VectorStore, opts IndexerOptions, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		embedder: embedder,
		store:    store,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(opts.ChunkSize),
			textsplitter.WithChunkOverlap(opts.ChunkOverlap),
		),
		opts:   opts,
		logger: logger,
	}
}

// Build embeds docs and replaces the stored index with them. When the
// stored fingerprint matches the inputs and force is false, the existing
// vectors are kept and no embedding calls are made.
func (ix *Indexer) Build(ctx context.Context, docs []dataset.Document, force bool) (BuildStats, error) {
	start := time.Now()
	stats := BuildStats{Documents: len(docs)}
	fp := ix.Fingerprint(docs)

	if !force {
		stored, err := ix.store.Meta(ctx, storage.MetaFingerprint)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return stats, fmt.Errorf("reading index fingerprint: %w", err)
		}
		if err == nil && stored == fp {
			n, err := ix.store.Count(ctx)
			if err != nil {
				return stats, fmt.Errorf("counting vectors: %w", err)
			}
			if n > 0 {
				stats.Chunks = n
				stats.Skipped = true
				stats.Duration = time.Since(start)
				ix.logger.Info("index up to date", "chunks", n, "fingerprint", fp[:12])
				return stats, nil
			}
		}
	}

	var (
		texts   []string
		records []Record
	)
	for _, d := range docs {
		parts, err := ix.splitter.SplitText(d.Text)
		if err != nil {
			return stats, fmt.Errorf("splitting %s: %w", d.ID, err)
		}
		for i, p := range parts {
			if strings.TrimSpace(p) == "" {
				continue
			}
			texts = append(texts, p)
			records = append(records, Record{
				ID:         uuid.NewSHA1(chunkNamespace, []byte(d.ID+"#"+strconv.Itoa(i))).String(),
				SourceID:   d.ID,
				SourceType: d.Kind,
				TextChunk:  p,
			})
		}
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return stats, fmt.Errorf("embedding documents: %w", err)
	}
	now := time.Now().UTC()
	for i := range records {
		records[i].Embedding = vectors[i]
		records[i].CreatedAt = now
	}

	meta := map[string]string{
		storage.MetaFingerprint: fp,
		storage.MetaBuiltAt:     now.Format(time.RFC3339),
		storage.MetaEmbedModel:  ix.embedder.Model(),
	}
	if err := ix.store.Replace(ctx, records, meta); err != nil {
		return stats, fmt.Errorf("writing index: %w", err)
	}

	stats.Chunks = len(records)
	stats.Duration = time.Since(start)
	ix.logger.Info("index built",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

// Fingerprint hashes everything that determines the stored vectors: the
// document ids and texts, the embedding model and the chunk settings.
func (ix *Indexer) Fingerprint(docs []dataset.Document) string {
	h := sha256.New()
	fmt.Fprintf(h, "model=%s\nsize=%d\noverlap=%d\n", ix.embedder.Model(), ix.opts.ChunkSize, ix.opts.ChunkOverlap)
	for _, d := range docs {
		fmt.Fprintf(h, "%s\x00%s\x00", d.ID, d.Text)
	}
	return hex.EncodeToString(h.Sum(nil))
}
