package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/kalambet/bizrag/internal/config"
)

// NewEmbedder creates a langchaingo embedder backed by the configured Ollama
// embedding model.
func NewEmbedder(cfg config.Config) (embeddings.Embedder, error) {
	l, err := ollama.New(
		ollama.WithModel(cfg.LLM.EmbedModel),
		ollama.WithServerURL(cfg.Ollama.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	e, err := embeddings.NewEmbedder(l)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}
	return e, nil
}
