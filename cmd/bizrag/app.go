package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kalambet/bizrag/internal/composer"
	"github.com/kalambet/bizrag/internal/config"
	"github.com/kalambet/bizrag/internal/conversation"
	"github.com/kalambet/bizrag/internal/dataset"
	"github.com/kalambet/bizrag/internal/llm"
	"github.com/kalambet/bizrag/internal/ollama"
	"github.com/kalambet/bizrag/internal/pipeline"
	"github.com/kalambet/bizrag/internal/retrieval"
	"github.com/kalambet/bizrag/internal/storage"
)

// appOptions selects which parts of the stack a command needs.
type appOptions struct {
	// reindex forces a full index rebuild.
	reindex bool
	// conversations opens the conversation database.
	conversations bool
	// warm loads the generation model before the first question.
	warm bool
	// progress receives model pull and index build progress.
	progress io.Writer
}

// app is the wired application shared by start, ask, index and mcp.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	ollama        *ollama.Client
	model         *llm.Model
	index         *storage.Store
	retriever     *retrieval.Retriever
	pipeline      *pipeline.Pipeline
	conversations *conversation.Store
	stats         retrieval.BuildStats

	closers []func() error
}

// openApp loads the configuration and wires the app from it.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, opts)
}

// newApp loads data, makes sure the models are available, builds or reuses
// the vector index and wires the question pipeline. Any failure aborts
// startup.
func newApp(ctx context.Context, cfg config.Config, opts appOptions) (_ *app, err error) {
	if opts.progress == nil {
		opts.progress = io.Discard
	}

	logger, closeLog := config.SetupLogger(cfg.Log.File, config.ParseLogLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, closers: []func() error{closeLog}}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	mode, err := dataset.ParseMode(cfg.RAG.DocumentMode)
	if err != nil {
		return nil, err
	}
	data, err := dataset.Load(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading data from %s: %w", cfg.Data.Dir, err)
	}
	docs := data.Documents(mode)
	logger.Info("dataset loaded",
		"employees", len(data.Employees()),
		"departments", len(data.Departments()),
		"financials", len(data.Financials()),
		"documents", len(docs),
		"mode", mode,
	)

	a.model, err = llm.NewModel(cfg, logger)
	if err != nil {
		return nil, err
	}

	a.ollama = ollama.New(cfg.Ollama.BaseURL)
	models := []string{cfg.LLM.Model, cfg.LLM.EmbedModel}
	var warm func(context.Context) error
	if opts.warm {
		warm = a.model.Warm
	}
	if err := ollama.EnsureReady(ctx, a.ollama, models, warm, opts.progress); err != nil {
		return nil, err
	}

	a.index, err = storage.Open(cfg.Index.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	a.closers = append(a.closers, a.index.Close)

	lcEmbedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	embedder := retrieval.NewEmbedder(lcEmbedder, cfg.LLM.EmbedModel)
	vectors := retrieval.NewSQLiteStore(a.index)

	indexer := retrieval.NewIndexer(embedder, vectors, retrieval.IndexerOptions{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
	}, logger)
	a.stats, err = indexer.Build(ctx, docs, opts.reindex)
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}
	if a.stats.Skipped {
		fmt.Fprintf(opts.progress, "index up to date (%s chunks)\n", humanize.Comma(int64(a.stats.Chunks)))
	} else {
		fmt.Fprintf(opts.progress, "indexed %s documents into %s chunks in %s\n",
			humanize.Comma(int64(a.stats.Documents)), humanize.Comma(int64(a.stats.Chunks)), a.stats.Duration.Round(time.Millisecond))
	}

	a.retriever = retrieval.NewRetriever(embedder, vectors)

	comp, err := composer.New(cfg.RAG.MaxContextTokens, composer.Templates{
		General:    cfg.Prompts.General,
		Financial:  cfg.Prompts.Financial,
		Employee:   cfg.Prompts.Employee,
		Department: cfg.Prompts.Department,
	})
	if err != nil {
		return nil, fmt.Errorf("prompt templates: %w", err)
	}
	a.pipeline = pipeline.New(a.retriever, a.model, comp, cfg.RAG.TopK, logger)

	if opts.conversations {
		a.conversations, err = conversation.Open(cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.conversations.Close)
	}

	return a, nil
}

// ragHealth reports whether questions can currently be answered.
func (a *app) ragHealth(ctx context.Context) error {
	if !a.ollama.IsRunning(ctx) {
		return ollama.ErrNotRunning
	}
	n, err := a.retriever.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("vector index is empty")
	}
	return nil
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
