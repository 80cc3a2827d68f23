// Package llm provides text generation and embeddings against Ollama using
// langchaingo.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/kalambet/bizrag/internal/config"
)

// Options are the sampling and reliability settings applied to every call.
type Options struct {
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	Stop          []string

	// Timeout bounds a single attempt. Zero means no per-attempt limit.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a failed call.
	MaxRetries int
	// RetryInterval is the first backoff delay; later delays grow
	// exponentially.
	RetryInterval time.Duration
}

// OptionsFromConfig maps the llm.* config section to Options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Temperature:   cfg.LLM.Temperature,
		TopP:          cfg.LLM.TopP,
		TopK:          cfg.LLM.TopK,
		RepeatPenalty: cfg.LLM.RepeatPenalty,
		Stop:          cfg.LLM.StopSequences,
		Timeout:       cfg.LLMTimeout(),
		MaxRetries:    cfg.LLM.MaxRetries,
		RetryInterval: 500 * time.Millisecond,
	}
}

// Model wraps a langchaingo LLM for single-prompt generation.
type Model struct {
	llm       llms.Model
	modelName string
	opts      Options
	logger    *slog.Logger
}

// NewModel creates an Ollama-backed model from configuration.
func NewModel(cfg config.Config, logger *slog.Logger) (*Model, error) {
	l, err := ollama.New(
		ollama.WithModel(cfg.LLM.Model),
		ollama.WithServerURL(cfg.Ollama.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return newModel(l, cfg.LLM.Model, OptionsFromConfig(cfg), logger), nil
}

func newModel(l llms.Model, name string, opts Options, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	return &Model{llm: l, modelName: name, opts: opts, logger: logger}
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.modelName
}

func (m *Model) callOptions() []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithTemperature(m.opts.Temperature),
		llms.WithTopP(m.opts.TopP),
		llms.WithTopK(m.opts.TopK),
		llms.WithRepetitionPenalty(m.opts.RepeatPenalty),
	}
	if len(m.opts.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(m.opts.Stop))
	}
	return opts
}

// Generate sends prompt to the model and returns the completion. Failed
// attempts are retried with exponential backoff up to MaxRetries times;
// cancellation of ctx and permanent failures stop retrying immediately.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	var (
		out     string
		attempt int
	)
	op := func() error {
		attempt++
		attemptCtx, cancel := m.attemptContext(ctx)
		defer cancel()

		start := time.Now()
		resp, err := llms.GenerateFromSinglePrompt(attemptCtx, m.llm, prompt, m.callOptions()...)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			m.logger.Warn("generation attempt failed",
				"model", m.modelName,
				"attempt", attempt,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err,
			)
			return err
		}
		m.logger.Debug("generation complete",
			"model", m.modelName,
			"attempt", attempt,
			"prompt_len", len(prompt),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		out = resp
		return nil
	}

	if err := backoff.Retry(op, m.backoff(ctx)); err != nil {
		return "", fmt.Errorf("generate with %s: %w", m.modelName, err)
	}
	return out, nil
}

// Warm sends a trivial prompt once, without retries, so the model is loaded
// before the first real request.
func (m *Model) Warm(ctx context.Context) error {
	_, err := llms.GenerateFromSinglePrompt(ctx, m.llm, "ping", llms.WithMaxTokens(1))
	return err
}

func (m *Model) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.Timeout > 0 {
		return context.WithTimeout(ctx, m.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (m *Model) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.RetryInterval
	b.MaxInterval = 10 * m.opts.RetryInterval
	b.MaxElapsedTime = 0
	retries := m.opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// isPermanent reports errors that another attempt cannot fix, such as a
// model that is not installed.
func isPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"not found", "invalid model", "unauthorized"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
