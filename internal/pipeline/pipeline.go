// Package pipeline answers questions by retrieving indexed context, filling
// a prompt template and calling the language model.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kalambet/bizrag/internal/composer"
	"github.com/kalambet/bizrag/internal/intent"
	"github.com/kalambet/bizrag/internal/retrieval"
)

var (
	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrEmptyAnswer is returned when the model produced no text.
	ErrEmptyAnswer = errors.New("model returned an empty answer")
)

// Retriever finds context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
}

// Generator completes a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Answer is the result of one question.
type Answer struct {
	Text      string
	QueryType intent.QueryType
	// Sources lists the source ids of the retrieved chunks, best first.
	Sources  []string
	Duration time.Duration
}

// Pipeline wires retrieval, prompt composition and generation. It holds no
// mutable state and is safe for concurrent use.
type Pipeline struct {
	retriever Retriever
	generator Generator
	composer  *composer.Composer
	topK      int
	logger    *slog.Logger
}

// New creates a Pipeline. topK controls how many chunks are retrieved
// (default 5 if <= 0).
func New(r Retriever, g Generator, c *composer.Composer, topK int, logger *slog.Logger) *Pipeline {
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{retriever: r, generator: g, composer: c, topK: topK, logger: logger}
}

// Ask runs the full pipeline:
//  1. classify the question to pick a prompt template
//  2. retrieve the top-K chunks
//  3. fill the template with the context and question
//  4. generate and normalise the answer
//
// Any failure aborts the question; no partial answer is returned.
func (p *Pipeline) Ask(ctx context.Context, question string) (Answer, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	qt := intent.Classify(question)

	chunks, err := p.retriever.Retrieve(ctx, question, p.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving context: %w", err)
	}

	prompt, err := p.composer.Compose(qt, question, chunks)
	if err != nil {
		return Answer{}, fmt.Errorf("composing prompt: %w", err)
	}

	raw, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	text := NormalizeCurrency(raw)
	if text == "" {
		return Answer{}, ErrEmptyAnswer
	}

	sources := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		sources = append(sources, ch.SourceID)
	}
	ans := Answer{
		Text:      text,
		QueryType: qt,
		Sources:   sources,
		Duration:  time.Since(start),
	}
	p.logger.Debug("question answered",
		"query_type", qt,
		"chunks", len(chunks),
		"prompt_len", len(prompt),
		"duration_ms", ans.Duration.Milliseconds(),
	)
	return ans, nil
}

var dollarAmount = regexp.MustCompile(`\$(\d+)`)

// NormalizeCurrency groups the digits of dollar amounts ("$1234" becomes
// "$1,234") and trims surrounding whitespace. Applying it twice gives the
// same result as applying it once.
func NormalizeCurrency(s string) string {
	out := dollarAmount.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.ParseInt(m[1:], 10, 64)
		if err != nil {
			return m
		}
		return "$" + humanize.Comma(n)
	})
	return strings.TrimSpace(out)
}
