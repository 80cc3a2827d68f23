// Package composer fills prompt templates with retrieved context.
package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/kalambet/bizrag/internal/intent"
	"github.com/kalambet/bizrag/internal/retrieval"
)

const defaultMaxContextTokens = 3000

// Template slots every prompt must contain.
const (
	VarContext  = "context"
	VarQuestion = "question"
)

// Templates holds one template text per query type.
type Templates struct {
	General    string
	Financial  string
	Employee   string
	Department string
}

// Composer builds the final prompt from a template, retrieved chunks and
// the user question.
type Composer struct {
	MaxContextTokens int
	templates        map[intent.QueryType]prompts.PromptTemplate
}

// New parses the templates and creates a Composer with the given token
// budget for injected context. If maxContextTokens <= 0, the default (3000)
// is used. A template missing either slot is an error.
func New(maxContextTokens int, t Templates) (*Composer, error) {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	c := &Composer{
		MaxContextTokens: maxContextTokens,
		templates:        make(map[intent.QueryType]prompts.PromptTemplate, 4),
	}
	for qt, text := range map[intent.QueryType]string{
		intent.General:    t.General,
		intent.Financial:  t.Financial,
		intent.Employee:   t.Employee,
		intent.Department: t.Department,
	} {
		pt, err := parseTemplate(text)
		if err != nil {
			return nil, fmt.Errorf("%s prompt: %w", qt, err)
		}
		c.templates[qt] = pt
	}
	return c, nil
}

func parseTemplate(text string) (prompts.PromptTemplate, error) {
	for _, slot := range []string{VarContext, VarQuestion} {
		if !strings.Contains(text, "{"+slot+"}") {
			return prompts.PromptTemplate{}, fmt.Errorf("missing {%s} slot", slot)
		}
	}
	pt := prompts.PromptTemplate{
		Template:       text,
		InputVariables: []string{VarContext, VarQuestion},
		TemplateFormat: prompts.TemplateFormatFString,
	}
	if _, err := pt.Format(map[string]any{VarContext: "", VarQuestion: ""}); err != nil {
		return prompts.PromptTemplate{}, fmt.Errorf("invalid template: %w", err)
	}
	return pt, nil
}

// Compose selects the template for qt and substitutes the context block and
// question into it.
func (c *Composer) Compose(qt intent.QueryType, question string, chunks []retrieval.ContextChunk) (string, error) {
	pt, ok := c.templates[qt]
	if !ok {
		pt = c.templates[intent.General]
	}
	out, err := pt.Format(map[string]any{
		VarContext:  c.BuildContext(chunks),
		VarQuestion: strings.TrimSpace(question),
	})
	if err != nil {
		return "", fmt.Errorf("formatting %s prompt: %w", qt, err)
	}
	return out, nil
}

// BuildContext joins chunk texts, highest score first, while their estimated
// size fits MaxContextTokens. Chunks that would overflow the budget are
// skipped so a smaller lower-scored chunk can still be included.
func (c *Composer) BuildContext(chunks []retrieval.ContextChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	sorted := make([]retrieval.ContextChunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	const sep = "\n\n"
	remaining := c.MaxContextTokens
	var selected []string
	for _, ch := range sorted {
		text := strings.TrimSpace(ch.Text)
		if text == "" {
			continue
		}
		tokens := EstimateTokens(text + sep)
		if tokens > remaining {
			continue
		}
		selected = append(selected, text)
		remaining -= tokens
	}
	return strings.Join(selected, sep)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
