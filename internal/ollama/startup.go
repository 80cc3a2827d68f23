package ollama

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotRunning is returned by EnsureReady when the server is unreachable.
var ErrNotRunning = errors.New("Ollama is not running. Start it with: ollama serve")

// EnsureReady checks that Ollama is running and every model in models is
// available, pulling missing ones with progress written to w. When warm is
// non-nil it is called once afterwards so the first real request does not
// pay the model load; warm-up failures are reported but not fatal.
func EnsureReady(ctx context.Context, c *Client, models []string, warm func(context.Context) error, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return ErrNotRunning
	}

	for _, model := range models {
		if c.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		err := c.PullModel(ctx, model, func(p PullProgress) {
			if p.Total > 0 {
				pct := float64(p.Completed) / float64(p.Total) * 100
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
			} else {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}

	if warm == nil {
		return nil
	}
	fmt.Fprintln(w, "warming up...")
	warmCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if err := warm(warmCtx); err != nil {
		fmt.Fprintf(w, "warm-up failed (non-fatal): %v\n", err)
	} else {
		fmt.Fprintln(w, "warm")
	}
	return nil
}
