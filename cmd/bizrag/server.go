package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kalambet/bizrag/internal/api"
	"github.com/kalambet/bizrag/internal/config"
	"github.com/kalambet/bizrag/internal/ollama"
	"github.com/kalambet/bizrag/internal/render"
	"github.com/kalambet/bizrag/internal/retrieval"
	"github.com/kalambet/bizrag/internal/storage"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"serve"},
	Short:   "Start the bizrag API server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		reindex, _ := cmd.Flags().GetBool("reindex")
		port, _ := cmd.Flags().GetInt("port")
		host, _ := cmd.Flags().GetString("host")
		return runServer(reindex, host, port)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running bizrag server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bizrag system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("reindex", false, "rebuild the vector index even if it is up to date")
	startCmd.Flags().Int("port", 0, "listen port (default from server.port)")
	startCmd.Flags().String("host", "0.0.0.0", "listen address")
}

func pidFilePath(indexDir string) string {
	return filepath.Join(indexDir, "bizrag.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(reindex bool, host string, port int) error {
	fmt.Fprintf(os.Stderr, "bizrag version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	// Refuse to start twice on the same port.
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	pidPath := pidFilePath(cfg.Index.Dir)
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("bizrag is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("something is already listening on port %d", port)
		return fmt.Errorf("port %d already in use", port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{reindex: reindex, conversations: true, warm: true, progress: os.Stderr})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			printWarning("closing resources: %v", err)
		}
	}()

	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	if cfg.Server.APIToken != "" {
		a.logger.Info("API bearer token required on /api routes")
	}

	handler := api.NewHandler(api.Deps{
		Store:     a.conversations,
		Pipeline:  a.pipeline,
		Renderer:  render.New(),
		RAGHealth: a.ragHealth,
		Token:     cfg.Server.APIToken,
		Logger:    a.logger,
	})

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		printSuccess("bizrag listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Index.Dir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("bizrag is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop bizrag (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to bizrag (PID %d)", pid)
	return nil
}

type healthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}
	client := &http.Client{Timeout: 2 * time.Second}
	ctx := context.Background()

	// Server.
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/api/health", cfg.Server.Port))
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var h healthStatus
		decodeErr := json.NewDecoder(resp.Body).Decode(&h)
		resp.Body.Close()
		switch {
		case resp.StatusCode != http.StatusOK || decodeErr != nil:
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		default:
			printStatus("Server", "running on port %d (%s)", cfg.Server.Port, h.Status)
			printStatus("  database", "%s", h.Components["database"])
			printStatus("  rag", "%s", h.Components["rag"])
		}
	}

	// Ollama.
	oc := ollama.New(cfg.Ollama.BaseURL)
	if v, err := oc.Version(ctx); err != nil {
		printStatus("Ollama", "not running")
	} else {
		printStatus("Ollama", "running at %s (v%s)", oc.BaseURL(), v)
	}
	printStatus("Model", "%s%s", cfg.LLM.Model, modelState(ctx, oc, cfg.LLM.Model))
	printStatus("Embed model", "%s%s", cfg.LLM.EmbedModel, modelState(ctx, oc, cfg.LLM.EmbedModel))

	// Index.
	printIndexStatus(ctx, cfg.Index.Dir)

	printStatus("Data dir", "%s", cfg.Data.Dir)
	printStatus("Database", "%s", cfg.Database.URL)
	return nil
}

func modelState(ctx context.Context, oc *ollama.Client, name string) string {
	if !oc.IsRunning(ctx) {
		return ""
	}
	if oc.HasModel(ctx, name) {
		return " (installed)"
	}
	return " (not pulled)"
}

func printIndexStatus(ctx context.Context, indexDir string) {
	if _, err := os.Stat(filepath.Join(indexDir, storage.DBFile)); err != nil {
		printStatus("Index", "not built")
		return
	}
	st, err := storage.Open(indexDir)
	if err != nil {
		printStatus("Index", "unreadable: %v", err)
		return
	}
	defer st.Close()

	chunks, err := retrieval.NewSQLiteStore(st).Count(ctx)
	if err != nil {
		printStatus("Index", "unreadable: %v", err)
		return
	}
	built := "unknown"
	if raw, err := st.GetMeta(ctx, storage.MetaBuiltAt); err == nil {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			built = humanize.Time(t)
		}
	}
	printStatus("Index", "%s chunks, built %s", humanize.Comma(int64(chunks)), built)
}
