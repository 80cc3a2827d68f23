package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/bizrag/internal/api"
	"github.com/kalambet/bizrag/internal/config"
	"github.com/kalambet/bizrag/internal/render"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question without starting the server",
	Long: `Answer a single question against the indexed company data.

Examples:
  bizrag ask "What is the Engineering budget?"
  bizrag ask --sources "Who reports to Jane Smith?"
  bizrag ask --html "Show Q1 2023 revenue by department"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		showSources, _ := cmd.Flags().GetBool("sources")
		asHTML, _ := cmd.Flags().GetBool("html")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, appOptions{warm: true, progress: stderr})
		if err != nil {
			return err
		}
		defer a.Close()

		answer, err := a.pipeline.Ask(ctx, question)
		if err != nil {
			return err
		}

		text := answer.Text
		if asHTML {
			text, err = render.New().HTML(answer.Text)
			if err != nil {
				return err
			}
		}
		fmt.Fprintln(stdout, text)

		if showSources {
			fmt.Fprintln(stderr)
			printStatus("Query type", "%s", answer.QueryType)
			printStatus("Took", "%s", answer.Duration.Round(time.Millisecond))
			for i, src := range answer.Sources {
				printStatus(fmt.Sprintf("Source %d", i+1), "%s", src)
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().Bool("sources", false, "print the query type and retrieved sources")
	askCmd.Flags().Bool("html", false, "print the answer as sanitised HTML")
}

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the vector index from the data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		printStep("Indexing...")
		a, err := openApp(ctx, appOptions{reindex: force, progress: stderr})
		if err != nil {
			return err
		}
		defer a.Close()

		if a.stats.Skipped {
			printSuccess("Index already up to date (%s chunks); use --force to rebuild", humanize.Comma(int64(a.stats.Chunks)))
			return nil
		}
		printSuccess("Indexed %s documents as %s chunks", humanize.Comma(int64(a.stats.Documents)), humanize.Comma(int64(a.stats.Chunks)))
		return nil
	},
}

func init() {
	indexCmd.Flags().Bool("force", false, "rebuild even if the index matches the data")
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Serve bizrag as a Model Context Protocol server on stdin/stdout.

Tools: ask, list_conversations, get_conversation.
Resources: conversations://recent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, appOptions{conversations: true, warm: true, progress: os.Stderr})
		if err != nil {
			return err
		}
		defer a.Close()

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:    a.conversations,
			Pipeline: a.pipeline,
			Version:  version,
		})
		a.logger.Info("MCP server started (stdio transport)")
		if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

// --- conversations ---

type conversationSummary struct {
	ID        uint   `json:"id"`
	UUID      string `json:"uuid"`
	Title     string `json:"title"`
	StartTime string `json:"start_time"`
}

type conversationMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	HTML      string `json:"html"`
	Timestamp string `json:"timestamp"`
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations on a running server",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		convs, err := listConversations(cmd.Context(), client)
		if err != nil {
			return err
		}
		if limit > 0 && len(convs) > limit {
			convs = convs[:limit]
		}

		if asJSON {
			return printJSON(convs)
		}
		if len(convs) == 0 {
			fmt.Fprintln(stdout, "No conversations found.")
			return nil
		}
		for _, c := range convs {
			fmt.Fprintf(stdout, "%s  %s  %s\n",
				colorize(colorCyan, fmt.Sprintf("%4d", c.ID)),
				c.StartTime,
				c.Title,
			)
		}
		return nil
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseConversationID(args[0])
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		msgs, err := getConversation(cmd.Context(), client, id)
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(msgs)
		}
		if len(msgs) == 0 {
			fmt.Fprintln(stdout, "No messages yet.")
			return nil
		}
		for _, m := range msgs {
			printMessage(m.Role, m.Timestamp, m.Content)
		}
		return nil
	},
}

var conversationsNewCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Create a conversation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var title string
		if len(args) == 1 {
			title = args[0]
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		conv, err := createConversation(cmd.Context(), client, title)
		if err != nil {
			return err
		}
		printSuccess("Created conversation %d: %s", conv.ID, conv.Title)
		return nil
	},
}

var conversationsChatCmd = &cobra.Command{
	Use:   "chat <id> <message>",
	Short: "Send a message to a conversation and print the answer",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseConversationID(args[0])
		if err != nil {
			return err
		}
		message := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), fmt.Sprintf("/api/conversation/%d/chat", id), map[string]string{"message": message})
		if err != nil {
			return err
		}
		var out struct {
			Response string `json:"response"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		fmt.Fprintln(stdout, out.Response)
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseConversationID(args[0])
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), fmt.Sprintf("/api/conversation/%d", id))
		if err != nil {
			return err
		}
		var out map[string]string
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Deleted conversation %d", id)
		return nil
	},
}

func init() {
	conversationsListCmd.Flags().Int("limit", 20, "maximum number of conversations to list")
	conversationsListCmd.Flags().Bool("json", false, "print JSON")
	conversationsShowCmd.Flags().Bool("json", false, "print JSON")
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsNewCmd)
	conversationsCmd.AddCommand(conversationsChatCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
}

func parseConversationID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid conversation id %q", s)
	}
	return uint(id), nil
}

func listConversations(ctx context.Context, c *apiClient) ([]conversationSummary, error) {
	resp, err := c.get(ctx, "/api/conversations")
	if err != nil {
		return nil, err
	}
	var out struct {
		Conversations []conversationSummary `json:"conversations"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func getConversation(ctx context.Context, c *apiClient, id uint) ([]conversationMessage, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/api/conversation/%d", id))
	if err != nil {
		return nil, err
	}
	var out struct {
		Conversation []conversationMessage `json:"conversation"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.Conversation, nil
}

func createConversation(ctx context.Context, c *apiClient, title string) (conversationSummary, error) {
	var body any
	if title != "" {
		body = map[string]string{"title": title}
	}
	resp, err := c.post(ctx, "/api/conversation", body)
	if err != nil {
		return conversationSummary{}, err
	}
	var out conversationSummary
	if err := decodeJSON(resp, &out); err != nil {
		return conversationSummary{}, err
	}
	return out, nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Fprintf(stdout, "# %s\n", config.ConfigFilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value in the config file.\n\nValid keys:\n  " +
		strings.Join(config.ValidKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
