package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/bizrag/internal/conversation"
)

const recentConversations = 10

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    ConversationStore
	Pipeline Asker
	Version  string
}

// NewMCPServer creates an MCP server with the bizrag tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"bizrag",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("bizrag answers questions about company employees, departments and financials."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a question about the company data. When conversation_id is given, the question and answer are recorded in that conversation."),
			mcp.WithString("question", mcp.Description("Natural-language question"), mcp.Required()),
			mcp.WithNumber("conversation_id", mcp.Description("Optional conversation to record the exchange in")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("list_conversations",
			mcp.WithDescription("List stored conversations, most recent first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of conversations (default 20)")),
		),
		mcpListConversations(deps),
	)

	s.AddTool(
		mcp.NewTool("get_conversation",
			mcp.WithDescription("Return the messages of a conversation in order."),
			mcp.WithNumber("conversation_id", mcp.Description("Conversation id"), mcp.Required()),
		),
		mcpGetConversation(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"conversations://recent",
			"Recent Conversations",
			mcp.WithResourceDescription("Last 10 conversations (titles only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil || question == "" {
			return mcpError("question is required"), nil
		}

		convID := uint(req.GetInt("conversation_id", 0))
		if convID > 0 {
			if _, err := deps.Store.AddMessage(ctx, convID, conversation.RoleUser, question); err != nil {
				if errors.Is(err, conversation.ErrNotFound) {
					return mcpError(fmt.Sprintf("conversation %d not found", convID)), nil
				}
				return mcpError(fmt.Sprintf("failed to record question: %v", err)), nil
			}
		}

		answer, err := deps.Pipeline.Ask(ctx, question)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		if convID > 0 {
			if _, err := deps.Store.AddMessage(ctx, convID, conversation.RoleAssistant, answer.Text); err != nil {
				return mcpError(fmt.Sprintf("answer generated but failed to record: %v", err)), nil
			}
		}

		return mcpText(answer.Text), nil
	}
}

func mcpListConversations(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 200 {
			limit = 200
		}

		convs, err := deps.Store.ListConversations(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing conversations failed: %v", err)), nil
		}
		if len(convs) > limit {
			convs = convs[:limit]
		}

		b, err := json.Marshal(summarize(convs))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal conversations: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetConversation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("conversation_id", 0)
		if id <= 0 {
			return mcpError("conversation_id is required"), nil
		}

		msgs, err := deps.Store.Messages(ctx, uint(id))
		if err != nil {
			if errors.Is(err, conversation.ErrNotFound) {
				return mcpError(fmt.Sprintf("conversation %d not found", id)), nil
			}
			return mcpError(fmt.Sprintf("reading conversation failed: %v", err)), nil
		}

		type messageResult struct {
			Role      conversation.Role `json:"role"`
			Content   string            `json:"content"`
			Timestamp string            `json:"timestamp"`
		}
		results := make([]messageResult, len(msgs))
		for i, m := range msgs {
			results[i] = messageResult{
				Role:      m.Role,
				Content:   m.Content,
				Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal messages: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		convs, err := deps.Store.ListConversations(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}
		if len(convs) > recentConversations {
			convs = convs[:recentConversations]
		}

		b, err := json.Marshal(summarize(convs))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal conversations: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func summarize(convs []conversation.Conversation) []conversationSummary {
	out := make([]conversationSummary, len(convs))
	for i, c := range convs {
		title := c.Title
		if utf8.RuneCountInString(title) > 200 {
			runes := []rune(title)
			title = string(runes[:200]) + "..."
		}
		out[i] = conversationSummary{
			ID:        c.ID,
			UUID:      c.UUID,
			Title:     title,
			StartTime: c.StartTime.UTC().Format(time.RFC3339),
		}
	}
	return out
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
