// Package api exposes conversations and the question-answering pipeline over
// HTTP and MCP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/bizrag/internal/conversation"
	"github.com/kalambet/bizrag/internal/pipeline"
	"github.com/kalambet/bizrag/internal/render"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Asker answers a question.
type Asker interface {
	Ask(ctx context.Context, question string) (pipeline.Answer, error)
}

// ConversationStore abstracts conversation persistence for the API layer.
type ConversationStore interface {
	CreateConversation(ctx context.Context, title string) (conversation.Conversation, error)
	AddMessage(ctx context.Context, conversationID uint, role conversation.Role, content string) (conversation.Message, error)
	GetConversation(ctx context.Context, id uint) (conversation.Conversation, error)
	Messages(ctx context.Context, conversationID uint) ([]conversation.Message, error)
	ListConversations(ctx context.Context) ([]conversation.Conversation, error)
	DeleteConversation(ctx context.Context, id uint) error
	Ping(ctx context.Context) error
}

// Deps holds the dependencies of the HTTP handler.
type Deps struct {
	Store    ConversationStore
	Pipeline Asker
	Renderer *render.Renderer
	// RAGHealth reports whether the index and the model server are usable.
	// Nil means always healthy.
	RAGHealth func(ctx context.Context) error
	// Token enables bearer auth on /api routes when non-empty.
	Token       string
	Logger      *slog.Logger
	SlowRequest time.Duration
}

// NewHandler builds the HTTP API. Health endpoints are never authenticated.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Renderer == nil {
		deps.Renderer = render.New()
	}
	if deps.SlowRequest == 0 {
		deps.SlowRequest = 10 * time.Second
	}
	h := &handlers{deps: deps, log: deps.Logger}

	r := chi.NewRouter()
	r.Use(Recoverer(deps.Logger))
	r.Use(RequestLogger(deps.Logger, deps.SlowRequest))

	r.Get("/health", handle(h.log, h.health))
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handle(h.log, h.health))

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(deps.Token))

			r.Post("/conversation", handle(h.log, h.createConversation))
			r.Get("/conversation/{id}", handle(h.log, h.getConversation))
			r.Delete("/conversation/{id}", handle(h.log, h.deleteConversation))
			r.Post("/conversation/{id}/chat", handle(h.log, h.chat))
			r.Get("/conversations", handle(h.log, h.listConversations))
		})
	})

	return r
}

type handlers struct {
	deps Deps
	log  *slog.Logger
}
