package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/bizrag/internal/conversation"
)

type createConversationRequest struct {
	Title string `json:"title"`
}

type conversationSummary struct {
	ID        uint   `json:"id"`
	UUID      string `json:"uuid"`
	Title     string `json:"title"`
	StartTime string `json:"start_time,omitempty"`
}

type chatRequest struct {
	Message *string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
	HTML     string `json:"html"`
}

type messageView struct {
	Role      conversation.Role `json:"role"`
	Content   string            `json:"content"`
	HTML      string            `json:"html"`
	Timestamp string            `json:"timestamp"`
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func conversationID(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid conversation id %q", raw)
	}
	return uint(id), nil
}

func (h *handlers) createConversation(w http.ResponseWriter, r *http.Request) error {
	var req createConversationRequest
	if err := decodeBody(w, r, &req); err != nil {
		return err
	}

	conv, err := h.deps.Store.CreateConversation(r.Context(), req.Title)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, conversationSummary{ID: conv.ID, UUID: conv.UUID, Title: conv.Title})
	return nil
}

// chat records the user's message, answers it and records the answer. The
// user message stays stored when answering fails.
func (h *handlers) chat(w http.ResponseWriter, r *http.Request) error {
	id, err := conversationID(r)
	if err != nil {
		return err
	}

	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		return err
	}
	if req.Message == nil || strings.TrimSpace(*req.Message) == "" {
		return badRequest("message is required")
	}
	question := *req.Message

	ctx := r.Context()
	if _, err := h.deps.Store.AddMessage(ctx, id, conversation.RoleUser, question); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return notFound("conversation %d not found", id)
		}
		return err
	}

	answer, err := h.deps.Pipeline.Ask(ctx, question)
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	html, err := h.deps.Renderer.HTML(answer.Text)
	if err != nil {
		return err
	}

	if _, err := h.deps.Store.AddMessage(ctx, id, conversation.RoleAssistant, answer.Text); err != nil {
		return err
	}

	h.log.Info("question answered",
		"conversation_id", id,
		"query_type", answer.QueryType,
		"sources", len(answer.Sources),
		"duration_ms", answer.Duration.Milliseconds(),
	)
	writeJSON(w, http.StatusOK, chatResponse{Response: answer.Text, HTML: html})
	return nil
}

func (h *handlers) getConversation(w http.ResponseWriter, r *http.Request) error {
	id, err := conversationID(r)
	if err != nil {
		return err
	}

	msgs, err := h.deps.Store.Messages(r.Context(), id)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return notFound("conversation %d not found", id)
		}
		return err
	}

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		html, err := h.deps.Renderer.HTML(m.Content)
		if err != nil {
			return err
		}
		views = append(views, messageView{
			Role:      m.Role,
			Content:   m.Content,
			HTML:      html,
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation":   views,
		"conversationId": id,
	})
	return nil
}

func (h *handlers) deleteConversation(w http.ResponseWriter, r *http.Request) error {
	id, err := conversationID(r)
	if err != nil {
		return err
	}
	if err := h.deps.Store.DeleteConversation(r.Context(), id); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return notFound("conversation %d not found", id)
		}
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	return nil
}

func (h *handlers) listConversations(w http.ResponseWriter, r *http.Request) error {
	convs, err := h.deps.Store.ListConversations(r.Context())
	if err != nil {
		return err
	}

	out := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationSummary{
			ID:        c.ID,
			UUID:      c.UUID,
			Title:     c.Title,
			StartTime: c.StartTime.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
	return nil
}
