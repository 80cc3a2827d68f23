package api

import (
	"context"
	"net/http"
	"time"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"
)

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// health always answers 200; the body says which component is failing.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{
		Status: statusHealthy,
		Components: map[string]string{
			"database": statusHealthy,
			"rag":      statusHealthy,
		},
	}

	if err := h.deps.Store.Ping(ctx); err != nil {
		h.log.Error("database health check failed", "error", err)
		resp.Components["database"] = statusUnhealthy
		resp.Status = statusDegraded
	}
	if h.deps.RAGHealth != nil {
		if err := h.deps.RAGHealth(ctx); err != nil {
			h.log.Error("rag health check failed", "error", err)
			resp.Components["rag"] = statusUnhealthy
			resp.Status = statusDegraded
		}
	}

	writeJSON(w, http.StatusOK, resp)
	return nil
}
