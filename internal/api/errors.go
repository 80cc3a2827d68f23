package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/bizrag/internal/conversation"
)

// apiError is a client-facing failure with a fixed status code.
type apiError struct {
	status  int
	errType string
	msg     string
}

func (e *apiError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &apiError{status: http.StatusBadRequest, errType: "invalid_request_error", msg: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &apiError{status: http.StatusNotFound, errType: "not_found_error", msg: fmt.Sprintf(format, args...)}
}

// handlerFunc is an http.HandlerFunc that reports failures as errors.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts h to an http.HandlerFunc and maps its error to a response.
// Anything that is not a client error is logged with the route and answered
// with 500.
func handle(logger *slog.Logger, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		var ae *apiError
		switch {
		case errors.As(err, &ae):
			httpError(w, ae.status, ae.errType, "%s", ae.msg)
		case errors.Is(err, conversation.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
		case errors.Is(err, conversation.ErrInvalidRole):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		default:
			logger.Error("request failed",
				"method", r.Method,
				"route", routePattern(r),
				"error", err,
			)
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
		}
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
