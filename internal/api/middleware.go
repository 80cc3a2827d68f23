package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"
)

// Recoverer turns a panicking handler into a 500 response.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic in handler",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", rec,
						"stack", string(debug.Stack()),
					)
					httpError(w, http.StatusInternalServerError, "api_error", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs every request at debug level, and at warn level when it
// took longer than slow.
func RequestLogger(logger *slog.Logger, slow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			attrs := []any{
				"method", r.Method,
				"route", routePattern(r),
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
			}
			if slow > 0 && elapsed > slow {
				logger.Warn("slow request", attrs...)
				return
			}
			logger.Debug("request", attrs...)
		})
	}
}
