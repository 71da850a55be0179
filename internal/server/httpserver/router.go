package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/docguard/internal/core/domain"
)

// HealthFunc reports whether the stored document is healthy.
type HealthFunc func(ctx context.Context) error

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Metrics serves GET /metrics. Nil disables the route.
	Metrics http.Handler

	// Health backs GET /healthz. Nil always reports healthy.
	Health HealthFunc

	// HealthTimeout bounds one health check. Default: 5s
	HealthTimeout time.Duration

	Logger *slog.Logger
}

// NewRouter creates the monitor router with middleware applied.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.HealthTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	mux := http.NewServeMux()
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		err := cfg.Health(ctx)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		case domain.IsDomainError(err, domain.ErrNoDocument.Code):
			writeJSON(w, http.StatusOK, map[string]string{"status": "empty"})
		default:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"code":   domain.GetErrorCode(err),
				"error":  err.Error(),
			})
		}
	})

	return Chain(mux, Recover(logger), RequestID(), AccessLog(logger))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
