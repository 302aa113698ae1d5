package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	cache  Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. cache may be nil when the
// in-process backend is used.
func NewHealthHandler(cache Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{cache: cache, logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is
// alive. A configured Redis that fails to answer degrades the status but the
// endpoint still returns 200, since queries fall through to the exchange.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.WarnContext(r.Context(), "handler: cache ping failed",
				slog.String("error", err.Error()),
			)
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
