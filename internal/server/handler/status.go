package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

// StatsSource exposes query cache counters.
type StatsSource interface {
	Stats() domain.CacheStats
}

// StatusHandler serves the backend status for the dashboard.
type StatusHandler struct {
	Mode         string
	CacheBackend string
	TTL          time.Duration
	TopN         int
	stats        StatsSource
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, cacheBackend string, ttl time.Duration, topN int, stats StatsSource) *StatusHandler {
	return &StatusHandler{
		Mode:         mode,
		CacheBackend: cacheBackend,
		TTL:          ttl,
		TopN:         topN,
		stats:        stats,
	}
}

// GetStatus responds with the current mode, cache settings and counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":          h.Mode,
		"cache_backend": h.CacheBackend,
		"ttl_seconds":   h.TTL.Seconds(),
		"top_n":         h.TopN,
		"cache":         h.stats.Stats(),
	})
}
