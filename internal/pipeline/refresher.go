// Package pipeline runs the background jobs: keeping category snapshots warm
// and delivering the scheduled digest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

// SnapshotQuerier answers category queries through the cache.
// *service.QueryService satisfies it.
type SnapshotQuerier interface {
	Query(ctx context.Context, category string, ttl time.Duration) (domain.CategorySnapshot, error)
}

// Refresher re-queries every configured category on an interval so that
// dashboard reads are served warm.
type Refresher struct {
	queries    SnapshotQuerier
	categories []string
	ttl        time.Duration
	logger     *slog.Logger
}

// NewRefresher creates a Refresher for the given categories. ttl is passed
// through to each query, so a refresh inside the TTL is a cache hit.
func NewRefresher(queries SnapshotQuerier, categories []string, ttl time.Duration, logger *slog.Logger) *Refresher {
	return &Refresher{
		queries:    queries,
		categories: categories,
		ttl:        ttl,
		logger:     logger.With(slog.String("component", "refresher")),
	}
}

// Run refreshes every category once. A failing category does not stop the
// rest; the failures are returned joined.
func (r *Refresher) Run(ctx context.Context) error {
	var errs []error
	for _, cat := range r.categories {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("refresher: %w", err)
		}
		snap, err := r.queries.Query(ctx, cat, r.ttl)
		if err != nil {
			errs = append(errs, fmt.Errorf("refresh %q: %w", cat, err))
			continue
		}
		r.logger.DebugContext(ctx, "category refreshed",
			slog.String("category", cat),
			slog.Int("markets", len(snap.Markets)),
			slog.Int("events", len(snap.Events)),
			slog.Time("fetched_at", snap.FetchedAt),
		)
	}
	return errors.Join(errs...)
}

// RunLoop runs the refresher on a repeating interval until the context is
// cancelled.
func (r *Refresher) RunLoop(ctx context.Context, interval time.Duration) error {
	r.logger.InfoContext(ctx, "refresher started",
		slog.Duration("interval", interval),
		slog.Int("categories", len(r.categories)),
	)

	// Run immediately on start.
	r.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refresher stopped")
			return ctx.Err()
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Refresher) runOnce(ctx context.Context) {
	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		r.logger.ErrorContext(ctx, "refresh failed", slog.String("error", err.Error()))
	}
}
