package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

// SnapshotSource produces a fresh category snapshot. *MarketService
// satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context, category string) (domain.CategorySnapshot, error)
}

// QueryService answers category queries from a TTL cache, fetching through
// source on a miss. Each category key is guarded by its own lock so that
// concurrent callers for one category trigger at most one fetch. A failed
// fetch never replaces or removes the cached entry.
type QueryService struct {
	source SnapshotSource
	cache  domain.SnapshotCache
	locks  domain.KeyLocker
	now    func() time.Time
	logger *slog.Logger

	hits        atomic.Int64
	misses      atomic.Int64
	fetchErrors atomic.Int64
}

// NewQueryService creates a QueryService. now defaults to time.Now.
func NewQueryService(
	source SnapshotSource,
	cache domain.SnapshotCache,
	locks domain.KeyLocker,
	now func() time.Time,
	logger *slog.Logger,
) *QueryService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{
		source: source,
		cache:  cache,
		locks:  locks,
		now:    now,
		logger: logger,
	}
}

// Query returns the snapshot for category, fresh within ttl. A ttl of zero
// bypasses the cache read but still stores the result.
func (s *QueryService) Query(ctx context.Context, category string, ttl time.Duration) (domain.CategorySnapshot, error) {
	if ttl < 0 {
		return domain.CategorySnapshot{}, fmt.Errorf("query_service: %w: negative ttl %s", domain.ErrInvalidArgument, ttl)
	}
	key := domain.NormalizeCategory(category)
	if key == "" {
		return domain.CategorySnapshot{}, fmt.Errorf("query_service: %w: empty category", domain.ErrInvalidArgument)
	}

	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return domain.CategorySnapshot{}, fmt.Errorf("query_service: lock %q: %w", key, err)
	}
	defer unlock()

	if ttl > 0 {
		snap, err := s.cache.Get(ctx, key)
		switch {
		case err == nil && s.now().Sub(snap.FetchedAt) < ttl:
			s.hits.Add(1)
			return snap, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "query_service: cache get failed",
				slog.String("category", key),
				slog.String("error", err.Error()),
			)
		}
	}
	s.misses.Add(1)

	snap, err := s.source.Snapshot(ctx, key)
	if err != nil {
		s.fetchErrors.Add(1)
		return domain.CategorySnapshot{}, err
	}
	snap.FetchedAt = s.now()

	if err := s.cache.Set(ctx, key, snap); err != nil {
		s.logger.WarnContext(ctx, "query_service: cache set failed",
			slog.String("category", key),
			slog.String("error", err.Error()),
		)
	}
	return snap, nil
}

// TopMarkets returns at most limit markets for category through the cache.
func (s *QueryService) TopMarkets(ctx context.Context, category string, limit int, ttl time.Duration) (domain.CategoryQueryResult, error) {
	if limit < 0 {
		return domain.CategoryQueryResult{}, fmt.Errorf("query_service: %w: negative limit %d", domain.ErrInvalidArgument, limit)
	}
	snap, err := s.Query(ctx, category, ttl)
	if err != nil {
		return domain.CategoryQueryResult{}, err
	}
	return MarketsResult(snap, limit), nil
}

// TopEvents returns at most limit events for category through the cache.
func (s *QueryService) TopEvents(ctx context.Context, category string, limit int, ttl time.Duration) (domain.EventQueryResult, error) {
	if limit < 0 {
		return domain.EventQueryResult{}, fmt.Errorf("query_service: %w: negative limit %d", domain.ErrInvalidArgument, limit)
	}
	snap, err := s.Query(ctx, category, ttl)
	if err != nil {
		return domain.EventQueryResult{}, err
	}
	return EventsResult(snap, limit), nil
}

// Invalidate drops the cached entry for one category.
func (s *QueryService) Invalidate(ctx context.Context, category string) error {
	key := domain.NormalizeCategory(category)
	if err := s.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("query_service: invalidate %q: %w", key, err)
	}
	return nil
}

// Clear drops every cached entry.
func (s *QueryService) Clear(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("query_service: clear: %w", err)
	}
	return nil
}

// Stats returns the hit, miss and fetch-error counters.
func (s *QueryService) Stats() domain.CacheStats {
	return domain.CacheStats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		FetchErrors: s.fetchErrors.Load(),
	}
}
