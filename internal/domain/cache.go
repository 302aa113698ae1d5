package domain

import (
	"context"
	"time"
)

// SnapshotCache stores one CategorySnapshot per category key. Freshness is
// decided by the caller from Snapshot.FetchedAt; implementations never expire
// entries on their own account except to bound memory.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (CategorySnapshot, error) // ErrNotFound on miss
	Set(ctx context.Context, key string, snap CategorySnapshot) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// KeyLocker serialises work per key. Lock blocks until the key is free or ctx
// is done; the returned unlock func is safe to call more than once.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LockManager provides a non-blocking distributed lock with a TTL.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter admits at most limit requests per key within a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// CacheStats is a point-in-time view of the query cache counters.
type CacheStats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	FetchErrors int64 `json:"fetch_errors"`
}
