package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

const scanBatch = 100

// SnapshotCache implements domain.SnapshotCache with one JSON string per
// category, so several dashboard replicas share fetched data.
//
// Key schema:
//
//	{prefix}snapshot:{category} - JSON-encoded domain.CategorySnapshot
//
// Freshness is decided by the caller from FetchedAt. retention, when set, is
// a Redis expiry that only bounds how long abandoned entries linger.
type SnapshotCache struct {
	c         *Client
	retention time.Duration
}

// NewSnapshotCache creates a SnapshotCache. A retention of zero stores
// entries without expiry.
func NewSnapshotCache(c *Client, retention time.Duration) *SnapshotCache {
	return &SnapshotCache{c: c, retention: retention}
}

func (sc *SnapshotCache) snapshotKey(category string) string {
	return sc.c.key("snapshot", category)
}

// Get returns the snapshot for category or domain.ErrNotFound.
func (sc *SnapshotCache) Get(ctx context.Context, category string) (domain.CategorySnapshot, error) {
	data, err := sc.c.rdb.Get(ctx, sc.snapshotKey(category)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CategorySnapshot{}, fmt.Errorf("redis: snapshot %s: %w", category, domain.ErrNotFound)
		}
		return domain.CategorySnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", category, err)
	}

	var snap domain.CategorySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.CategorySnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", category, err)
	}
	return snap, nil
}

// Set stores snap under category, replacing any previous entry.
func (sc *SnapshotCache) Set(ctx context.Context, category string, snap domain.CategorySnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", category, err)
	}
	if err := sc.c.rdb.Set(ctx, sc.snapshotKey(category), data, sc.retention).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", category, err)
	}
	return nil
}

// Delete removes the entry for category.
func (sc *SnapshotCache) Delete(ctx context.Context, category string) error {
	if err := sc.c.rdb.Del(ctx, sc.snapshotKey(category)).Err(); err != nil {
		return fmt.Errorf("redis: delete snapshot %s: %w", category, err)
	}
	return nil
}

// Clear removes every snapshot under the client's prefix.
func (sc *SnapshotCache) Clear(ctx context.Context) error {
	pattern := sc.snapshotKey("*")
	var cursor uint64
	for {
		keys, next, err := sc.c.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis: scan snapshots: %w", err)
		}
		if len(keys) > 0 {
			if err := sc.c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis: clear snapshots: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
