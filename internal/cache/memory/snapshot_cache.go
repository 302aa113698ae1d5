// Package memory provides in-process implementations of the snapshot cache
// and per-key lock.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

// SnapshotCache is a map-backed domain.SnapshotCache. Stored snapshots are
// shared with readers and must be treated as read-only.
type SnapshotCache struct {
	mu    sync.RWMutex
	items map[string]domain.CategorySnapshot
}

// NewSnapshotCache creates an empty SnapshotCache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{items: make(map[string]domain.CategorySnapshot)}
}

// Get returns the entry for key or domain.ErrNotFound.
func (c *SnapshotCache) Get(_ context.Context, key string) (domain.CategorySnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.items[key]
	if !ok {
		return domain.CategorySnapshot{}, fmt.Errorf("memory cache: snapshot %q: %w", key, domain.ErrNotFound)
	}
	return snap, nil
}

// Set replaces the entry for key.
func (c *SnapshotCache) Set(_ context.Context, key string, snap domain.CategorySnapshot) error {
	c.mu.Lock()
	c.items[key] = snap
	c.mu.Unlock()
	return nil
}

// Delete removes the entry for key. Missing keys are not an error.
func (c *SnapshotCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Clear removes every entry.
func (c *SnapshotCache) Clear(_ context.Context) error {
	c.mu.Lock()
	clear(c.items)
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached categories.
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
