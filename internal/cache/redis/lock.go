package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

// unlockLua is a Lua script that deletes a lock key only if its value matches
// the caller's unique token. This prevents one holder from accidentally
// releasing another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const (
	defaultLockTTL   = 30 * time.Second
	lockPollInterval = 50 * time.Millisecond
)

// LockManager implements domain.LockManager using Redis SETNX with a TTL and
// a Lua-based conditional unlock. It also satisfies domain.KeyLocker by
// polling Acquire, which lets dashboard replicas share one fetch per
// category.
type LockManager struct {
	c        *Client
	unlockSc *redis.Script
	lockTTL  time.Duration
}

// NewLockManager creates a LockManager backed by the given Client. lockTTL
// bounds how long a crashed holder can block a key; zero selects 30s.
func NewLockManager(c *Client, lockTTL time.Duration) *LockManager {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &LockManager{
		c:        c,
		unlockSc: redis.NewScript(unlockLua),
		lockTTL:  lockTTL,
	}
}

func (lm *LockManager) lockKey(key string) string {
	return lm.c.key("lock", key)
}

// Acquire attempts to obtain a distributed lock for the given key with the
// specified TTL. On success it returns an unlock function that must be called
// to release the lock. The unlock function is safe to call multiple times.
//
// It returns domain.ErrLockHeld if the lock is already held by another party.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lm.lockKey(key)

	ok, err := lm.c.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// Use a background context so unlock succeeds even if the
			// caller's context is already cancelled.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = lm.unlockSc.Run(unlockCtx, lm.c.rdb, []string{lk}, token).Err()
		})
	}

	return unlock, nil
}

// Lock blocks until the key's lock is acquired or ctx is done.
func (lm *LockManager) Lock(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		unlock, err := lm.Acquire(ctx, key, lm.lockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis: wait lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Compile-time interface checks.
var (
	_ domain.LockManager = (*LockManager)(nil)
	_ domain.KeyLocker   = (*LockManager)(nil)
)
