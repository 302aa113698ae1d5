package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/kalshiboard/internal/cache/redis"
	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

func TestQuerySharedRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	client := redis.Wrap(rdb, "")

	clock := &manualClock{now: time.Date(2025, 11, 3, 8, 0, 0, 0, time.UTC)}
	src := &stubSnapshots{fn: func(_ int32, c string) (domain.CategorySnapshot, error) {
		return snapshotOf(c, "A", "B"), nil
	}}

	newReplica := func() *QueryService {
		return NewQueryService(
			src,
			redis.NewSnapshotCache(client, time.Hour),
			redis.NewLockManager(client, 5*time.Second),
			clock.Now,
			discardLogger(),
		)
	}
	first, second := newReplica(), newReplica()

	ctx := context.Background()
	if _, err := first.TopMarkets(ctx, "politics", 1, time.Minute); err != nil {
		t.Fatalf("first replica: %v", err)
	}
	res, err := second.TopMarkets(ctx, "politics", 2, time.Minute)
	if err != nil {
		t.Fatalf("second replica: %v", err)
	}
	if src.calls.Load() != 1 {
		t.Errorf("fetches = %d, want 1 across replicas", src.calls.Load())
	}
	if len(res.Markets) != 2 || res.Markets[0].Ticker != "A" {
		t.Errorf("Markets = %+v", res.Markets)
	}
	if second.Stats().Hits != 1 {
		t.Errorf("second replica hits = %d, want 1", second.Stats().Hits)
	}
}
