package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

func TestSnapshotCache(t *testing.T) {
	ctx := context.Background()
	c := NewSnapshotCache()

	if _, err := c.Get(ctx, "politics"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get on empty cache = %v, want ErrNotFound", err)
	}

	snap := domain.CategorySnapshot{
		Category: "politics",
		Markets:  []domain.MarketRecord{{Ticker: "A"}},
	}
	if err := c.Set(ctx, "politics", snap); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "politics")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Markets) != 1 || got.Markets[0].Ticker != "A" {
		t.Errorf("Get = %+v", got)
	}

	_ = c.Set(ctx, "sports", snap)
	if err := c.Delete(ctx, "politics"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "politics"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", c.Len())
	}
}

func TestKeyLocker(t *testing.T) {
	t.Run("serialises one key", func(t *testing.T) {
		k := NewKeyLocker()
		var inside, maxInside atomic.Int32
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := k.Lock(context.Background(), "k")
				if err != nil {
					t.Errorf("Lock: %v", err)
					return
				}
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				unlock()
			}()
		}
		wg.Wait()
		if maxInside.Load() != 1 {
			t.Errorf("max concurrent holders = %d, want 1", maxInside.Load())
		}
		if k.Len() != 0 {
			t.Errorf("Len = %d, want 0 after all unlocks", k.Len())
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		k := NewKeyLocker()
		unlockA, err := k.Lock(context.Background(), "a")
		if err != nil {
			t.Fatalf("Lock a: %v", err)
		}
		defer unlockA()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		unlockB, err := k.Lock(ctx, "b")
		if err != nil {
			t.Fatalf("Lock b while a held: %v", err)
		}
		unlockB()
	})

	t.Run("context cancels wait", func(t *testing.T) {
		k := NewKeyLocker()
		unlock, _ := k.Lock(context.Background(), "k")

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := k.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Lock = %v, want DeadlineExceeded", err)
		}

		unlock()
		unlock()
		if k.Len() != 0 {
			t.Errorf("Len = %d, want 0", k.Len())
		}
	})
}
