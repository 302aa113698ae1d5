package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
	"github.com/alanyoungcy/kalshiboard/internal/notify"
)

var discardLogger = slog.New(slog.DiscardHandler)

type fakeQuerier struct {
	mu    sync.Mutex
	snaps map[string]domain.CategorySnapshot
	errs  map[string]error
	calls []string
	ttls  []time.Duration
}

func (f *fakeQuerier) Query(_ context.Context, category string, ttl time.Duration) (domain.CategorySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, category)
	f.ttls = append(f.ttls, ttl)
	if err := f.errs[category]; err != nil {
		return domain.CategorySnapshot{}, err
	}
	return f.snaps[category], nil
}

func (f *fakeQuerier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeNotifier struct {
	events   []string
	messages []string
	errors   []error
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, message string) error {
	f.events = append(f.events, event)
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeNotifier) NotifyError(_ context.Context, _ string, err error) error {
	f.errors = append(f.errors, err)
	return nil
}

func TestRefresherRun(t *testing.T) {
	q := &fakeQuerier{errs: map[string]error{"crypto": errors.New("upstream down")}}
	r := NewRefresher(q, []string{"politics", "crypto", "economics"}, time.Minute, discardLogger)

	err := r.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), `refresh "crypto": upstream down`) {
		t.Errorf("Run error = %v, want crypto failure", err)
	}
	if got := strings.Join(q.calls, ","); got != "politics,crypto,economics" {
		t.Errorf("queried %s, want every category despite the failure", got)
	}
	for _, ttl := range q.ttls {
		if ttl != time.Minute {
			t.Errorf("ttl = %s, want 1m", ttl)
		}
	}
}

func TestRefresherRunLoop(t *testing.T) {
	q := &fakeQuerier{}
	r := NewRefresher(q, []string{"politics"}, time.Minute, discardLogger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.RunLoop(ctx, 5*time.Millisecond) }()

	deadline := time.After(2 * time.Second)
	for q.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("refresher made %d calls, want at least 3", q.callCount())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("RunLoop = %v, want context.Canceled", err)
	}
}

func digestSnapshots() map[string]domain.CategorySnapshot {
	return map[string]domain.CategorySnapshot{
		"politics": {Events: []domain.EventSummary{
			{EventTicker: "P1", Title: "Small", TotalVolume: 10, MaxPriceChangePoints: 12},
			{EventTicker: "P2", Title: "Big", TotalVolume: 500, MaxPriceChangePoints: 1},
			{EventTicker: "P3", Title: "Medium", TotalVolume: 100, MaxPriceChangePoints: -4},
		}},
		"economics": {Events: []domain.EventSummary{
			{EventTicker: "E1", Title: "CPI", TotalVolume: 50},
		}},
	}
}

var digestCategories = []domain.Category{
	{Name: "politics", Label: "Politics", Icon: "🏛️"},
	{Name: "economics", Label: "Economics", Icon: "💰"},
}

func TestDigestBuild(t *testing.T) {
	snaps := digestSnapshots()
	q := &fakeQuerier{snaps: snaps}
	now := func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	sgt := time.FixedZone("SGT", 8*3600)

	d := NewDigest(q, &fakeNotifier{}, DigestConfig{
		Categories: digestCategories, TTL: time.Minute, TopN: 2, MaxOptions: 4,
		Sort: notify.SortPriceChange, Location: sgt,
	}, now, discardLogger)

	msg, err := d.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(msg, "2025\\-06\\-01 08:00 SGT") {
		t.Errorf("timestamp not in digest location:\n%s", msg)
	}
	small, medium, big := strings.Index(msg, "Small"), strings.Index(msg, "Medium"), strings.Index(msg, "\\. Big*")
	if small < 0 || medium < 0 || small > medium {
		t.Errorf("movers order wrong:\n%s", msg)
	}
	if big >= 0 {
		t.Errorf("top 2 should drop the smallest mover:\n%s", msg)
	}
	if !strings.Contains(msg, "CPI") {
		t.Errorf("economics section missing:\n%s", msg)
	}
	if snaps["politics"].Events[0].EventTicker != "P1" {
		t.Errorf("Build reordered the cached snapshot")
	}
}

func TestDigestPartialFailure(t *testing.T) {
	q := &fakeQuerier{snaps: digestSnapshots(), errs: map[string]error{"economics": errors.New("timeout")}}
	n := &fakeNotifier{}
	d := NewDigest(q, n, DigestConfig{Categories: digestCategories, TopN: 5, MaxOptions: 4, Sort: notify.SortVolume}, nil, discardLogger)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(n.messages) != 1 || n.events[0] != notify.EventDigest {
		t.Fatalf("notifications = %v", n.events)
	}
	if strings.Contains(n.messages[0], "Economics") {
		t.Errorf("failed category rendered:\n%s", n.messages[0])
	}
}

func TestDigestTotalFailure(t *testing.T) {
	boom := errors.New("unreachable")
	q := &fakeQuerier{errs: map[string]error{"politics": boom, "economics": boom}}
	n := &fakeNotifier{}
	d := NewDigest(q, n, DigestConfig{Categories: digestCategories, TopN: 5, MaxOptions: 4}, nil, discardLogger)

	err := d.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want wrapped cause", err)
	}
	if len(n.messages) != 0 {
		t.Errorf("digest sent despite failure")
	}
	if len(n.errors) != 1 {
		t.Errorf("error alerts = %d, want 1", len(n.errors))
	}
}

func TestNextDailyRun(t *testing.T) {
	sgt := time.FixedZone("SGT", 8*3600)
	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{"later today", time.Date(2025, 1, 1, 6, 30, 0, 0, sgt), 8, time.Date(2025, 1, 1, 8, 0, 0, 0, sgt)},
		{"exactly on the hour", time.Date(2025, 1, 1, 8, 0, 0, 0, sgt), 8, time.Date(2025, 1, 2, 8, 0, 0, 0, sgt)},
		{"tomorrow", time.Date(2025, 1, 1, 21, 0, 0, 0, sgt), 8, time.Date(2025, 1, 2, 8, 0, 0, 0, sgt)},
		{"month end", time.Date(2025, 1, 31, 9, 0, 0, 0, sgt), 8, time.Date(2025, 2, 1, 8, 0, 0, 0, sgt)},
		{"converts from utc", time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC), 8, time.Date(2025, 1, 2, 8, 0, 0, 0, sgt)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextDailyRun(tt.now, tt.hour, sgt); !got.Equal(tt.want) {
				t.Errorf("nextDailyRun = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOrchestratorStopsCleanly(t *testing.T) {
	q := &fakeQuerier{}
	o := NewOrchestrator(
		NewRefresher(q, []string{"politics"}, time.Minute, discardLogger), time.Hour,
		NewDigest(q, &fakeNotifier{}, DigestConfig{Categories: digestCategories, TopN: 1, MaxOptions: 1}, nil, discardLogger), 8,
		discardLogger,
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop")
	}
}
