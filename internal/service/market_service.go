package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
	"github.com/alanyoungcy/kalshiboard/internal/platform/kalshi"
)

// DefaultEventsPageSize is the events page requested per snapshot.
const DefaultEventsPageSize = 200

// MarketSource is the subset of the Kalshi client the ranking layer uses.
type MarketSource interface {
	FetchEvents(ctx context.Context, q kalshi.EventsQuery) (kalshi.EventsPage, error)
	GetMarket(ctx context.Context, ticker string) (domain.MarketRecord, error)
}

// MarketService turns one page of open Kalshi events into ranked per-category
// views. It holds no state between calls.
type MarketService struct {
	source   MarketSource
	matchers map[string]domain.CategoryMatcher
	pageSize int
	now      func() time.Time
	logger   *slog.Logger
}

// MarketServiceOption configures a MarketService.
type MarketServiceOption func(*MarketService)

// WithCategories registers category definitions whose Match lists override
// the built-in mapping.
func WithCategories(cats []domain.Category) MarketServiceOption {
	return func(s *MarketService) {
		for _, c := range cats {
			m := domain.NewCategoryMatcher(c.Name, c.Match)
			if m.Name() != "" {
				s.matchers[m.Name()] = m
			}
		}
	}
}

// WithEventsPageSize sets the limit sent on GET /events.
func WithEventsPageSize(n int) MarketServiceOption {
	return func(s *MarketService) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithClock overrides the clock used to stamp snapshots.
func WithClock(now func() time.Time) MarketServiceOption {
	return func(s *MarketService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMarketService creates a MarketService reading from source.
func NewMarketService(source MarketSource, logger *slog.Logger, opts ...MarketServiceOption) *MarketService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MarketService{
		source:   source,
		matchers: make(map[string]domain.CategoryMatcher),
		pageSize: DefaultEventsPageSize,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MarketService) matcher(category string) domain.CategoryMatcher {
	key := domain.NormalizeCategory(category)
	if m, ok := s.matchers[key]; ok {
		return m
	}
	return domain.NewCategoryMatcher(key, nil)
}

func (s *MarketService) fetchOpenEvents(ctx context.Context) ([]kalshi.RawEvent, error) {
	page, err := s.source.FetchEvents(ctx, kalshi.EventsQuery{
		Status:            "open",
		WithNestedMarkets: true,
		Limit:             s.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: fetch events: %w", err)
	}
	return page.Events, nil
}

// Snapshot fetches open events once and returns every open market of the
// category, ranked, together with the per-event grouping. Records that fail
// to parse are skipped and counted.
func (s *MarketService) Snapshot(ctx context.Context, category string) (domain.CategorySnapshot, error) {
	key := domain.NormalizeCategory(category)
	if key == "" {
		return domain.CategorySnapshot{}, fmt.Errorf("market_service: %w: empty category", domain.ErrInvalidArgument)
	}

	events, err := s.fetchOpenEvents(ctx)
	if err != nil {
		return domain.CategorySnapshot{}, err
	}

	m := s.matcher(key)
	snap := domain.CategorySnapshot{Category: key, FetchedAt: s.now()}
	seen := make(map[string]struct{})

	for _, ev := range events {
		if !m.Matches(ev.Category, ev.Title) {
			continue
		}
		evCtx := ev.Context()
		var options []domain.MarketRecord
		for _, raw := range ev.Markets {
			rec, err := kalshi.ParseMarket(raw, evCtx)
			if err != nil {
				snap.Skipped++
				s.logger.DebugContext(ctx, "market_service: skipped market",
					slog.String("event_ticker", ev.EventTicker),
					slog.String("error", err.Error()),
				)
				continue
			}
			if rec.Status != domain.MarketStatusOpen {
				continue
			}
			if _, dup := seen[rec.Ticker]; dup {
				continue
			}
			seen[rec.Ticker] = struct{}{}
			options = append(options, rec)
		}
		if len(options) == 0 {
			continue
		}
		snap.Markets = append(snap.Markets, options...)
		snap.Events = append(snap.Events, summarizeEvent(ev, options))
	}

	RankMarkets(snap.Markets)
	RankEvents(snap.Events)
	if snap.Markets == nil {
		snap.Markets = []domain.MarketRecord{}
	}
	if snap.Events == nil {
		snap.Events = []domain.EventSummary{}
	}
	return snap, nil
}

// TopMarketsByCategory returns at most limit open markets of the category
// ranked by 24h volume. An unknown category yields an empty result.
func (s *MarketService) TopMarketsByCategory(ctx context.Context, category string, limit int) (domain.CategoryQueryResult, error) {
	if limit < 0 {
		return domain.CategoryQueryResult{}, fmt.Errorf("market_service: %w: negative limit %d", domain.ErrInvalidArgument, limit)
	}
	snap, err := s.Snapshot(ctx, category)
	if err != nil {
		return domain.CategoryQueryResult{}, err
	}
	return MarketsResult(snap, limit), nil
}

// TopEventsByCategory returns at most limit events of the category ranked by
// total 24h volume.
func (s *MarketService) TopEventsByCategory(ctx context.Context, category string, limit int) (domain.EventQueryResult, error) {
	if limit < 0 {
		return domain.EventQueryResult{}, fmt.Errorf("market_service: %w: negative limit %d", domain.ErrInvalidArgument, limit)
	}
	snap, err := s.Snapshot(ctx, category)
	if err != nil {
		return domain.EventQueryResult{}, err
	}
	return EventsResult(snap, limit), nil
}

// Categories lists the distinct upstream categories among open events.
func (s *MarketService) Categories(ctx context.Context) ([]string, error) {
	events, err := s.fetchOpenEvents(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, ev := range events {
		if ev.Category != "" {
			set[ev.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	slices.Sort(out)
	return out, nil
}

// GetMarket looks up one market directly, bypassing category filtering.
func (s *MarketService) GetMarket(ctx context.Context, ticker string) (domain.MarketRecord, error) {
	rec, err := s.source.GetMarket(ctx, ticker)
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("market_service: get market: %w", err)
	}
	return rec, nil
}

// --------------------------------------------------------------------------
// Ranking helpers
// --------------------------------------------------------------------------

// RankMarkets sorts in place by Volume24h descending, then Ticker ascending.
func RankMarkets(markets []domain.MarketRecord) {
	slices.SortFunc(markets, func(a, b domain.MarketRecord) int {
		if c := cmp.Compare(b.Volume24h, a.Volume24h); c != 0 {
			return c
		}
		return cmp.Compare(a.Ticker, b.Ticker)
	})
}

// RankEvents sorts in place by TotalVolume descending, then EventTicker
// ascending.
func RankEvents(events []domain.EventSummary) {
	slices.SortFunc(events, func(a, b domain.EventSummary) int {
		if c := cmp.Compare(b.TotalVolume, a.TotalVolume); c != 0 {
			return c
		}
		return cmp.Compare(a.EventTicker, b.EventTicker)
	})
}

// rankOptions orders an event's markets by implied probability, highest
// first. Markets without a price sort last.
func rankOptions(options []domain.MarketRecord) {
	slices.SortFunc(options, func(a, b domain.MarketRecord) int {
		pa, okA := a.Probability()
		pb, okB := b.Probability()
		switch {
		case okA && !okB:
			return -1
		case !okA && okB:
			return 1
		}
		if c := cmp.Compare(pb, pa); c != 0 {
			return c
		}
		return cmp.Compare(a.Ticker, b.Ticker)
	})
}

// TruncateMarkets returns a fresh slice holding the first limit markets.
func TruncateMarkets(markets []domain.MarketRecord, limit int) []domain.MarketRecord {
	n := min(max(limit, 0), len(markets))
	out := make([]domain.MarketRecord, n)
	copy(out, markets[:n])
	return out
}

// TruncateEvents returns a fresh slice holding the first limit events. The
// options of each event are copied too.
func TruncateEvents(events []domain.EventSummary, limit int) []domain.EventSummary {
	n := min(max(limit, 0), len(events))
	out := make([]domain.EventSummary, n)
	for i := range n {
		out[i] = events[i]
		out[i].Options = slices.Clone(events[i].Options)
	}
	return out
}

// MarketsResult builds a query result from a snapshot.
func MarketsResult(snap domain.CategorySnapshot, limit int) domain.CategoryQueryResult {
	return domain.CategoryQueryResult{
		Category:  snap.Category,
		Markets:   TruncateMarkets(snap.Markets, limit),
		FetchedAt: snap.FetchedAt,
	}
}

// EventsResult builds an event query result from a snapshot.
func EventsResult(snap domain.CategorySnapshot, limit int) domain.EventQueryResult {
	return domain.EventQueryResult{
		Category:  snap.Category,
		Events:    TruncateEvents(snap.Events, limit),
		FetchedAt: snap.FetchedAt,
	}
}

func summarizeEvent(ev kalshi.RawEvent, options []domain.MarketRecord) domain.EventSummary {
	opts := slices.Clone(options)
	rankOptions(opts)

	sum := domain.EventSummary{
		EventTicker:  ev.EventTicker,
		SeriesTicker: ev.SeriesTicker,
		Title:        ev.Title,
		Category:     ev.Category,
		Options:      opts,
		NumMarkets:   len(opts),
	}
	for _, o := range opts {
		sum.TotalVolume += o.Volume24h
		if pts, ok := o.PriceChangePoints(); ok && absInt(pts) > absInt(sum.MaxPriceChangePoints) {
			sum.MaxPriceChangePoints = pts
		}
	}
	return sum
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
