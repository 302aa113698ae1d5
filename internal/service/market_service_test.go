package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
	"github.com/alanyoungcy/kalshiboard/internal/platform/kalshi"
)

// fakeSource serves a fixed events page and counts calls.
type fakeSource struct {
	events []kalshi.RawEvent
	err    error
	market domain.MarketRecord
	delay  time.Duration
	calls  atomic.Int32

	mu    sync.Mutex
	lastQ kalshi.EventsQuery
}

func (f *fakeSource) FetchEvents(ctx context.Context, q kalshi.EventsQuery) (kalshi.EventsPage, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastQ = q
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return kalshi.EventsPage{}, ctx.Err()
		}
	}
	if f.err != nil {
		return kalshi.EventsPage{}, f.err
	}
	return kalshi.EventsPage{Events: f.events}, nil
}

func (f *fakeSource) GetMarket(_ context.Context, ticker string) (domain.MarketRecord, error) {
	if f.err != nil {
		return domain.MarketRecord{}, f.err
	}
	if f.market.Ticker != ticker {
		return domain.MarketRecord{}, &domain.APIError{StatusCode: 404, Message: "not found"}
	}
	return f.market, nil
}

func rawMarkets(objs ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(objs))
	for i, o := range objs {
		out[i] = json.RawMessage(o)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func tickers(ms []domain.MarketRecord) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Ticker
	}
	return out
}

func TestTopMarketsByCategory(t *testing.T) {
	src := &fakeSource{events: []kalshi.RawEvent{
		{
			EventTicker: "EV1", Title: "Senate control", Category: "Politics",
			Markets: rawMarkets(
				`{"ticker":"A","status":"active","volume_24h":100,"yes_bid_dollars":"0.40"}`,
				`{"ticker":"B","status":"active","volume_24h":500,"yes_bid_dollars":"0.60"}`,
				`{"ticker":"C","status":"closed","volume_24h":500}`,
			),
		},
	}}
	svc := NewMarketService(src, discardLogger())

	t.Run("closed markets excluded and ranked by volume", func(t *testing.T) {
		res, err := svc.TopMarketsByCategory(context.Background(), "politics", 2)
		if err != nil {
			t.Fatalf("TopMarketsByCategory: %v", err)
		}
		if got := tickers(res.Markets); !slices.Equal(got, []string{"B", "A"}) {
			t.Errorf("tickers = %v, want [B A]", got)
		}
		if res.Category != "politics" {
			t.Errorf("Category = %q, want politics", res.Category)
		}
	})

	t.Run("request shape", func(t *testing.T) {
		if src.lastQ.Status != "open" || !src.lastQ.WithNestedMarkets || src.lastQ.Limit != DefaultEventsPageSize {
			t.Errorf("query = %+v", src.lastQ)
		}
	})

	t.Run("limit zero", func(t *testing.T) {
		res, err := svc.TopMarketsByCategory(context.Background(), "politics", 0)
		if err != nil {
			t.Fatalf("TopMarketsByCategory: %v", err)
		}
		if res.Markets == nil || len(res.Markets) != 0 {
			t.Errorf("Markets = %v, want empty non-nil", res.Markets)
		}
	})

	t.Run("negative limit", func(t *testing.T) {
		_, err := svc.TopMarketsByCategory(context.Background(), "politics", -1)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("unknown category is empty", func(t *testing.T) {
		res, err := svc.TopMarketsByCategory(context.Background(), "Quidditch", 10)
		if err != nil {
			t.Fatalf("TopMarketsByCategory: %v", err)
		}
		if len(res.Markets) != 0 {
			t.Errorf("Markets = %v, want empty", tickers(res.Markets))
		}
	})
}

func TestSnapshotSkipsMalformed(t *testing.T) {
	src := &fakeSource{events: []kalshi.RawEvent{
		{
			EventTicker: "EV1", Title: "Fed rates", Category: "Economics",
			Markets: rawMarkets(
				`{"ticker":"X","status":"active","volume_24h":10}`,
				`{"ticker":null,"status":"active","volume_24h":99}`,
				`{"ticker":"Y","status":"active","volume_24h":20}`,
			),
		},
		{EventTicker: "EV2", Title: "No markets", Category: "Economics"},
	}}
	svc := NewMarketService(src, discardLogger())

	snap, err := svc.Snapshot(context.Background(), "economics")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got := tickers(snap.Markets); !slices.Equal(got, []string{"Y", "X"}) {
		t.Errorf("tickers = %v, want [Y X]", got)
	}
	if snap.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", snap.Skipped)
	}
	if len(snap.Events) != 1 || snap.Events[0].EventTicker != "EV1" {
		t.Errorf("Events = %+v, want only EV1", snap.Events)
	}
}

func TestSnapshotTieBreak(t *testing.T) {
	src := &fakeSource{events: []kalshi.RawEvent{
		{
			EventTicker: "EV", Title: "Game", Category: "Sports",
			Markets: rawMarkets(
				`{"ticker":"ZED","status":"active","volume_24h":50}`,
				`{"ticker":"ALPHA","status":"active","volume_24h":50}`,
				`{"ticker":"MID","status":"active","volume_24h":70}`,
				`{"ticker":"NOVOL","status":"active"}`,
			),
		},
	}}
	svc := NewMarketService(src, discardLogger())

	res, err := svc.TopMarketsByCategory(context.Background(), "sports", 10)
	if err != nil {
		t.Fatalf("TopMarketsByCategory: %v", err)
	}
	want := []string{"MID", "ALPHA", "ZED", "NOVOL"}
	if got := tickers(res.Markets); !slices.Equal(got, want) {
		t.Errorf("tickers = %v, want %v", got, want)
	}
}

func TestCategoryMatching(t *testing.T) {
	src := &fakeSource{events: []kalshi.RawEvent{
		{EventTicker: "BTC", Title: "Bitcoin above 100k?", Category: "Financials",
			Markets: rawMarkets(`{"ticker":"BTC-1","status":"active","volume_24h":5}`)},
		{EventTicker: "CPI", Title: "CPI in November?", Category: "Economics",
			Markets: rawMarkets(`{"ticker":"CPI-1","status":"active","volume_24h":7}`)},
		{EventTicker: "SP", Title: "S&P close", Category: "Financials",
			Markets: rawMarkets(`{"ticker":"SP-1","status":"active","volume_24h":9}`)},
		{EventTicker: "PRES", Title: "Presidential election", Category: "Elections",
			Markets: rawMarkets(`{"ticker":"PRES-1","status":"active","volume_24h":3}`)},
		{EventTicker: "RAIN", Title: "Rain in NYC?", Category: "Climate and Weather",
			Markets: rawMarkets(`{"ticker":"RAIN-1","status":"active","volume_24h":1}`)},
	}}

	tests := []struct {
		category string
		cats     []domain.Category
		want     []string
	}{
		{category: "crypto", want: []string{"BTC-1"}},
		{category: "economics", want: []string{"SP-1", "CPI-1"}},
		{category: "politics", want: []string{"PRES-1"}},
		{category: "Weather", want: []string{"RAIN-1"}},
		{category: "markets", cats: []domain.Category{{Name: "markets", Match: []string{"Financials"}}}, want: []string{"SP-1", "BTC-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			svc := NewMarketService(src, discardLogger(), WithCategories(tt.cats))
			res, err := svc.TopMarketsByCategory(context.Background(), tt.category, 10)
			if err != nil {
				t.Fatalf("TopMarketsByCategory: %v", err)
			}
			if got := tickers(res.Markets); !slices.Equal(got, tt.want) {
				t.Errorf("tickers = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTopEventsByCategory(t *testing.T) {
	src := &fakeSource{events: []kalshi.RawEvent{
		{
			EventTicker: "NOM", Title: "Nominee?", Category: "Politics",
			Markets: rawMarkets(
				`{"ticker":"NOM-A","status":"active","volume_24h":100,"yes_bid_dollars":"0.20","previous_price_dollars":"0.25"}`,
				`{"ticker":"NOM-B","status":"active","volume_24h":50,"yes_bid_dollars":"0.70","previous_price_dollars":"0.60"}`,
				`{"ticker":"NOM-C","status":"active","volume_24h":1}`,
			),
		},
		{
			EventTicker: "GOV", Title: "Governor?", Category: "Politics",
			Markets: rawMarkets(`{"ticker":"GOV-A","status":"active","volume_24h":400,"yes_bid_dollars":"0.50"}`),
		},
	}}
	svc := NewMarketService(src, discardLogger())

	res, err := svc.TopEventsByCategory(context.Background(), "politics", 5)
	if err != nil {
		t.Fatalf("TopEventsByCategory: %v", err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(res.Events))
	}
	if res.Events[0].EventTicker != "GOV" {
		t.Errorf("first event = %q, want GOV", res.Events[0].EventTicker)
	}
	nom := res.Events[1]
	if nom.TotalVolume != 151 || nom.NumMarkets != 3 {
		t.Errorf("TotalVolume, NumMarkets = %d, %d; want 151, 3", nom.TotalVolume, nom.NumMarkets)
	}
	if got := tickers(nom.Options); !slices.Equal(got, []string{"NOM-B", "NOM-A", "NOM-C"}) {
		t.Errorf("options = %v, want [NOM-B NOM-A NOM-C]", got)
	}
	if nom.MaxPriceChangePoints != 10 {
		t.Errorf("MaxPriceChangePoints = %d, want 10", nom.MaxPriceChangePoints)
	}
}

func TestCategories(t *testing.T) {
	src := &fakeSource{events: []kalshi.RawEvent{
		{Category: "Sports"}, {Category: "Politics"}, {Category: "Sports"}, {Category: ""},
	}}
	got, err := NewMarketService(src, discardLogger()).Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if !slices.Equal(got, []string{"Politics", "Sports"}) {
		t.Errorf("Categories = %v, want [Politics Sports]", got)
	}
}

func TestMarketServiceUpstreamError(t *testing.T) {
	upstream := &domain.APIError{StatusCode: 503, Message: "unavailable"}
	svc := NewMarketService(&fakeSource{err: upstream}, discardLogger())

	_, err := svc.TopMarketsByCategory(context.Background(), "politics", 10)
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
		t.Errorf("error = %v, want APIError 503", err)
	}
}

func TestTruncateMarketsCopies(t *testing.T) {
	src := []domain.MarketRecord{{Ticker: "A"}, {Ticker: "B"}, {Ticker: "C"}}
	out := TruncateMarkets(src, 2)
	out[0].Ticker = "changed"
	if src[0].Ticker != "A" {
		t.Error("TruncateMarkets shares backing array with input")
	}
	if len(TruncateMarkets(src, 10)) != 3 {
		t.Error("limit above length should return all")
	}
}
