package kalshi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

const eventsBody = `{
	"cursor": "next",
	"events": [
		{
			"event_ticker": "EV1",
			"series_ticker": "S1",
			"title": "Event one",
			"category": "Politics",
			"markets": [
				{"ticker": "EV1-A", "status": "active", "volume_24h": 10},
				{"ticker": null}
			]
		},
		{"event_ticker": "EV2", "title": "Empty", "category": "Sports", "markets": []}
	]
}`

func TestClientFetchEvents(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/events" {
			t.Errorf("path = %q, want /events", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("status") != "open" {
			t.Errorf("status = %q, want open", q.Get("status"))
		}
		if q.Get("with_nested_markets") != "true" {
			t.Errorf("with_nested_markets = %q, want true", q.Get("with_nested_markets"))
		}
		if q.Get("limit") != "200" {
			t.Errorf("limit = %q, want 200", q.Get("limit"))
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(eventsBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithAPIKey("secret"))
	page, err := c.FetchEvents(context.Background(), EventsQuery{Status: "open", WithNestedMarkets: true, Limit: 200})
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if page.Cursor != "next" {
		t.Errorf("Cursor = %q, want next", page.Cursor)
	}
	if len(page.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(page.Events))
	}
	ev := page.Events[0]
	if ev.EventTicker != "EV1" || ev.Category != "Politics" {
		t.Errorf("event = %+v", ev)
	}
	if len(ev.Markets) != 2 {
		t.Errorf("len(Markets) = %d, want 2", len(ev.Markets))
	}
	if len(page.Events[1].Markets) != 0 {
		t.Errorf("empty event has %d markets", len(page.Events[1].Markets))
	}
}

func TestClientErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":"too_many_requests","message":"slow down"}}`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL).FetchEvents(context.Background(), EventsQuery{})
		var apiErr *domain.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("error %v is not *domain.APIError", err)
		}
		if apiErr.StatusCode != http.StatusTooManyRequests {
			t.Errorf("StatusCode = %d, want 429", apiErr.StatusCode)
		}
		if apiErr.Code != "too_many_requests" || apiErr.Message != "slow down" {
			t.Errorf("Code, Message = %q, %q", apiErr.Code, apiErr.Message)
		}
	})

	t.Run("api error without body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL).GetMarket(context.Background(), "NOPE")
		var apiErr *domain.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("error %v is not *domain.APIError", err)
		}
		if apiErr.Message != "not found" {
			t.Errorf("Message = %q, want %q", apiErr.Message, "not found")
		}
		if apiErr.Error() != "kalshi api error 404: not found" {
			t.Errorf("Error() = %q", apiErr.Error())
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"not json", `<html>oops</html>`},
			{"array", `[]`},
			{"no events", `{"cursor":""}`},
			{"events not array", `{"events":{"a":1}}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write([]byte(tt.body))
				}))
				defer srv.Close()

				_, err := NewClient(srv.URL).FetchEvents(context.Background(), EventsQuery{})
				if !errors.Is(err, domain.ErrMalformedResponse) {
					t.Errorf("error = %v, want ErrMalformedResponse", err)
				}
			})
		}
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		c := NewClient(srv.URL, WithTimeout(50*time.Millisecond))
		_, err := c.FetchEvents(context.Background(), EventsQuery{})
		var netErr *domain.NetworkError
		if !errors.As(err, &netErr) {
			t.Fatalf("error %v is not *domain.NetworkError", err)
		}
		if !netErr.Timeout() {
			t.Errorf("Timeout() = false for %v", netErr)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewClient(url).FetchEvents(context.Background(), EventsQuery{})
		var netErr *domain.NetworkError
		if !errors.As(err, &netErr) {
			t.Fatalf("error %v is not *domain.NetworkError", err)
		}
	})
}

func TestClientGetMarket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/GOOD":
			_, _ = w.Write([]byte(`{"market":{"ticker":"GOOD","event_ticker":"EV","status":"active","yes_bid_dollars":"0.3100"}}`))
		case "/markets/BAD":
			_, _ = w.Write([]byte(`{"market":{"ticker":null}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	rec, err := c.GetMarket(context.Background(), "GOOD")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if rec.Ticker != "GOOD" || rec.EventTicker != "EV" {
		t.Errorf("rec = %+v", rec)
	}

	_, err = c.GetMarket(context.Background(), "BAD")
	var pe *domain.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error %v is not *domain.ParseError", err)
	}
	if pe.Ticker != "BAD" {
		t.Errorf("ParseError.Ticker = %q, want BAD", pe.Ticker)
	}

	_, err = c.GetMarket(context.Background(), " ")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestClientFetchMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("tickers"); got != "A,B" {
			t.Errorf("tickers = %q, want A,B", got)
		}
		_, _ = w.Write([]byte(`{"markets":[{"ticker":"A"},{"ticker":"B"}],"cursor":""}`))
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL).FetchMarkets(context.Background(), MarketsQuery{Tickers: []string{"A", "B"}})
	if err != nil {
		t.Fatalf("FetchMarkets: %v", err)
	}
	if len(page.Markets) != 2 {
		t.Errorf("len(Markets) = %d, want 2", len(page.Markets))
	}
}
