package kalshi

import (
	"encoding/json"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// RawEvent is an event as returned by GET /events. Nested markets are kept
// raw so that one malformed market does not fail the whole page.
type RawEvent struct {
	EventTicker  string            `json:"event_ticker"`
	SeriesTicker string            `json:"series_ticker"`
	Title        string            `json:"title"`
	SubTitle     string            `json:"sub_title"`
	Category     string            `json:"category"`
	Status       string            `json:"status"`
	Markets      []json.RawMessage `json:"markets"`
}

// Context returns the parent-event fields copied onto each nested market.
func (e RawEvent) Context() EventContext {
	return EventContext{
		EventTicker:  e.EventTicker,
		SeriesTicker: e.SeriesTicker,
		Title:        e.Title,
		Category:     e.Category,
	}
}

// EventContext carries the parent-event fields a market record inherits.
// The zero value is valid for markets fetched on their own.
type EventContext struct {
	EventTicker  string
	SeriesTicker string
	Title        string
	Category     string
}

// EventsPage is one page of GET /events.
type EventsPage struct {
	Events []RawEvent
	Cursor string
}

// MarketsPage is one page of GET /markets.
type MarketsPage struct {
	Markets []json.RawMessage
	Cursor  string
}

// EventsQuery holds the GET /events query parameters. Zero values are
// omitted from the request.
type EventsQuery struct {
	Status            string
	WithNestedMarkets bool
	Limit             int
	Cursor            string
	SeriesTicker      string
	Category          string
}

// MarketsQuery holds the GET /markets query parameters.
type MarketsQuery struct {
	Status       string
	EventTicker  string
	SeriesTicker string
	Tickers      []string
	Limit        int
	Cursor       string
}

// rawMarket mirrors the fields of a Kalshi market object that the dashboard
// reads. Every field is decoded leniently: price and volume fields arrive as
// strings, numbers or null depending on API revision.
type rawMarket struct {
	Ticker               json.RawMessage `json:"ticker"`
	EventTicker          string          `json:"event_ticker"`
	Title                string          `json:"title"`
	Subtitle             string          `json:"subtitle"`
	YesSubTitle          string          `json:"yes_sub_title"`
	Status               string          `json:"status"`
	Category             string          `json:"category"`
	YesBidDollars        json.RawMessage `json:"yes_bid_dollars"`
	YesAskDollars        json.RawMessage `json:"yes_ask_dollars"`
	LastPriceDollars     json.RawMessage `json:"last_price_dollars"`
	PreviousPriceDollars json.RawMessage `json:"previous_price_dollars"`
	YesBid               json.RawMessage `json:"yes_bid"`
	YesAsk               json.RawMessage `json:"yes_ask"`
	LastPrice            json.RawMessage `json:"last_price"`
	PreviousPrice        json.RawMessage `json:"previous_price"`
	Volume24H            json.RawMessage `json:"volume_24h"`
	OpenInterest         json.RawMessage `json:"open_interest"`
}

// KalshiErrorResponse represents a Kalshi API error response. Newer API
// revisions nest it under "error".
type KalshiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
