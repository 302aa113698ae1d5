package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen    MarketStatus = "open"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
	MarketStatusUnknown MarketStatus = "unknown"
)

// ParseMarketStatus maps the exchange's status vocabulary onto MarketStatus.
// Kalshi reports tradeable nested markets as "active" even when the events
// query filters on "open".
func ParseMarketStatus(s string) MarketStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "active":
		return MarketStatusOpen
	case "closed", "inactive", "paused":
		return MarketStatusClosed
	case "settled", "finalized", "determined":
		return MarketStatusSettled
	default:
		return MarketStatusUnknown
	}
}

// Price bounds for a yes contract, in dollars.
var (
	MinPrice = decimal.RequireFromString("0.01")
	MaxPrice = decimal.RequireFromString("0.99")
)

// ValidPrice reports whether d lies within [MinPrice, MaxPrice].
func ValidPrice(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(MinPrice) && d.LessThanOrEqual(MaxPrice)
}

// MarketRecord is one tradeable yes/no outcome on the exchange. Prices are in
// dollars; an absent or out-of-range price has Valid == false.
type MarketRecord struct {
	Ticker        string              `json:"ticker"`
	EventTicker   string              `json:"event_ticker"`
	SeriesTicker  string              `json:"series_ticker,omitempty"`
	Title         string              `json:"title"`
	EventTitle    string              `json:"event_title"`
	Subtitle      string              `json:"subtitle"`
	Category      string              `json:"category"`
	YesPrice      decimal.NullDecimal `json:"yes_price"`
	YesAsk        decimal.NullDecimal `json:"yes_ask"`
	LastPrice     decimal.NullDecimal `json:"last_price"`
	PreviousPrice decimal.NullDecimal `json:"previous_price"`
	Volume24h     int64               `json:"volume_24h"`
	OpenInterest  int64               `json:"open_interest"`
	Status        MarketStatus        `json:"status"`
}

var hundred = decimal.NewFromInt(100)

// Probability returns the yes price as a whole percentage.
func (m MarketRecord) Probability() (int, bool) {
	if !m.YesPrice.Valid {
		return 0, false
	}
	return int(m.YesPrice.Decimal.Mul(hundred).IntPart()), true
}

// PriceChange returns the move from the previous price to the last traded
// price (or the yes price when nothing has traded), in dollars.
func (m MarketRecord) PriceChange() (decimal.Decimal, bool) {
	if !m.PreviousPrice.Valid {
		return decimal.Zero, false
	}
	current := m.LastPrice
	if !current.Valid {
		current = m.YesPrice
	}
	if !current.Valid {
		return decimal.Zero, false
	}
	return current.Decimal.Sub(m.PreviousPrice.Decimal), true
}

// PriceChangePoints returns PriceChange in percentage points.
func (m MarketRecord) PriceChangePoints() (int, bool) {
	d, ok := m.PriceChange()
	if !ok {
		return 0, false
	}
	return int(d.Mul(hundred).Round(0).IntPart()), true
}

// Sentiment buckets the implied probability into a human-readable label.
func (m MarketRecord) Sentiment() string {
	p, ok := m.Probability()
	switch {
	case !ok:
		return "Unknown"
	case p >= 80:
		return "Very Likely"
	case p >= 60:
		return "Likely"
	case p >= 40:
		return "Uncertain"
	case p >= 20:
		return "Unlikely"
	default:
		return "Very Unlikely"
	}
}

// EventSummary groups the open markets of one event, e.g. every candidate in
// a "who will be nominated" question.
type EventSummary struct {
	EventTicker          string         `json:"event_ticker"`
	SeriesTicker         string         `json:"series_ticker,omitempty"`
	Title                string         `json:"title"`
	Category             string         `json:"category"`
	Options              []MarketRecord `json:"options"`
	TotalVolume          int64          `json:"total_volume"`
	NumMarkets           int            `json:"num_markets"`
	MaxPriceChangePoints int            `json:"max_price_change_points"`
}

// CategorySnapshot is the full ranked view of one category at FetchedAt. It
// is what the query cache stores.
type CategorySnapshot struct {
	Category  string         `json:"category"`
	Markets   []MarketRecord `json:"markets"`
	Events    []EventSummary `json:"events"`
	Skipped   int            `json:"skipped"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// CategoryQueryResult is the top-N markets of a category, sorted by 24h
// volume descending with ties broken by ticker. It is never mutated after
// construction.
type CategoryQueryResult struct {
	Category  string         `json:"category"`
	Markets   []MarketRecord `json:"markets"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// EventQueryResult is the top-N events of a category by total 24h volume.
type EventQueryResult struct {
	Category  string         `json:"category"`
	Events    []EventSummary `json:"events"`
	FetchedAt time.Time      `json:"fetched_at"`
}
