package kalshi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

var (
	jsonNull = []byte("null")
	cents    = decimal.NewFromInt(100)
)

// Numeric fields longer than maxNumberLen or with an exponent beyond
// maxExponent are treated as missing. Prices and counts never need more.
const (
	maxNumberLen = 32
	maxExponent  = 30
)

// ParseMarket converts one raw Kalshi market object into a MarketRecord.
// Only a missing or non-string ticker, or a payload that is not an object,
// fails the record. Absent or out-of-range prices leave the field unset and
// malformed counters read as zero.
func ParseMarket(raw json.RawMessage, ev EventContext) (domain.MarketRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.MarketRecord{}, &domain.ParseError{Field: "market", Reason: "not a JSON object"}
	}

	var m rawMarket
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return domain.MarketRecord{}, &domain.ParseError{Field: "market", Reason: err.Error()}
	}

	ticker, err := parseTicker(m.Ticker)
	if err != nil {
		return domain.MarketRecord{}, err
	}

	rec := domain.MarketRecord{
		Ticker:        ticker,
		EventTicker:   firstNonEmpty(m.EventTicker, ev.EventTicker),
		SeriesTicker:  ev.SeriesTicker,
		Title:         firstNonEmpty(m.Title, ev.Title),
		EventTitle:    firstNonEmpty(ev.Title, m.Title),
		Subtitle:      firstNonEmpty(m.YesSubTitle, m.Subtitle),
		Category:      firstNonEmpty(ev.Category, m.Category),
		YesPrice:      parsePrice(m.YesBidDollars, m.YesBid),
		YesAsk:        parsePrice(m.YesAskDollars, m.YesAsk),
		LastPrice:     parsePrice(m.LastPriceDollars, m.LastPrice),
		PreviousPrice: parsePrice(m.PreviousPriceDollars, m.PreviousPrice),
		Volume24h:     parseCount(m.Volume24H),
		OpenInterest:  parseCount(m.OpenInterest),
		Status:        domain.ParseMarketStatus(m.Status),
	}
	return rec, nil
}

func parseTicker(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return "", &domain.ParseError{Field: "ticker", Reason: "missing"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &domain.ParseError{Field: "ticker", Reason: "not a string"}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &domain.ParseError{Field: "ticker", Reason: "empty"}
	}
	return s, nil
}

// parsePrice prefers the dollar-denominated field and falls back to the
// legacy cents field.
func parsePrice(dollars, centsField json.RawMessage) decimal.NullDecimal {
	if d, ok := parseNumber(dollars); ok {
		return validPrice(d)
	}
	if c, ok := parseNumber(centsField); ok {
		return validPrice(c.Div(cents))
	}
	return decimal.NullDecimal{}
}

func validPrice(d decimal.Decimal) decimal.NullDecimal {
	if !domain.ValidPrice(d) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func parseCount(raw json.RawMessage) int64 {
	d, ok := parseNumber(raw)
	if !ok || d.IsNegative() || !d.BigInt().IsInt64() {
		return 0
	}
	return d.IntPart()
}

// parseNumber accepts a JSON number or a numeric string.
func parseNumber(raw json.RawMessage) (decimal.Decimal, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return decimal.Zero, false
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, false
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return decimal.Zero, false
		}
	}
	if len(s) > maxNumberLen {
		return decimal.Zero, false
	}
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		exp, err := strconv.Atoi(s[i+1:])
		if err != nil || exp > maxExponent || exp < -maxExponent {
			return decimal.Zero, false
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
