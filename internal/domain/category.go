package domain

import (
	"strings"
	"unicode"
)

// Category is a dashboard section. Name is what callers query by; Label and
// Icon are presentational. Match lists the exchange categories the section
// draws from; when empty the built-in mapping applies.
type Category struct {
	Name  string   `json:"name" toml:"name"`
	Label string   `json:"label" toml:"label"`
	Icon  string   `json:"icon" toml:"icon"`
	Match []string `json:"match,omitempty" toml:"match"`
}

// NormalizeCategory is the canonical cache/lookup key for a category name.
func NormalizeCategory(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// categorySources maps dashboard category names onto the exchange's own
// category names.
var categorySources = map[string][]string{
	"economics":      {"financials", "economics"},
	"crypto":         {"financials"},
	"politics":       {"politics", "elections"},
	"elections":      {"elections"},
	"financials":     {"financials"},
	"sports":         {"sports"},
	"entertainment":  {"entertainment"},
	"climate":        {"climate and weather"},
	"weather":        {"climate and weather"},
	"health":         {"health"},
	"science":        {"science and technology"},
	"technology":     {"science and technology"},
	"world":          {"world"},
	"companies":      {"companies"},
	"social":         {"social"},
	"transportation": {"transportation"},
}

// cryptoKeywords identify crypto events inside the exchange's Financials
// category. Matched as whole words or phrases.
var cryptoKeywords = []string{
	"bitcoin", "btc", "ethereum", "eth", "crypto", "cryptocurrency",
	"solana", "sol", "dogecoin", "doge", "xrp", "ripple", "cardano",
	"ada", "polkadot", "dot", "avalanche", "avax", "chainlink", "link",
	"polygon", "matic", "litecoin", "ltc", "uniswap", "uni", "shiba",
	"pepe", "memecoin", "altcoin", "defi", "nft", "web3", "binance",
	"coinbase", "stablecoin", "usdt", "usdc",
}

// CategoryMatcher decides whether an upstream event belongs to a dashboard
// category.
type CategoryMatcher struct {
	name    string
	sources []string
}

// NewCategoryMatcher builds a matcher for name. overrides, when non-empty,
// replace the built-in exchange category list.
func NewCategoryMatcher(name string, overrides []string) CategoryMatcher {
	key := NormalizeCategory(name)
	var sources []string
	if len(overrides) > 0 {
		for _, o := range overrides {
			if o = NormalizeCategory(o); o != "" {
				sources = append(sources, o)
			}
		}
	} else if mapped, ok := categorySources[key]; ok {
		sources = mapped
	} else if key != "" {
		sources = []string{key}
	}
	return CategoryMatcher{name: key, sources: sources}
}

// Name returns the normalised category name.
func (m CategoryMatcher) Name() string { return m.name }

// Matches reports whether an event with the given exchange category and
// title belongs to this dashboard category. Crypto events must mention a
// coin; Economics leaves them out.
func (m CategoryMatcher) Matches(eventCategory, eventTitle string) bool {
	ec := NormalizeCategory(eventCategory)
	if ec == "" {
		return false
	}
	matched := false
	for _, src := range m.sources {
		if strings.Contains(ec, src) || strings.Contains(src, ec) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	switch m.name {
	case "crypto":
		return IsCryptoTitle(eventTitle)
	case "economics":
		return !IsCryptoTitle(eventTitle)
	}
	return true
}

// IsCryptoTitle reports whether title mentions a crypto keyword as a word.
func IsCryptoTitle(title string) bool {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	for _, kw := range cryptoKeywords {
		if _, ok := set[kw]; ok {
			return true
		}
	}
	return false
}
