// Package config defines the top-level configuration for kalshiboard and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by KALSHIBOARD_* environment variables.
type Config struct {
	Kalshi     KalshiConfig      `toml:"kalshi"`
	Query      QueryConfig       `toml:"query"`
	Categories []domain.Category `toml:"categories"`
	Redis      RedisConfig       `toml:"redis"`
	Server     ServerConfig      `toml:"server"`
	Refresh    RefreshConfig     `toml:"refresh"`
	Digest     DigestConfig      `toml:"digest"`
	Notify     NotifyConfig      `toml:"notify"`
	Mode       string            `toml:"mode"`
	LogLevel   string            `toml:"log_level"`
}

// KalshiConfig holds the Kalshi REST endpoint and client parameters.
type KalshiConfig struct {
	BaseURL        string   `toml:"base_url"`
	ApiKey         string   `toml:"api_key"`
	Timeout        duration `toml:"timeout"`
	EventsPageSize int      `toml:"events_page_size"`
}

// QueryConfig controls the caching query layer.
type QueryConfig struct {
	TTL          duration `toml:"ttl"`
	TopN         int      `toml:"top_n"`
	MaxTopN      int      `toml:"max_top_n"`
	CacheBackend string   `toml:"cache_backend"` // "memory" or "redis"
}

// RedisConfig holds Redis connection parameters. Only used when
// query.cache_backend is "redis".
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	Retention  duration `toml:"retention"`
	LockTTL    duration `toml:"lock_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters. RefreshLimit caps POST
// /api/refresh calls per client within RefreshWindow; it needs the redis
// backend and zero disables it. AdminKey, when set, is required on
// /api/refresh.
type ServerConfig struct {
	Port          int      `toml:"port"`
	CORSOrigins   []string `toml:"cors_origins"`
	AdminKey      string   `toml:"admin_key"`
	RefreshLimit  int      `toml:"refresh_limit"`
	RefreshWindow duration `toml:"refresh_window"`
}

// RefreshConfig controls the background cache warmer.
type RefreshConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// DigestConfig controls the scheduled market digest.
type DigestConfig struct {
	Enabled    bool     `toml:"enabled"`
	Hour       int      `toml:"hour"`
	Timezone   string   `toml:"timezone"`
	TopN       int      `toml:"top_n"`
	MaxOptions int      `toml:"max_options"`
	Sort       string   `toml:"sort"` // "volume" or "price_change"
	Categories []string `toml:"categories"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL:        "https://api.elections.kalshi.com/trade-api/v2",
			Timeout:        duration{30 * time.Second},
			EventsPageSize: 200,
		},
		Query: QueryConfig{
			TTL:          duration{60 * time.Second},
			TopN:         10,
			MaxTopN:      50,
			CacheBackend: "memory",
		},
		Categories: []domain.Category{
			{Name: "economics", Label: "Economics", Icon: "💰"},
			{Name: "politics", Label: "Politics", Icon: "🏛️"},
			{Name: "crypto", Label: "Crypto", Icon: "🪙"},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			KeyPrefix:  "kalshiboard:",
			Retention:  duration{time.Hour},
			LockTTL:    duration{45 * time.Second},
		},
		Server: ServerConfig{
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			RefreshLimit:  6,
			RefreshWindow: duration{time.Minute},
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Interval: duration{60 * time.Second},
		},
		Digest: DigestConfig{
			Enabled:    false,
			Hour:       8,
			Timezone:   "Asia/Singapore",
			TopN:       5,
			MaxOptions: 4,
			Sort:       "volume",
			Categories: []string{"politics", "economics"},
		},
		Notify: NotifyConfig{
			Events: []string{"digest", "error"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"digest": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validDigestSorts = map[string]bool{
	"volume":       true,
	"price_change": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, digest, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Kalshi
	if strings.TrimSpace(c.Kalshi.BaseURL) == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Kalshi.Timeout.Duration <= 0 {
		errs = append(errs, "kalshi: timeout must be > 0")
	}
	if c.Kalshi.EventsPageSize < 1 || c.Kalshi.EventsPageSize > 200 {
		errs = append(errs, fmt.Sprintf("kalshi: events_page_size must be 1-200, got %d", c.Kalshi.EventsPageSize))
	}

	// Query
	if c.Query.TTL.Duration < 0 {
		errs = append(errs, "query: ttl must be >= 0")
	}
	if c.Query.TopN < 0 {
		errs = append(errs, "query: top_n must be >= 0")
	}
	if c.Query.MaxTopN < c.Query.TopN {
		errs = append(errs, fmt.Sprintf("query: max_top_n (%d) must be >= top_n (%d)", c.Query.MaxTopN, c.Query.TopN))
	}
	backend := strings.ToLower(c.Query.CacheBackend)
	if backend != "memory" && backend != "redis" {
		errs = append(errs, fmt.Sprintf("query: unknown cache_backend %q (valid: memory, redis)", c.Query.CacheBackend))
	}

	// Categories
	if len(c.Categories) == 0 {
		errs = append(errs, "categories: at least one category is required")
	}
	seen := make(map[string]bool, len(c.Categories))
	for i, cat := range c.Categories {
		name := domain.NormalizeCategory(cat.Name)
		if name == "" {
			errs = append(errs, fmt.Sprintf("categories[%d]: name must not be empty", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Sprintf("categories[%d]: duplicate name %q", i, cat.Name))
		}
		seen[name] = true
	}

	// Redis
	if backend == "redis" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.Retention.Duration < 0 {
			errs = append(errs, "redis: retention must be >= 0")
		}
		if c.Redis.Retention.Duration > 0 && c.Redis.Retention.Duration < c.Query.TTL.Duration {
			errs = append(errs, "redis: retention must be 0 or >= query.ttl")
		}
		if c.Redis.LockTTL.Duration <= c.Kalshi.Timeout.Duration {
			errs = append(errs, fmt.Sprintf("redis: lock_ttl (%s) must be > kalshi.timeout (%s)",
				c.Redis.LockTTL.Duration, c.Kalshi.Timeout.Duration))
		}
	}

	// Server
	if c.Mode != "digest" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}
	if c.Server.RefreshLimit < 0 {
		errs = append(errs, "server: refresh_limit must be >= 0")
	}
	if c.Server.RefreshLimit > 0 && c.Server.RefreshWindow.Duration <= 0 {
		errs = append(errs, "server: refresh_window must be > 0 when refresh_limit is set")
	}

	// Refresh
	if c.Refresh.Enabled && c.Refresh.Interval.Duration <= 0 {
		errs = append(errs, "refresh: interval must be > 0 when enabled")
	}

	// Digest
	if c.DigestActive() {
		if c.Digest.Hour < 0 || c.Digest.Hour > 23 {
			errs = append(errs, fmt.Sprintf("digest: hour must be 0-23, got %d", c.Digest.Hour))
		}
		if _, err := time.LoadLocation(c.Digest.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("digest: unknown timezone %q", c.Digest.Timezone))
		}
		if c.Digest.TopN < 1 {
			errs = append(errs, "digest: top_n must be >= 1")
		}
		if c.Digest.MaxOptions < 1 {
			errs = append(errs, "digest: max_options must be >= 1")
		}
		if !validDigestSorts[c.Digest.Sort] {
			errs = append(errs, fmt.Sprintf("digest: unknown sort %q (valid: volume, price_change)", c.Digest.Sort))
		}
		if len(c.Digest.Categories) == 0 {
			errs = append(errs, "digest: at least one category is required")
		}
		if c.Notify.TelegramToken == "" && c.Notify.DiscordWebhookURL == "" {
			errs = append(errs, "notify: telegram_token or discord_webhook_url is required for the digest")
		}
		if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
			errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// TTL returns the query cache TTL.
func (c *Config) TTL() time.Duration { return c.Query.TTL.Duration }

// DigestActive reports whether the current mode sends digests.
func (c *Config) DigestActive() bool {
	mode := strings.ToLower(c.Mode)
	return c.Digest.Enabled || mode == "digest" || mode == "full"
}

// Category returns the configured category called name. Unknown names get a
// bare Category labelled with the name itself.
func (c *Config) Category(name string) domain.Category {
	key := domain.NormalizeCategory(name)
	for _, cat := range c.Categories {
		if domain.NormalizeCategory(cat.Name) == key {
			return cat
		}
	}
	return domain.Category{Name: key, Label: strings.TrimSpace(name)}
}

// CategoryNames returns the normalised names of the configured categories.
func (c *Config) CategoryNames() []string {
	names := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		names = append(names, domain.NormalizeCategory(cat.Name))
	}
	return names
}
