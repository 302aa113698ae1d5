package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix is prepended to every environment override.
const envPrefix = "KALSHIBOARD_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies KALSHIBOARD_* environment variable overrides,
// and returns the final Config. A missing file is not an error: defaults and
// the environment are enough to run the dashboard. The returned Config has
// NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Category tables replace the defaults wholesale rather than merging
	// field by field into them.
	defaultCategories := cfg.Categories
	cfg.Categories = nil

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = defaultCategories
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known KALSHIBOARD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.BaseURL, envPrefix+"KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.ApiKey, envPrefix+"KALSHI_API_KEY")
	setDuration(&cfg.Kalshi.Timeout, envPrefix+"KALSHI_TIMEOUT")
	setInt(&cfg.Kalshi.EventsPageSize, envPrefix+"KALSHI_EVENTS_PAGE_SIZE")

	// ── Query ──
	setDuration(&cfg.Query.TTL, envPrefix+"QUERY_TTL")
	setInt(&cfg.Query.TopN, envPrefix+"QUERY_TOP_N")
	setInt(&cfg.Query.MaxTopN, envPrefix+"QUERY_MAX_TOP_N")
	setStr(&cfg.Query.CacheBackend, envPrefix+"QUERY_CACHE_BACKEND")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, envPrefix+"REDIS_ADDR")
	setStr(&cfg.Redis.Password, envPrefix+"REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, envPrefix+"REDIS_DB")
	setInt(&cfg.Redis.PoolSize, envPrefix+"REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, envPrefix+"REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, envPrefix+"REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, envPrefix+"REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.Retention, envPrefix+"REDIS_RETENTION")
	setDuration(&cfg.Redis.LockTTL, envPrefix+"REDIS_LOCK_TTL")

	// ── Server ──
	setInt(&cfg.Server.Port, envPrefix+"SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, envPrefix+"SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminKey, envPrefix+"SERVER_ADMIN_KEY")
	setInt(&cfg.Server.RefreshLimit, envPrefix+"SERVER_REFRESH_LIMIT")
	setDuration(&cfg.Server.RefreshWindow, envPrefix+"SERVER_REFRESH_WINDOW")

	// ── Refresh ──
	setBool(&cfg.Refresh.Enabled, envPrefix+"REFRESH_ENABLED")
	setDuration(&cfg.Refresh.Interval, envPrefix+"REFRESH_INTERVAL")

	// ── Digest ──
	setBool(&cfg.Digest.Enabled, envPrefix+"DIGEST_ENABLED")
	setInt(&cfg.Digest.Hour, envPrefix+"DIGEST_HOUR")
	setStr(&cfg.Digest.Timezone, envPrefix+"DIGEST_TIMEZONE")
	setInt(&cfg.Digest.TopN, envPrefix+"DIGEST_TOP_N")
	setInt(&cfg.Digest.MaxOptions, envPrefix+"DIGEST_MAX_OPTIONS")
	setStr(&cfg.Digest.Sort, envPrefix+"DIGEST_SORT")
	setStringSlice(&cfg.Digest.Categories, envPrefix+"DIGEST_CATEGORIES")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, envPrefix+"NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, envPrefix+"NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, envPrefix+"NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, envPrefix+"NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, envPrefix+"MODE")
	setStr(&cfg.LogLevel, envPrefix+"LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
