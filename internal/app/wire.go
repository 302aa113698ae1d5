package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/kalshiboard/internal/cache/memory"
	"github.com/alanyoungcy/kalshiboard/internal/cache/redis"
	"github.com/alanyoungcy/kalshiboard/internal/config"
	"github.com/alanyoungcy/kalshiboard/internal/domain"
	"github.com/alanyoungcy/kalshiboard/internal/notify"
	"github.com/alanyoungcy/kalshiboard/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshiboard/internal/service"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Upstream
	Kalshi *kalshi.Client

	// Services
	Markets *service.MarketService
	Queries *service.QueryService

	// Cache backend
	Cache       domain.SnapshotCache
	Locks       domain.KeyLocker
	RateLimiter domain.RateLimiter // nil with the memory backend
	Redis       *redis.Client      // nil with the memory backend

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Kalshi REST client ---
	opts := []kalshi.ClientOption{
		kalshi.WithTimeout(cfg.Kalshi.Timeout.Duration),
		kalshi.WithLogger(logger),
	}
	if cfg.Kalshi.ApiKey != "" {
		opts = append(opts, kalshi.WithAPIKey(cfg.Kalshi.ApiKey))
	}
	deps.Kalshi = kalshi.NewClient(cfg.Kalshi.BaseURL, opts...)

	deps.Markets = service.NewMarketService(deps.Kalshi, logger,
		service.WithCategories(cfg.Categories),
		service.WithEventsPageSize(cfg.Kalshi.EventsPageSize),
	)

	// --- Cache backend ---
	switch strings.ToLower(cfg.Query.CacheBackend) {
	case "redis":
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.Cache = redis.NewSnapshotCache(redisClient, cfg.Redis.Retention.Duration)
		deps.Locks = redis.NewLockManager(redisClient, cfg.Redis.LockTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	default:
		deps.Cache = memory.NewSnapshotCache()
		deps.Locks = memory.NewKeyLocker()
	}

	deps.Queries = service.NewQueryService(deps.Markets, deps.Cache, deps.Locks, nil, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
