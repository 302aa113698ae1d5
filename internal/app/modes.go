package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshiboard/internal/notify"
	"github.com/alanyoungcy/kalshiboard/internal/pipeline"
	"github.com/alanyoungcy/kalshiboard/internal/server"
	"github.com/alanyoungcy/kalshiboard/internal/server/handler"
)

// ServerMode serves the HTTP API, keeps the configured categories warm when
// refresh is enabled, and sends the daily digest when digest is enabled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "server mode: starting")
	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)
	if err := a.startPipeline(ctx, g, deps, a.cfg.Digest.Enabled); err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	return g.Wait()
}

// DigestMode builds and sends one digest, then returns.
func (a *App) DigestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "digest mode: sending one digest")
	d, _, err := a.newDigest(deps)
	if err != nil {
		return fmt.Errorf("digest mode: %w", err)
	}
	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("digest mode: %w", err)
	}
	return nil
}

// FullMode is ServerMode with the daily digest always on.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "full mode: starting")
	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)
	if err := a.startPipeline(ctx, g, deps, true); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	return g.Wait()
}

// startPipeline adds the refresher and, when withDigest is set, the daily
// digest to g.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies, withDigest bool) error {
	var refresher *pipeline.Refresher
	if a.cfg.Refresh.Enabled {
		refresher = pipeline.NewRefresher(deps.Queries, a.cfg.CategoryNames(), a.cfg.TTL(), a.logger)
	}

	var (
		digest *pipeline.Digest
		hour   int
	)
	if withDigest {
		d, h, err := a.newDigest(deps)
		if err != nil {
			return err
		}
		digest, hour = d, h
	}

	if refresher == nil && digest == nil {
		return nil
	}
	orch := pipeline.NewOrchestrator(refresher, a.cfg.Refresh.Interval.Duration, digest, hour, a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})
	return nil
}

func (a *App) newDigest(deps *Dependencies) (*pipeline.Digest, int, error) {
	loc, err := time.LoadLocation(a.cfg.Digest.Timezone)
	if err != nil {
		return nil, 0, fmt.Errorf("digest timezone %q: %w", a.cfg.Digest.Timezone, err)
	}
	if !deps.Notifier.Enabled() {
		return nil, 0, fmt.Errorf("digest: no notification sender configured")
	}
	cfg := pipeline.DigestConfig{
		TTL:        a.cfg.TTL(),
		TopN:       a.cfg.Digest.TopN,
		MaxOptions: a.cfg.Digest.MaxOptions,
		Sort:       notify.SortMode(a.cfg.Digest.Sort),
		Location:   loc,
	}
	for _, name := range a.cfg.Digest.Categories {
		cfg.Categories = append(cfg.Categories, a.cfg.Category(name))
	}
	return pipeline.NewDigest(deps.Queries, deps.Notifier, cfg, nil, a.logger), a.cfg.Digest.Hour, nil
}

// startHTTPServer adds the HTTP server goroutine to g. The server is shut
// down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var pinger handler.Pinger
	if deps.Redis != nil {
		pinger = deps.Redis
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(pinger, a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, a.cfg.Query.CacheBackend, a.cfg.TTL(), a.cfg.Query.TopN, deps.Queries),
		Markets: handler.NewMarketHandler(deps.Queries, deps.Markets, a.cfg.Categories, handler.MarketOptions{
			TTL:     a.cfg.TTL(),
			TopN:    a.cfg.Query.TopN,
			MaxTopN: a.cfg.Query.MaxTopN,
		}, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		AdminKey:      a.cfg.Server.AdminKey,
		RefreshLimit:  a.cfg.Server.RefreshLimit,
		RefreshWindow: a.cfg.Server.RefreshWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
