package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the background jobs side by side: the category
// refresher and the daily digest. Either may be nil.
type Orchestrator struct {
	refresher       *Refresher
	refreshInterval time.Duration
	digest          *Digest
	digestHour      int
	logger          *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	refresher *Refresher,
	refreshInterval time.Duration,
	digest *Digest,
	digestHour int,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		refresher:       refresher,
		refreshInterval: refreshInterval,
		digest:          digest,
		digestHour:      digestHour,
		logger:          logger,
	}
}

// Run starts the configured jobs under an errgroup and blocks until ctx is
// cancelled. A job returning anything but a context error cancels the rest.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if o.refresher != nil {
		g.Go(func() error {
			err := o.refresher.RunLoop(ctx, o.refreshInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("refresher: %w", err)
		})
	}

	if o.digest != nil {
		g.Go(func() error {
			err := o.digest.RunDaily(ctx, o.digestHour)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("digest scheduler: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline stopped cleanly")
	return nil
}
