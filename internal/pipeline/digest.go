package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
	"github.com/alanyoungcy/kalshiboard/internal/notify"
)

// DigestNotifier delivers rendered digests and failure alerts.
// *notify.Notifier satisfies it.
type DigestNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
	NotifyError(ctx context.Context, title string, err error) error
}

// DigestConfig holds the digest content settings.
type DigestConfig struct {
	Categories []domain.Category
	TTL        time.Duration
	TopN       int
	MaxOptions int
	Sort       notify.SortMode
	Location   *time.Location
}

// Digest builds the top-events digest from cached snapshots and sends it.
type Digest struct {
	queries  SnapshotQuerier
	notifier DigestNotifier
	cfg      DigestConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewDigest creates a Digest. now defaults to time.Now.
func NewDigest(queries SnapshotQuerier, notifier DigestNotifier, cfg DigestConfig, now func() time.Time, logger *slog.Logger) *Digest {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Digest{
		queries:  queries,
		notifier: notifier,
		cfg:      cfg,
		now:      now,
		logger:   logger.With(slog.String("component", "digest")),
	}
}

// Build renders the digest. Categories that fail to load are left out; Build
// fails only when every category failed.
func (d *Digest) Build(ctx context.Context) (string, error) {
	sections := make([]notify.DigestSection, 0, len(d.cfg.Categories))
	var errs []error
	for _, cat := range d.cfg.Categories {
		snap, err := d.queries.Query(ctx, cat.Name, d.cfg.TTL)
		if err != nil {
			d.logger.ErrorContext(ctx, "digest category failed",
				slog.String("category", cat.Name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", cat.Name, err))
			continue
		}
		// The snapshot may be shared with the cache; sort a copy.
		events := append([]domain.EventSummary(nil), snap.Events...)
		notify.SortEvents(events, d.cfg.Sort)
		if len(events) > d.cfg.TopN {
			events = events[:d.cfg.TopN]
		}
		sections = append(sections, notify.DigestSection{Category: cat, Events: events})
	}
	if len(sections) == 0 && len(errs) > 0 {
		return "", fmt.Errorf("digest: no category loaded: %w", errors.Join(errs...))
	}
	return notify.FormatDigest(sections, d.cfg.Sort, d.now().In(d.cfg.Location), d.cfg.MaxOptions), nil
}

// Run builds and sends one digest. A build failure is reported on the error
// channel as well as returned.
func (d *Digest) Run(ctx context.Context) error {
	msg, err := d.Build(ctx)
	if err != nil {
		if nerr := d.notifier.NotifyError(ctx, "Kalshi digest failed", err); nerr != nil {
			d.logger.WarnContext(ctx, "error alert not delivered", slog.String("error", nerr.Error()))
		}
		return err
	}
	if err := d.notifier.Notify(ctx, notify.EventDigest, "", msg); err != nil {
		return fmt.Errorf("digest: send: %w", err)
	}
	d.logger.InfoContext(ctx, "digest sent", slog.Int("bytes", len(msg)))
	return nil
}

// RunDaily sends the digest every day at hour:00 in the configured location
// until the context is cancelled.
func (d *Digest) RunDaily(ctx context.Context, hour int) error {
	for {
		next := nextDailyRun(d.now(), hour, d.cfg.Location)
		wait := next.Sub(d.now())
		d.logger.InfoContext(ctx, "digest waiting for next run",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Info("digest scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			if err := d.Run(ctx); err != nil {
				d.logger.ErrorContext(ctx, "digest run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// nextDailyRun returns the first hour:00 in loc strictly after now.
func nextDailyRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return next
}
