package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages the long-lived pipeline goroutines: event
// recording, market metadata refresh, and cold-storage retention. Any
// nil job is skipped, so each run mode composes the set it needs.
type Orchestrator struct {
	recorder        *Recorder
	markets         *MarketRefresher
	retention       *Retention
	refreshInterval time.Duration
	retentionCron   string
	logger          *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given jobs.
func NewOrchestrator(
	recorder *Recorder,
	markets *MarketRefresher,
	retention *Retention,
	refreshInterval time.Duration,
	retentionCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		recorder:        recorder,
		markets:         markets,
		retention:       retention,
		refreshInterval: refreshInterval,
		retentionCron:   retentionCron,
		logger:          logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts the configured jobs as concurrent goroutines using an
// errgroup. Each goroutine respects ctx cancellation. If any goroutine
// returns a non-context error, the errgroup cancels the shared context
// and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Bool("recorder", o.recorder != nil),
		slog.Bool("markets", o.markets != nil),
		slog.Bool("retention", o.retention != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.recorder != nil {
		g.Go(func() error {
			o.logger.Info("starting recorder")
			err := o.recorder.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("recorder: %w", err)
		})
	}

	if o.markets != nil {
		g.Go(func() error {
			o.logger.Info("starting market refresher loop",
				slog.Duration("interval", o.refreshInterval),
			)
			err := o.markets.RunLoop(ctx, o.refreshInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("market refresher: %w", err)
		})
	}

	if o.retention != nil {
		g.Go(func() error {
			o.logger.Info("starting retention cron", slog.String("cron", o.retentionCron))
			err := o.retention.RunCron(ctx, o.retentionCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("retention: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
