package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages all pipeline goroutines: offer backfill scraping,
// contract-state snapshot refreshing, and cold-storage archival.
type Orchestrator struct {
	offerScraper   *OfferScraper
	stateRefresher *StateRefresher
	archiver       *Archiver
	pollInterval   time.Duration
	archiveCron    string
	logger         *slog.Logger
}

// NewOrchestrator creates a new Orchestrator that coordinates all pipeline
// sub-systems. Any sub-system may be nil when the current mode does not
// carry it; its goroutine is simply not started.
func NewOrchestrator(
	offerScraper *OfferScraper,
	stateRefresher *StateRefresher,
	archiver *Archiver,
	pollInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		offerScraper:   offerScraper,
		stateRefresher: stateRefresher,
		archiver:       archiver,
		pollInterval:   pollInterval,
		archiveCron:    archiveCron,
		logger:         logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts all sub-pipelines as concurrent goroutines using an errgroup.
// Each goroutine respects ctx cancellation. If any goroutine returns a
// non-context error, the errgroup cancels the shared context and Run
// returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("poll_interval", o.pollInterval),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	// 1. Offer backfill scraper on ticker.
	if o.offerScraper != nil {
		g.Go(func() error {
			o.logger.Info("starting offer scraper loop")
			err := o.offerScraper.RunLoop(ctx, o.pollInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("offer scraper: %w", err)
		})
	}

	// 2. Snapshot refresher on ticker, when a chain client is wired.
	if o.stateRefresher != nil {
		g.Go(func() error {
			o.logger.Info("starting state refresher loop")
			err := o.stateRefresher.RunLoop(ctx, o.pollInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("state refresher: %w", err)
		})
	}

	// 3. Archiver on cron schedule.
	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
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
