// Package pipeline runs the background jobs around the fill engine: polling
// the relay for offers the WebSocket feed may have missed, refreshing
// contract-state snapshots for tracked offers, and archiving settled
// history to cold storage.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianxyz/fillbot/internal/domain"
	"github.com/meridianxyz/fillbot/internal/platform/relay"
)

// OfferLister pages through offers on the relay.
type OfferLister interface {
	ListOffers(ctx context.Context, q relay.ListQuery) ([]domain.Offer, string, error)
}

// OfferSink lands fetched offers locally. Implemented by the feed ingestor.
type OfferSink interface {
	HandleOffer(ctx context.Context, offer domain.Offer)
}

// OfferScraper backfills offers from the relay's REST listing. The
// WebSocket feed is best-effort; this poll guarantees every fillable offer
// eventually lands in the store.
type OfferScraper struct {
	lister OfferLister
	sink   OfferSink
	logger *slog.Logger
}

// NewOfferScraper creates a new OfferScraper.
func NewOfferScraper(lister OfferLister, sink OfferSink, logger *slog.Logger) *OfferScraper {
	return &OfferScraper{
		lister: lister,
		sink:   sink,
		logger: logger.With(slog.String("component", "offer_scraper")),
	}
}

// Run executes a single scrape pass, paginating through all fillable offers
// on the relay and handing each to the sink.
func (s *OfferScraper) Run(ctx context.Context) error {
	const pageSize = 100
	cursor := ""
	totalSynced := 0

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("offer scraper context cancelled: %w", err)
		}

		offers, next, err := s.lister.ListOffers(ctx, relay.ListQuery{
			Status: domain.OfferStatusFillable.String(),
			Limit:  pageSize,
			Cursor: cursor,
		})
		if err != nil {
			return fmt.Errorf("fetching offers at cursor %q: %w", cursor, err)
		}

		for i := range offers {
			s.sink.HandleOffer(ctx, offers[i])
		}

		totalSynced += len(offers)
		if len(offers) > 0 {
			s.logger.Info("synced offer batch",
				slog.Int("batch_size", len(offers)),
				slog.Int("total_synced", totalSynced),
			)
		}

		if next == "" || len(offers) == 0 {
			break
		}
		cursor = next
	}

	s.logger.Info("offer scrape complete", slog.Int("total_synced", totalSynced))
	return nil
}

// RunLoop runs the scraper on a repeating interval until the context is
// cancelled.
func (s *OfferScraper) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := s.Run(ctx); err != nil {
		s.logger.Error("offer scrape failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("offer scraper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("offer scrape failed", slog.String("error", err.Error()))
			}
		}
	}
}
