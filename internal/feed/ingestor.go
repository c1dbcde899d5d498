package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/meridianxyz/fillbot/internal/domain"
	"github.com/meridianxyz/fillbot/internal/platform/relay"
)

// OfferIngestor lands relayed offers in the store and cache and announces
// them on the local bus. The stored document is the immutable signed offer;
// status and filled amount are last-observed snapshots for monitoring.
type OfferIngestor struct {
	offers domain.OfferStore
	cache  domain.OfferCache
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewOfferIngestor creates an ingestor writing through to the given store,
// cache, and bus.
func NewOfferIngestor(offers domain.OfferStore, cache domain.OfferCache, bus domain.SignalBus, logger *slog.Logger) *OfferIngestor {
	return &OfferIngestor{
		offers: offers,
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "offer_ingestor")),
	}
}

// HandleOffer upserts a full offer document and publishes an offer_created
// event for the strategy feeder.
func (i *OfferIngestor) HandleOffer(ctx context.Context, offer domain.Offer) {
	now := time.Now().UTC()
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = now
	}
	offer.UpdatedAt = now

	if err := i.offers.Upsert(ctx, offer); err != nil {
		i.logger.Error("offer upsert failed",
			slog.String("offer_id", offer.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := i.cache.Set(ctx, offer); err != nil {
		i.logger.Warn("offer cache set failed",
			slog.String("offer_id", offer.ID),
			slog.String("error", err.Error()),
		)
	}

	i.publish(ctx, "offer_created", offer.ID)

	i.logger.Debug("offer ingested",
		slog.String("offer_id", offer.ID),
		slog.String("kind", string(offer.Kind)),
		slog.String("status", offer.Status.String()),
	)
}

// HandleUpdate applies a lifecycle update to the stored snapshot and
// invalidates the cached document so the next read sees the new status.
func (i *OfferIngestor) HandleUpdate(ctx context.Context, update relay.OfferUpdate) {
	offer, err := i.offers.GetByID(ctx, update.OfferID)
	if err != nil {
		// An update for an offer we never ingested; the scraper backfills.
		i.logger.Debug("update for unknown offer",
			slog.String("offer_id", update.OfferID),
		)
		return
	}

	if err := i.offers.UpdateSnapshot(ctx, update.OfferID, update.Status, offer.CumulativeTakerFilled); err != nil {
		i.logger.Error("snapshot update failed",
			slog.String("offer_id", update.OfferID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := i.cache.Invalidate(ctx, update.OfferID); err != nil {
		i.logger.Warn("offer cache invalidate failed",
			slog.String("offer_id", update.OfferID),
			slog.String("error", err.Error()),
		)
	}

	i.publish(ctx, "offer_"+update.Status.String(), update.OfferID)
}

func (i *OfferIngestor) publish(ctx context.Context, event, offerID string) {
	evt, _ := json.Marshal(map[string]string{
		"event":    event,
		"offer_id": offerID,
	})
	if err := i.bus.Publish(ctx, "offers", evt); err != nil {
		i.logger.Warn("publish event failed",
			slog.String("event", event),
			slog.String("offer_id", offerID),
			slog.String("error", err.Error()),
		)
	}
}
