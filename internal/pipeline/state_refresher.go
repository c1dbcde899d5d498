package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// StateReader reads the settlement contract's view of an offer.
type StateReader interface {
	OfferState(ctx context.Context, offer domain.Offer) (domain.OfferState, error)
}

// StateRefresher periodically re-reads the contract state of every tracked
// fillable offer and updates the stored snapshot. The snapshot feeds
// monitoring and strategy screening only; fill validation always reads the
// contract directly, so this loop can lag without affecting correctness.
type StateRefresher struct {
	offers domain.OfferStore
	state  StateReader
	logger *slog.Logger
}

// NewStateRefresher creates a new StateRefresher.
func NewStateRefresher(offers domain.OfferStore, state StateReader, logger *slog.Logger) *StateRefresher {
	return &StateRefresher{
		offers: offers,
		state:  state,
		logger: logger.With(slog.String("component", "state_refresher")),
	}
}

// Run executes a single refresh pass over all locally-fillable offers.
func (r *StateRefresher) Run(ctx context.Context) error {
	const pageSize = 100
	offset := 0
	refreshed := 0

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("state refresher context cancelled: %w", err)
		}

		offers, err := r.offers.ListFillable(ctx, domain.ListOpts{Limit: pageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("listing fillable offers at offset %d: %w", offset, err)
		}
		if len(offers) == 0 {
			break
		}

		for i := range offers {
			offer := offers[i]
			state, err := r.state.OfferState(ctx, offer)
			if err != nil {
				r.logger.Warn("state read failed",
					slog.String("offer_id", offer.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if state.Status == offer.Status && state.CumulativeTakerFilled.Eq(offer.CumulativeTakerFilled) {
				continue
			}
			if err := r.offers.UpdateSnapshot(ctx, offer.ID, state.Status, state.CumulativeTakerFilled); err != nil {
				r.logger.Warn("snapshot update failed",
					slog.String("offer_id", offer.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			refreshed++
		}

		if len(offers) < pageSize {
			break
		}
		offset += pageSize
	}

	if refreshed > 0 {
		r.logger.Info("snapshots refreshed", slog.Int("count", refreshed))
	}
	return nil
}

// RunLoop runs the refresher on a repeating interval until the context is
// cancelled.
func (r *StateRefresher) RunLoop(ctx context.Context, interval time.Duration) error {
	if err := r.Run(ctx); err != nil {
		r.logger.Error("state refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("state refresher loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Run(ctx); err != nil {
				r.logger.Error("state refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
