package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// ratioScale converts the configured float ratio into parts-per-million so
// the request size is computed in pure integer arithmetic.
const ratioScale = 1_000_000

// RatioFill requests a fixed fraction of the remaining fillable amount.
// When the offer has not been filled yet, the request is raised to the
// maker's first-fill minimum if the fraction falls below it, capped at the
// remaining amount.
type RatioFill struct {
	cfg Config
	ppm domain.Amount
}

// NewRatioFill returns the ratio policy. The ratio must be in (0, 1].
func NewRatioFill(cfg Config) (*RatioFill, error) {
	if cfg.FillRatio <= 0 || cfg.FillRatio > 1 {
		return nil, fmt.Errorf("strategy: fill ratio must be in (0, 1], got %v", cfg.FillRatio)
	}
	return &RatioFill{
		cfg: cfg,
		ppm: domain.NewAmount(uint64(cfg.FillRatio * ratioScale)),
	}, nil
}

var _ Strategy = (*RatioFill)(nil)

// Name returns the policy identifier used in signals and fill records.
func (s *RatioFill) Name() string { return "ratio" }

// Evaluate emits a signal for a fraction of the remaining amount, or nil
// when the offer fails the shared screening or the sized request rounds to
// zero.
func (s *RatioFill) Evaluate(ctx context.Context, offer domain.Offer, state domain.OfferState) (*domain.FillSignal, error) {
	now := time.Now().UTC()
	if !eligible(s.cfg, offer, state, now) {
		return nil, nil
	}

	requested, err := domain.MulDiv(state.RemainingFillable, s.ppm, domain.NewAmount(ratioScale))
	if err != nil {
		return nil, fmt.Errorf("strategy: size request for offer %s: %w", offer.ID, err)
	}

	// The first fill must meet the maker's minimum; later fills have no
	// floor. Raising the request is only worthwhile while it still fits
	// in the remaining amount.
	if state.CumulativeTakerFilled.IsZero() && requested.Lt(offer.MinimumTakerFillAmount) {
		if offer.MinimumTakerFillAmount.Gt(state.RemainingFillable) {
			return nil, nil
		}
		requested = offer.MinimumTakerFillAmount
	}

	if requested.IsZero() {
		return nil, nil
	}

	return newSignal(s.cfg, s.Name(), offer, requested,
		domain.SignalUrgencyMedium, fmt.Sprintf("take %.0f%% of remaining", s.cfg.FillRatio*100), now), nil
}
