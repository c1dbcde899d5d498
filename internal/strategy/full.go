package strategy

import (
	"context"
	"time"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// FullFill requests the entire remaining fillable amount of every eligible
// offer. Taking the whole remainder can never trip the first-fill minimum,
// so no latch handling is needed here.
type FullFill struct {
	cfg Config
}

// NewFullFill returns the full-fill policy.
func NewFullFill(cfg Config) *FullFill {
	return &FullFill{cfg: cfg}
}

var _ Strategy = (*FullFill)(nil)

// Name returns the policy identifier used in signals and fill records.
func (s *FullFill) Name() string { return "full" }

// Evaluate emits a signal for the full remaining fillable amount, or nil
// when the offer fails the shared screening.
func (s *FullFill) Evaluate(ctx context.Context, offer domain.Offer, state domain.OfferState) (*domain.FillSignal, error) {
	now := time.Now().UTC()
	if !eligible(s.cfg, offer, state, now) {
		return nil, nil
	}

	return newSignal(s.cfg, s.Name(), offer, state.RemainingFillable,
		domain.SignalUrgencyHigh, "take full remaining amount", now), nil
}
