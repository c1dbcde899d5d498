package strategy

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// eligible applies the screening shared by every policy: the offer must be
// fillable per the last-observed contract state, structurally valid, not
// expired, open to this wallet, and large enough to bother with. These are
// cheap local filters; the engine preflight re-checks everything against
// fresh state before any fill.
func eligible(cfg Config, offer domain.Offer, state domain.OfferState, now time.Time) bool {
	if state.Status != domain.OfferStatusFillable || !state.ValidParams {
		return false
	}
	if offer.ExpiredAt(now) {
		return false
	}
	if state.RemainingFillable.IsZero() {
		return false
	}
	if offer.TakerRestricted() && offer.Taker != cfg.Wallet {
		return false
	}
	if !cfg.MinOfferSize.IsZero() && offer.TakerAmount.Lt(cfg.MinOfferSize) {
		return false
	}
	return true
}

// newSignal builds a fill signal for the requested amount.
func newSignal(cfg Config, source string, offer domain.Offer, requested domain.Amount, urgency domain.SignalUrgency, reason string, now time.Time) *domain.FillSignal {
	sig := &domain.FillSignal{
		ID:                   uuid.NewString(),
		OfferID:              offer.ID,
		Source:               source,
		RequestedTakerAmount: requested,
		Urgency:              urgency,
		Reason:               reason,
		CreatedAt:            now,
	}
	if cfg.SignalTTL > 0 {
		sig.ExpiresAt = now.Add(cfg.SignalTTL)
	}
	return sig
}
