package engine

import (
	"fmt"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// ComputeMakerAmount returns the maker-side amount for a requested
// taker-side fill:
//
//	floor(offer.MakerAmount * requested / offer.TakerAmount)
//
// The division truncates toward zero, matching the settlement contract. A
// product that does not fit in 256 bits reports ErrOverflow; a zero taker
// amount reports ErrInvalidParameters.
func ComputeMakerAmount(offer domain.Offer, requested domain.Amount) (domain.Amount, error) {
	out, err := domain.MulDiv(offer.MakerAmount, requested, offer.TakerAmount)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("engine: compute maker amount: %w", err)
	}
	return out, nil
}

// ComputeSelfFillAmount returns the single combined transfer owed when one
// address is both maker and taker of a create-pool offer:
//
//	floor((offer.MakerAmount + offer.TakerAmount) * requested / offer.TakerAmount)
//
// The allowance for a self-fill must be sized against this combined amount,
// since one account's allowance covers both legs.
func ComputeSelfFillAmount(offer domain.Offer, requested domain.Amount) (domain.Amount, error) {
	combined, err := offer.MakerAmount.Add(offer.TakerAmount)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("engine: compute self-fill amount: %w", err)
	}
	out, err := domain.MulDiv(combined, requested, offer.TakerAmount)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("engine: compute self-fill amount: %w", err)
	}
	return out, nil
}

// CheckRemaining rejects fills past the offer's remaining capacity. The
// remaining amount is the settlement contract's reported value; it is never
// recomputed locally, since the contract is authoritative for cumulative
// fills.
func CheckRemaining(state domain.OfferState, requested domain.Amount) error {
	if requested.Gt(state.RemainingFillable) {
		return fmt.Errorf("engine: requested %s, remaining %s: %w",
			requested, state.RemainingFillable, domain.ErrExceedsFillable)
	}
	return nil
}

// CheckFirstFillMinimum enforces the offer's minimum on the first fill
// only. The minimum is waived once any amount has been filled; whether a
// fill is the first is decided by the contract's monotone cumulative
// counter, not recomputed here.
func CheckFirstFillMinimum(offer domain.Offer, state domain.OfferState, requested domain.Amount) error {
	if state.CumulativeTakerFilled.IsZero() && requested.Lt(offer.MinimumTakerFillAmount) {
		return fmt.Errorf("engine: requested %s below first-fill minimum %s: %w",
			requested, offer.MinimumTakerFillAmount, domain.ErrBelowMinimum)
	}
	return nil
}
