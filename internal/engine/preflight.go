package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// SignerRecoverer recovers the address that signed an offer's typed
// payload.
type SignerRecoverer interface {
	RecoverOfferSigner(offer domain.Offer, signatureHex string) (common.Address, error)
}

// PreflightInput carries everything one validation pass needs. State and
// balances must be read fresh from their sources of truth immediately
// before the call; the validator never caches between invocations.
type PreflightInput struct {
	Offer                domain.Offer
	State                domain.OfferState
	Requester            common.Address
	RequestedTakerAmount domain.Amount
	TakerBalance         domain.Amount
	MakerBalance         domain.Amount
}

// PreflightValidator decides whether a fill is worth submitting. It mirrors
// the checks the settlement contract enforces atomically, in the contract's
// order, so a passing preflight fails on chain only if the state changed in
// between.
type PreflightValidator struct {
	recoverer SignerRecoverer
}

// NewPreflightValidator creates a validator using the given signature
// recoverer.
func NewPreflightValidator(recoverer SignerRecoverer) *PreflightValidator {
	return &PreflightValidator{recoverer: recoverer}
}

// Validate runs the ordered checks and short-circuits on the first failure,
// returning the computed maker-side amount on success. The order is load
// bearing: it reproduces the settlement contract's own ordering, so the
// most specific reason is always reported first (an expired offer reports
// expiry, never a balance shortfall).
func (v *PreflightValidator) Validate(in PreflightInput) (domain.Amount, error) {
	// 1. Terminal status.
	switch in.State.Status {
	case domain.OfferStatusFillable:
	case domain.OfferStatusCancelled:
		return domain.Amount{}, fmt.Errorf("engine: offer %s: %w", in.Offer.ID, domain.ErrStatusCancelled)
	case domain.OfferStatusFilled:
		return domain.Amount{}, fmt.Errorf("engine: offer %s: %w", in.Offer.ID, domain.ErrStatusFilled)
	case domain.OfferStatusExpired:
		return domain.Amount{}, fmt.Errorf("engine: offer %s: %w", in.Offer.ID, domain.ErrStatusExpired)
	default:
		return domain.Amount{}, fmt.Errorf("engine: offer %s: %w", in.Offer.ID, domain.ErrStatusInvalid)
	}

	// 2. Structural validity, as reported by the contract.
	if !in.State.ValidParams {
		return domain.Amount{}, fmt.Errorf("engine: offer %s: %w", in.Offer.ID, domain.ErrInvalidParameters)
	}

	// 3. Remaining capacity.
	if err := CheckRemaining(in.State, in.RequestedTakerAmount); err != nil {
		return domain.Amount{}, err
	}

	// 4. Signature recovers to the declared maker.
	recovered, err := v.recoverer.RecoverOfferSigner(in.Offer, in.Offer.Signature)
	if err != nil {
		return domain.Amount{}, err
	}
	if recovered != in.Offer.Maker {
		return domain.Amount{}, fmt.Errorf("engine: recovered %s, maker %s: %w",
			recovered.Hex(), in.Offer.Maker.Hex(), domain.ErrInvalidSignature)
	}

	// 5. Taker restriction.
	if in.Offer.TakerRestricted() && in.Requester != in.Offer.Taker {
		return domain.Amount{}, fmt.Errorf("engine: offer reserved for %s: %w",
			in.Offer.Taker.Hex(), domain.ErrUnauthorized)
	}

	// 6. First-fill minimum.
	if err := CheckFirstFillMinimum(in.Offer, in.State, in.RequestedTakerAmount); err != nil {
		return domain.Amount{}, err
	}

	// 7. Taker balance covers the requested amount.
	if in.TakerBalance.Lt(in.RequestedTakerAmount) {
		return domain.Amount{}, fmt.Errorf("engine: taker balance %s, requested %s: %w",
			in.TakerBalance, in.RequestedTakerAmount, domain.ErrInsufficientTakerBalance)
	}

	// 8. Maker balance covers the computed counterpart.
	computed, err := ComputeMakerAmount(in.Offer, in.RequestedTakerAmount)
	if err != nil {
		return domain.Amount{}, err
	}
	if in.MakerBalance.Lt(computed) {
		return domain.Amount{}, fmt.Errorf("engine: maker balance %s, needs %s: %w",
			in.MakerBalance, computed, domain.ErrInsufficientMakerBalance)
	}

	return computed, nil
}
