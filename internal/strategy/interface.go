// Package strategy decides how much of a fillable offer the bot should
// request. A strategy only sizes the request; every check that gates an
// actual fill runs later in the engine preflight against fresh chain state.
package strategy

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// Strategy defines the contract for fill sizing policies.
//
// Evaluate inspects an offer together with the contract's last-observed
// state and either returns a signal requesting a fill, or (nil, nil) to
// pass on the offer. Returning an error aborts evaluation of this offer
// only; the feeder moves on to the next one.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, offer domain.Offer, state domain.OfferState) (*domain.FillSignal, error)
}

// Config holds strategy configuration shared by all policies.
type Config struct {
	// Wallet is this operator's address, used to skip offers restricted to
	// a different taker.
	Wallet common.Address

	// FillRatio is the fraction of the remaining fillable amount a partial
	// policy requests, in (0, 1].
	FillRatio float64

	// MinOfferSize skips offers whose total taker amount is below this
	// threshold. Zero disables the filter.
	MinOfferSize domain.Amount

	// SignalTTL bounds how long an emitted signal stays actionable. The
	// executor drops signals older than this. Zero means no expiry.
	SignalTTL time.Duration
}
