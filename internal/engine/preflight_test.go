package engine

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianxyz/fillbot/internal/domain"
)

type fakeRecoverer struct {
	addr  common.Address
	err   error
	calls int
}

func (f *fakeRecoverer) RecoverOfferSigner(_ domain.Offer, _ string) (common.Address, error) {
	f.calls++
	if f.err != nil {
		return common.Address{}, f.err
	}
	return f.addr, nil
}

// validInput returns a preflight input that passes every check: the
// recoverer vouches for the maker, the requester is unrestricted, balances
// are ample.
func validInput() (PreflightInput, *fakeRecoverer) {
	offer := scenarioOffer()
	rec := &fakeRecoverer{addr: offer.Maker}
	in := PreflightInput{
		Offer:                offer,
		State:                fillableState(0, 50),
		Requester:            common.HexToAddress("0x2222222222222222222222222222222222222222"),
		RequestedTakerAmount: domain.NewAmount(50),
		TakerBalance:         domain.NewAmount(1000),
		MakerBalance:         domain.NewAmount(1000),
	}
	return in, rec
}

func TestPreflight_Success(t *testing.T) {
	in, rec := validInput()
	v := NewPreflightValidator(rec)

	computed, err := v.Validate(in)
	require.NoError(t, err)
	assert.Equal(t, "100", computed.String(), "100 maker units for the full 50 taker units")
	assert.Equal(t, 1, rec.calls, "signature recovered exactly once")
}

func TestPreflight_ScenarioD_CancelledWinsOverEverything(t *testing.T) {
	// Cancelled must be reported even when amounts, signature, and
	// balances would all fail too.
	in, rec := validInput()
	in.State.Status = domain.OfferStatusCancelled
	in.State.ValidParams = false
	in.RequestedTakerAmount = domain.NewAmount(9999)
	in.TakerBalance = domain.Amount{}
	in.MakerBalance = domain.Amount{}
	rec.err = fmt.Errorf("engine test: %w", domain.ErrInvalidSignature)

	_, err := NewPreflightValidator(rec).Validate(in)
	assert.ErrorIs(t, err, domain.ErrStatusCancelled)
	assert.Zero(t, rec.calls, "no recovery attempted for a terminal offer")
}

func TestPreflight_TerminalStatuses(t *testing.T) {
	cases := []struct {
		status domain.OfferStatus
		want   error
	}{
		{domain.OfferStatusInvalid, domain.ErrStatusInvalid},
		{domain.OfferStatusCancelled, domain.ErrStatusCancelled},
		{domain.OfferStatusFilled, domain.ErrStatusFilled},
		{domain.OfferStatusExpired, domain.ErrStatusExpired},
		{domain.OfferStatus(99), domain.ErrStatusInvalid},
	}
	for _, tc := range cases {
		in, rec := validInput()
		in.State.Status = tc.status

		_, err := NewPreflightValidator(rec).Validate(in)
		assert.ErrorIs(t, err, tc.want, "status %s", tc.status)
	}
}

func TestPreflight_ExpiredBeforeBalance(t *testing.T) {
	// Order sensitivity: an offer both expired and unaffordable reports
	// the expiry, never the balance.
	in, rec := validInput()
	in.State.Status = domain.OfferStatusExpired
	in.TakerBalance = domain.Amount{}

	_, err := NewPreflightValidator(rec).Validate(in)
	assert.ErrorIs(t, err, domain.ErrStatusExpired)
	assert.NotErrorIs(t, err, domain.ErrInsufficientTakerBalance)
}

func TestPreflight_InvalidParams(t *testing.T) {
	in, rec := validInput()
	in.State.ValidParams = false
	in.RequestedTakerAmount = domain.NewAmount(9999) // would also exceed remaining

	_, err := NewPreflightValidator(rec).Validate(in)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters, "validity flag is checked before capacity")
}

func TestPreflight_ExceedsFillableBeforeSignature(t *testing.T) {
	in, rec := validInput()
	in.RequestedTakerAmount = domain.NewAmount(51)
	rec.err = fmt.Errorf("engine test: %w", domain.ErrInvalidSignature)

	_, err := NewPreflightValidator(rec).Validate(in)
	assert.ErrorIs(t, err, domain.ErrExceedsFillable)
	assert.Zero(t, rec.calls, "capacity is checked before the signature")
}

func TestPreflight_ScenarioE_WrongSignerBeforeBalances(t *testing.T) {
	in, rec := validInput()
	rec.addr = common.HexToAddress("0x3333333333333333333333333333333333333333")
	in.TakerBalance = domain.Amount{} // would fail later, must not be reported

	_, err := NewPreflightValidator(rec).Validate(in)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.NotErrorIs(t, err, domain.ErrInsufficientTakerBalance)
}

func TestPreflight_RecovererFailure(t *testing.T) {
	in, rec := validInput()
	rec.err = fmt.Errorf("engine test: %w", domain.ErrInvalidSignature)

	_, err := NewPreflightValidator(rec).Validate(in)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestPreflight_TakerRestriction(t *testing.T) {
	in, rec := validInput()
	in.Offer.Taker = common.HexToAddress("0x4444444444444444444444444444444444444444")

	_, err := NewPreflightValidator(rec).Validate(in)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// The named taker itself passes.
	in.Requester = in.Offer.Taker
	_, err = NewPreflightValidator(rec).Validate(in)
	assert.NoError(t, err)
}

func TestPreflight_WildcardTaker(t *testing.T) {
	in, rec := validInput()
	in.Offer.Taker = common.Address{} // anyone may fill

	_, err := NewPreflightValidator(rec).Validate(in)
	assert.NoError(t, err)
}

func TestPreflight_BelowMinimum(t *testing.T) {
	in, rec := validInput()
	in.RequestedTakerAmount = domain.NewAmount(5)

	_, err := NewPreflightValidator(rec).Validate(in)
	assert.ErrorIs(t, err, domain.ErrBelowMinimum)

	// Waived once something is filled.
	in.State = fillableState(20, 30)
	computed, err := NewPreflightValidator(rec).Validate(in)
	require.NoError(t, err)
	assert.Equal(t, "10", computed.String())
}

func TestPreflight_InsufficientTakerBalance(t *testing.T) {
	in, rec := validInput()
	in.State = fillableState(20, 30) // waive the minimum
	in.RequestedTakerAmount = domain.NewAmount(5)
	in.TakerBalance = domain.NewAmount(4)

	_, err := NewPreflightValidator(rec).Validate(in)
	assert.ErrorIs(t, err, domain.ErrInsufficientTakerBalance)
}

func TestPreflight_InsufficientMakerBalance(t *testing.T) {
	in, rec := validInput()
	in.RequestedTakerAmount = domain.NewAmount(10)
	in.MakerBalance = domain.NewAmount(19) // computed maker amount is 20

	_, err := NewPreflightValidator(rec).Validate(in)
	assert.ErrorIs(t, err, domain.ErrInsufficientMakerBalance)
}

func TestPreflight_OverflowSurfaces(t *testing.T) {
	in, rec := validInput()
	in.Offer.MakerAmount = hugeAmount(t)
	in.Offer.TakerAmount = domain.NewAmount(2)
	in.Offer.MinimumTakerFillAmount = domain.Amount{}
	in.RequestedTakerAmount = domain.NewAmount(4)
	in.State = fillableState(0, 100)

	_, err := NewPreflightValidator(rec).Validate(in)
	assert.ErrorIs(t, err, domain.ErrOverflow)
}
