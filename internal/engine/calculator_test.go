package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// scenarioOffer is the reference offer used across the engine tests:
// 100 maker units against 50 taker units, first fill at least 10.
func scenarioOffer() domain.Offer {
	return domain.Offer{
		ID:                     "0xoffer",
		Kind:                   domain.OfferKindCreatePool,
		Maker:                  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		MakerAmount:            domain.NewAmount(100),
		TakerAmount:            domain.NewAmount(50),
		MinimumTakerFillAmount: domain.NewAmount(10),
		Expiry:                 time.Now().Add(time.Hour).Unix(),
		Salt:                   big.NewInt(1),
		Signature:              "0xsigned",
	}
}

func fillableState(filled, remaining uint64) domain.OfferState {
	return domain.OfferState{
		Status:                domain.OfferStatusFillable,
		CumulativeTakerFilled: domain.NewAmount(filled),
		RemainingFillable:     domain.NewAmount(remaining),
		ValidParams:           true,
	}
}

func hugeAmount(t *testing.T) domain.Amount {
	t.Helper()
	a, err := domain.AmountFromBig(new(big.Int).Lsh(big.NewInt(1), 255))
	require.NoError(t, err)
	return a
}

func TestComputeMakerAmount_FullFillIsExact(t *testing.T) {
	offer := scenarioOffer()

	got, err := ComputeMakerAmount(offer, offer.TakerAmount)
	require.NoError(t, err)
	assert.True(t, got.Eq(offer.MakerAmount), "a full fill reproduces the declared ratio with no rounding loss")

	// Awkward ratio, same property.
	offer.MakerAmount = domain.NewAmount(7)
	offer.TakerAmount = domain.NewAmount(3)
	got, err = ComputeMakerAmount(offer, domain.NewAmount(3))
	require.NoError(t, err)
	assert.Equal(t, "7", got.String())
}

func TestComputeMakerAmount_TruncatesTowardZero(t *testing.T) {
	offer := scenarioOffer()
	offer.MakerAmount = domain.NewAmount(10)
	offer.TakerAmount = domain.NewAmount(3)

	// floor(10 * 2 / 3) = 6
	got, err := ComputeMakerAmount(offer, domain.NewAmount(2))
	require.NoError(t, err)
	assert.Equal(t, "6", got.String())
}

func TestComputeMakerAmount_Monotonic(t *testing.T) {
	offer := scenarioOffer()

	prev := domain.Amount{}
	for req := uint64(0); req <= 50; req++ {
		got, err := ComputeMakerAmount(offer, domain.NewAmount(req))
		require.NoError(t, err, "request %d", req)
		assert.False(t, got.Lt(prev), "maker amount decreased at request %d", req)
		prev = got
	}
}

func TestComputeMakerAmount_Overflow(t *testing.T) {
	offer := scenarioOffer()
	offer.MakerAmount = hugeAmount(t)
	offer.TakerAmount = domain.NewAmount(2)

	// The 256-bit product overflows even though the quotient would fit.
	_, err := ComputeMakerAmount(offer, domain.NewAmount(4))
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestComputeMakerAmount_ZeroTakerAmount(t *testing.T) {
	offer := scenarioOffer()
	offer.TakerAmount = domain.Amount{}

	_, err := ComputeMakerAmount(offer, domain.NewAmount(1))
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}

func TestComputeSelfFillAmount_EqualsSumOfLegs(t *testing.T) {
	offer := scenarioOffer()

	for _, req := range []uint64{1, 7, 10, 33, 50} {
		requested := domain.NewAmount(req)

		combined, err := ComputeSelfFillAmount(offer, requested)
		require.NoError(t, err, "request %d", req)

		makerLeg, err := ComputeMakerAmount(offer, requested)
		require.NoError(t, err)
		sum, err := makerLeg.Add(requested)
		require.NoError(t, err)

		assert.True(t, combined.Eq(sum),
			"combined %s != maker leg + taker leg %s at request %d", combined, sum, req)
	}
}

func TestComputeSelfFillAmount_Overflow(t *testing.T) {
	offer := scenarioOffer()
	offer.MakerAmount = hugeAmount(t)
	offer.TakerAmount = hugeAmount(t)

	_, err := ComputeSelfFillAmount(offer, domain.NewAmount(1))
	assert.ErrorIs(t, err, domain.ErrOverflow, "maker+taker sum overflows")
}

func TestCheckRemaining(t *testing.T) {
	state := fillableState(20, 30)

	assert.NoError(t, CheckRemaining(state, domain.NewAmount(30)), "exactly the remaining amount")
	assert.ErrorIs(t, CheckRemaining(state, domain.NewAmount(31)), domain.ErrExceedsFillable)
}

func TestCheckRemaining_UsesReportedValue(t *testing.T) {
	// Deliberately inconsistent state: the reported remaining is what
	// counts, never a local taker-minus-filled recomputation.
	state := fillableState(0, 5)
	assert.ErrorIs(t, CheckRemaining(state, domain.NewAmount(10)), domain.ErrExceedsFillable)
}

func TestCheckFirstFillMinimum_ScenarioA(t *testing.T) {
	// Full request on a fresh offer clears the minimum.
	offer := scenarioOffer()
	state := fillableState(0, 50)

	assert.NoError(t, CheckFirstFillMinimum(offer, state, domain.NewAmount(50)))

	got, err := ComputeMakerAmount(offer, domain.NewAmount(50))
	require.NoError(t, err)
	assert.Equal(t, "100", got.String())
}

func TestCheckFirstFillMinimum_ScenarioB(t *testing.T) {
	// 5 below the minimum of 10 on a fresh offer.
	offer := scenarioOffer()
	state := fillableState(0, 50)

	assert.ErrorIs(t, CheckFirstFillMinimum(offer, state, domain.NewAmount(5)), domain.ErrBelowMinimum)
}

func TestCheckFirstFillMinimum_ScenarioC(t *testing.T) {
	// A prior fill waives the minimum for all later fills.
	offer := scenarioOffer()
	state := fillableState(20, 30)

	assert.NoError(t, CheckFirstFillMinimum(offer, state, domain.NewAmount(5)))
}

func TestCheckFirstFillMinimum_ExactMinimum(t *testing.T) {
	offer := scenarioOffer()
	state := fillableState(0, 50)

	assert.NoError(t, CheckFirstFillMinimum(offer, state, domain.NewAmount(10)), "the minimum itself is acceptable")
}
