package strategy

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianxyz/fillbot/internal/domain"
)

var (
	botWallet   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	otherWallet = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func openOffer() domain.Offer {
	return domain.Offer{
		ID:                     "0xabc",
		Kind:                   domain.OfferKindCreatePool,
		Maker:                  otherWallet,
		MakerAmount:            domain.NewAmount(200),
		TakerAmount:            domain.NewAmount(100),
		MinimumTakerFillAmount: domain.NewAmount(10),
		Expiry:                 time.Now().Add(time.Hour).Unix(),
		Salt:                   big.NewInt(1),
	}
}

func openState(filled, remaining uint64) domain.OfferState {
	return domain.OfferState{
		Status:                domain.OfferStatusFillable,
		CumulativeTakerFilled: domain.NewAmount(filled),
		RemainingFillable:     domain.NewAmount(remaining),
		ValidParams:           true,
	}
}

func TestFullFill_TakesEntireRemaining(t *testing.T) {
	s := NewFullFill(Config{Wallet: botWallet, SignalTTL: 30 * time.Second})

	sig, err := s.Evaluate(context.Background(), openOffer(), openState(40, 60))
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, "60", sig.RequestedTakerAmount.String())
	assert.Equal(t, "full", sig.Source)
	assert.Equal(t, "0xabc", sig.OfferID)
	assert.NotEmpty(t, sig.ID)
	assert.False(t, sig.ExpiresAt.IsZero(), "TTL applied")
}

func TestFullFill_SkipsIneligibleOffers(t *testing.T) {
	s := NewFullFill(Config{Wallet: botWallet})

	t.Run("terminal status", func(t *testing.T) {
		state := openState(0, 100)
		state.Status = domain.OfferStatusCancelled
		sig, err := s.Evaluate(context.Background(), openOffer(), state)
		require.NoError(t, err)
		assert.Nil(t, sig)
	})

	t.Run("invalid params", func(t *testing.T) {
		state := openState(0, 100)
		state.ValidParams = false
		sig, err := s.Evaluate(context.Background(), openOffer(), state)
		require.NoError(t, err)
		assert.Nil(t, sig)
	})

	t.Run("expired", func(t *testing.T) {
		offer := openOffer()
		offer.Expiry = time.Now().Add(-time.Minute).Unix()
		sig, err := s.Evaluate(context.Background(), offer, openState(0, 100))
		require.NoError(t, err)
		assert.Nil(t, sig)
	})

	t.Run("nothing remaining", func(t *testing.T) {
		sig, err := s.Evaluate(context.Background(), openOffer(), openState(100, 0))
		require.NoError(t, err)
		assert.Nil(t, sig)
	})

	t.Run("restricted to another taker", func(t *testing.T) {
		offer := openOffer()
		offer.Taker = otherWallet
		sig, err := s.Evaluate(context.Background(), offer, openState(0, 100))
		require.NoError(t, err)
		assert.Nil(t, sig)
	})
}

func TestFullFill_RestrictedToUsPasses(t *testing.T) {
	s := NewFullFill(Config{Wallet: botWallet})
	offer := openOffer()
	offer.Taker = botWallet

	sig, err := s.Evaluate(context.Background(), offer, openState(0, 100))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "100", sig.RequestedTakerAmount.String())
}

func TestFullFill_MinOfferSizeFilter(t *testing.T) {
	s := NewFullFill(Config{Wallet: botWallet, MinOfferSize: domain.NewAmount(500)})

	sig, err := s.Evaluate(context.Background(), openOffer(), openState(0, 100))
	require.NoError(t, err)
	assert.Nil(t, sig, "total taker amount 100 is below the 500 floor")
}

func TestNewRatioFill_RejectsBadRatio(t *testing.T) {
	for _, ratio := range []float64{0, -0.5, 1.01} {
		_, err := NewRatioFill(Config{FillRatio: ratio})
		assert.Error(t, err, "ratio %v", ratio)
	}
}

func TestRatioFill_SizesFractionOfRemaining(t *testing.T) {
	s, err := NewRatioFill(Config{Wallet: botWallet, FillRatio: 0.5})
	require.NoError(t, err)

	sig, err := s.Evaluate(context.Background(), openOffer(), openState(20, 80))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "40", sig.RequestedTakerAmount.String())
	assert.Equal(t, "ratio", sig.Source)
}

func TestRatioFill_FirstFillRaisedToMinimum(t *testing.T) {
	// 25% of 20 remaining is 5, below the minimum of 10. Nothing filled
	// yet, so the request is raised to the minimum.
	s, err := NewRatioFill(Config{Wallet: botWallet, FillRatio: 0.25})
	require.NoError(t, err)

	offer := openOffer()
	offer.TakerAmount = domain.NewAmount(20)

	sig, err := s.Evaluate(context.Background(), offer, openState(0, 20))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "10", sig.RequestedTakerAmount.String())
}

func TestRatioFill_MinimumWaivedAfterFirstFill(t *testing.T) {
	s, err := NewRatioFill(Config{Wallet: botWallet, FillRatio: 0.25})
	require.NoError(t, err)

	sig, err := s.Evaluate(context.Background(), openOffer(), openState(80, 20))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "5", sig.RequestedTakerAmount.String())
}

func TestRatioFill_MinimumExceedsRemaining(t *testing.T) {
	// Unfilled offer whose minimum no longer fits the remainder cannot be
	// filled by this policy at all.
	s, err := NewRatioFill(Config{Wallet: botWallet, FillRatio: 0.5})
	require.NoError(t, err)

	offer := openOffer()
	offer.MinimumTakerFillAmount = domain.NewAmount(150)

	sig, err := s.Evaluate(context.Background(), offer, openState(0, 100))
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestRatioFill_ZeroSizedRequestDropped(t *testing.T) {
	s, err := NewRatioFill(Config{Wallet: botWallet, FillRatio: 0.5})
	require.NoError(t, err)

	offer := openOffer()
	offer.MinimumTakerFillAmount = domain.Amount{}

	sig, err := s.Evaluate(context.Background(), offer, openState(99, 1))
	require.NoError(t, err)
	assert.Nil(t, sig, "floor(1*0.5) rounds to zero")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	full := NewFullFill(Config{})
	r.Register("full", full)

	got, err := r.Get("full")
	require.NoError(t, err)
	assert.Same(t, full, got)

	_, err = r.Get("missing")
	assert.Error(t, err)

	r.Register("ratio", full)
	assert.Equal(t, []string{"full", "ratio"}, r.List())
}
