package domain

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func validOffer() Offer {
	return Offer{
		Kind:                   OfferKindCreatePool,
		Maker:                  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		MakerAmount:            NewAmount(100),
		TakerAmount:            NewAmount(50),
		MinimumTakerFillAmount: NewAmount(10),
		Expiry:                 time.Now().Add(time.Hour).Unix(),
		Salt:                   big.NewInt(12345),
	}
}

func TestOfferValidate_OK(t *testing.T) {
	assert.NoError(t, validOffer().Validate(time.Now()))
}

func TestOfferValidate_ZeroTakerAmount(t *testing.T) {
	o := validOffer()
	o.TakerAmount = Amount{}
	assert.ErrorIs(t, o.Validate(time.Now()), ErrInvalidParameters)
}

func TestOfferValidate_ZeroMakerAmount(t *testing.T) {
	o := validOffer()
	o.MakerAmount = Amount{}
	assert.ErrorIs(t, o.Validate(time.Now()), ErrInvalidParameters)
}

func TestOfferValidate_MinimumAboveTakerAmount(t *testing.T) {
	o := validOffer()
	o.MinimumTakerFillAmount = NewAmount(51)
	assert.ErrorIs(t, o.Validate(time.Now()), ErrInvalidParameters)
}

func TestOfferValidate_PastExpiry(t *testing.T) {
	o := validOffer()
	o.Expiry = time.Now().Add(-time.Minute).Unix()
	assert.ErrorIs(t, o.Validate(time.Now()), ErrInvalidParameters)
}

func TestOfferValidate_LiquidityKindsNeedPoolID(t *testing.T) {
	o := validOffer()
	o.Kind = OfferKindAddLiquidity
	assert.ErrorIs(t, o.Validate(time.Now()), ErrInvalidParameters, "add-liquidity without a pool id")

	o.PoolID = big.NewInt(7)
	assert.NoError(t, o.Validate(time.Now()))
}

func TestOfferValidate_UnknownKind(t *testing.T) {
	o := validOffer()
	o.Kind = OfferKind("swap")
	assert.ErrorIs(t, o.Validate(time.Now()), ErrInvalidParameters)
}

func TestOfferTakerRestricted(t *testing.T) {
	o := validOffer()
	assert.False(t, o.TakerRestricted(), "zero taker address means anyone may fill")

	o.Taker = common.HexToAddress("0x2222222222222222222222222222222222222222")
	assert.True(t, o.TakerRestricted())
}

func TestOfferSelfFill_CreatePoolOnly(t *testing.T) {
	o := validOffer()
	assert.True(t, o.SelfFill(o.Maker), "maker filling own create-pool offer")
	assert.False(t, o.SelfFill(common.HexToAddress("0x3333333333333333333333333333333333333333")))

	o.Kind = OfferKindAddLiquidity
	o.PoolID = big.NewInt(1)
	assert.False(t, o.SelfFill(o.Maker), "legs stay distinct outside create-pool")
}

func TestOfferStatus_Terminal(t *testing.T) {
	for _, s := range []OfferStatus{OfferStatusInvalid, OfferStatusCancelled, OfferStatusFilled, OfferStatusExpired} {
		assert.True(t, s.Terminal(), s.String())
	}
	assert.False(t, OfferStatusFillable.Terminal())
}
