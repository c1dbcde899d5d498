package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianxyz/fillbot/internal/domain"
)

func validAPIOffer() APIOffer {
	return APIOffer{
		ID:                     "0xabc123",
		Kind:                   "add_liquidity",
		Maker:                  "0x1111111111111111111111111111111111111111",
		Taker:                  "0x0000000000000000000000000000000000000000",
		MakerAmount:            "1000000",
		TakerAmount:            "2000000",
		MinimumTakerFillAmount: "500000",
		Expiry:                 1893456000,
		PoolID:                 "42",
		Salt:                   "987654321",
		Signature:              "0xdeadbeef",
		Status:                 "fillable",
		TakerFilledAmount:      "250000",
		CreatedAt:              "2026-03-01T12:00:00Z",
		UpdatedAt:              "2026-03-01T12:30:00Z",
	}
}

func TestAPIOffer_ToDomain(t *testing.T) {
	a := validAPIOffer()

	o, err := a.ToDomain()
	require.NoError(t, err)

	assert.Equal(t, "0xabc123", o.ID)
	assert.Equal(t, domain.OfferKindAddLiquidity, o.Kind)
	assert.Equal(t, domain.OfferStatusFillable, o.Status)
	assert.Equal(t, "1000000", o.MakerAmount.String())
	assert.Equal(t, "2000000", o.TakerAmount.String())
	assert.Equal(t, "500000", o.MinimumTakerFillAmount.String())
	assert.Equal(t, "250000", o.CumulativeTakerFilled.String())
	require.NotNil(t, o.PoolID)
	assert.Equal(t, "42", o.PoolID.String())
	require.NotNil(t, o.Salt)
	assert.Equal(t, "987654321", o.Salt.String())
	assert.Equal(t, 2026, o.CreatedAt.Year())
}

func TestAPIOffer_ToDomain_MalformedAmount(t *testing.T) {
	a := validAPIOffer()
	a.TakerAmount = "not-a-number"

	_, err := a.ToDomain()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "taker amount")
}

func TestAPIOffer_ToDomain_MalformedSalt(t *testing.T) {
	a := validAPIOffer()
	a.Salt = "0xff" // salts travel base-10

	_, err := a.ToDomain()
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}

func TestAPIOffer_ToDomain_OptionalFieldsEmpty(t *testing.T) {
	a := validAPIOffer()
	a.MinimumTakerFillAmount = ""
	a.TakerFilledAmount = ""
	a.PoolID = ""

	o, err := a.ToDomain()
	require.NoError(t, err)
	assert.True(t, o.MinimumTakerFillAmount.IsZero())
	assert.True(t, o.CumulativeTakerFilled.IsZero())
	assert.Nil(t, o.PoolID)
}

func TestFromDomain_RoundTrip(t *testing.T) {
	a := validAPIOffer()
	o, err := a.ToDomain()
	require.NoError(t, err)

	back := FromDomain(o)
	assert.Equal(t, a.ID, back.ID)
	assert.Equal(t, a.Kind, back.Kind)
	assert.Equal(t, a.MakerAmount, back.MakerAmount)
	assert.Equal(t, a.TakerAmount, back.TakerAmount)
	assert.Equal(t, a.PoolID, back.PoolID)
	assert.Equal(t, a.Salt, back.Salt)
	assert.Equal(t, a.Status, back.Status)
}

func TestNormalizeKinds(t *testing.T) {
	got := normalizeKinds([]string{" Create_Pool", "add_liquidity", "", "add_liquidity"})
	assert.Equal(t, []string{"create_pool", "add_liquidity"}, got)
}
