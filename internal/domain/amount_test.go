package domain

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maxAmount(t *testing.T) Amount {
	t.Helper()
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	a, err := AmountFromBig(max)
	require.NoError(t, err, "2^256-1 should be representable")
	return a
}

func TestAmountFromBig_RejectsNegative(t *testing.T) {
	_, err := AmountFromBig(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrOverflow, "negative values are not representable")

	_, err = AmountFromBig(nil)
	assert.ErrorIs(t, err, ErrOverflow, "nil should be rejected")
}

func TestAmountFromBig_RejectsOver256Bits(t *testing.T) {
	over := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err := AmountFromBig(over)
	assert.ErrorIs(t, err, ErrOverflow, "2^256 should overflow")
}

func TestAmountAdd_Overflow(t *testing.T) {
	sum, err := NewAmount(40).Add(NewAmount(2))
	require.NoError(t, err)
	assert.Equal(t, "42", sum.String())

	_, err = maxAmount(t).Add(NewAmount(1))
	assert.ErrorIs(t, err, ErrOverflow, "max+1 should overflow rather than wrap")
}

func TestAmountSub_Underflow(t *testing.T) {
	diff, err := NewAmount(50).Sub(NewAmount(20))
	require.NoError(t, err)
	assert.Equal(t, "30", diff.String())

	_, err = NewAmount(20).Sub(NewAmount(50))
	assert.ErrorIs(t, err, ErrOverflow, "unsigned subtraction must not wrap below zero")
}

func TestAmountMul_Overflow(t *testing.T) {
	prod, err := NewAmount(6).Mul(NewAmount(7))
	require.NoError(t, err)
	assert.Equal(t, "42", prod.String())

	_, err = maxAmount(t).Mul(NewAmount(2))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestAmountDiv_TruncatesTowardZero(t *testing.T) {
	q, err := NewAmount(7).Div(NewAmount(2))
	require.NoError(t, err)
	assert.Equal(t, "3", q.String(), "integer division truncates")

	_, err = NewAmount(7).Div(NewAmount(0))
	assert.ErrorIs(t, err, ErrInvalidParameters, "zero divisor is rejected")
}

func TestMulDiv_Floor(t *testing.T) {
	// floor(100 * 33 / 50) = 66
	got, err := MulDiv(NewAmount(100), NewAmount(33), NewAmount(50))
	require.NoError(t, err)
	assert.Equal(t, "66", got.String())

	// floor(100 * 1 / 3) = 33
	got, err = MulDiv(NewAmount(100), NewAmount(1), NewAmount(3))
	require.NoError(t, err)
	assert.Equal(t, "33", got.String())
}

func TestMulDiv_IntermediateOverflow(t *testing.T) {
	// The product overflows 256 bits even though the quotient would fit.
	_, err := MulDiv(maxAmount(t), NewAmount(2), NewAmount(4))
	assert.ErrorIs(t, err, ErrOverflow, "intermediate product must be held in 256 bits")
}

func TestParseUnits(t *testing.T) {
	a, err := ParseUnits("10.5", 6)
	require.NoError(t, err)
	assert.Equal(t, "10500000", a.String())

	a, err = ParseUnits("0.000001", 6)
	require.NoError(t, err)
	assert.Equal(t, "1", a.String())

	a, err = ParseUnits("250", 18)
	require.NoError(t, err)
	assert.Equal(t, "250000000000000000000", a.String())

	a, err = ParseUnits("0", 6)
	require.NoError(t, err)
	assert.True(t, a.IsZero())
}

func TestParseUnits_RejectsBadInput(t *testing.T) {
	_, err := ParseUnits("10.1234567", 6)
	assert.Error(t, err, "more fractional digits than the token precision")

	_, err = ParseUnits("1,5", 6)
	assert.Error(t, err, "non-digit characters")

	_, err = ParseUnits("-5", 6)
	assert.Error(t, err, "negative amounts are invalid")

	_, err = ParseUnits("", 6)
	assert.Error(t, err, "empty string is invalid")
}

func TestFormatUnits(t *testing.T) {
	a, err := AmountFromDecimal("10500000")
	require.NoError(t, err)
	assert.Equal(t, "10.5", a.FormatUnits(6))

	b, err := AmountFromDecimal("1")
	require.NoError(t, err)
	assert.Equal(t, "0.000001", b.FormatUnits(6))

	c := NewAmount(42)
	assert.Equal(t, "42", c.FormatUnits(0))

	d, err := AmountFromDecimal("250000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "250", d.FormatUnits(18))
}

func TestAmountJSON_RoundTrip(t *testing.T) {
	a, err := AmountFromDecimal("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"115792089237316195423570985008687907853269984665640564039457584007913129639935"`, string(data))

	var back Amount
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, a.Eq(back), "decimal string round-trip should be exact")
}

func TestAmountComparisons(t *testing.T) {
	a, b := NewAmount(10), NewAmount(20)
	assert.True(t, a.Lt(b))
	assert.True(t, b.Gt(a))
	assert.False(t, a.Eq(b))
	assert.Equal(t, -1, a.Cmp(b))
	assert.Equal(t, 0, a.Cmp(NewAmount(10)))
	assert.True(t, Amount{}.IsZero())
}
