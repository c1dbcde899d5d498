package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Amount is an unsigned 256-bit monetary quantity scaled by the collateral
// token's decimals. All arithmetic is overflow-checked and reports
// ErrOverflow instead of wrapping. Division truncates toward zero to match
// the settlement contract's integer division; no floating point is used
// anywhere in monetary math.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount holding v.
func NewAmount(v uint64) Amount {
	return Amount{v: *uint256.NewInt(v)}
}

// AmountFromBig converts a big.Int. Nil, negative, or >256-bit values
// report ErrOverflow.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil || b.Sign() < 0 {
		return Amount{}, ErrOverflow
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, ErrOverflow
	}
	return Amount{v: *v}, nil
}

// AmountFromDecimal parses an unscaled base-10 integer string.
func AmountFromDecimal(s string) (Amount, error) {
	var v uint256.Int
	if err := v.SetFromDecimal(s); err != nil {
		return Amount{}, fmt.Errorf("domain: amount %q: %w", s, ErrOverflow)
	}
	return Amount{v: v}, nil
}

// ParseUnits parses a human decimal string ("10.5") into an Amount scaled
// by the token's decimals. Pure string arithmetic; fractional digits beyond
// the token's precision are rejected rather than rounded.
func ParseUnits(s string, decimals uint8) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("domain: invalid decimal amount %q", s)
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	if !allDigits(intPart) || (fracPart != "" && !allDigits(fracPart)) {
		return Amount{}, fmt.Errorf("domain: invalid decimal amount %q", s)
	}
	if len(fracPart) > int(decimals) {
		return Amount{}, fmt.Errorf("domain: amount %q exceeds %d fractional digits", s, decimals)
	}
	scaled := intPart + fracPart + strings.Repeat("0", int(decimals)-len(fracPart))
	scaled = strings.TrimLeft(scaled, "0")
	if scaled == "" {
		return Amount{}, nil
	}
	return AmountFromDecimal(scaled)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// FormatUnits renders the Amount as a human decimal string with the token's
// decimals, trimming trailing fractional zeros.
func (a Amount) FormatUnits(decimals uint8) string {
	s := a.v.Dec()
	if decimals == 0 {
		return s
	}
	if len(s) <= int(decimals) {
		s = strings.Repeat("0", int(decimals)-len(s)+1) + s
	}
	cut := len(s) - int(decimals)
	intPart, fracPart := s[:cut], strings.TrimRight(s[cut:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}

// Add returns a+b or ErrOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	sum, overflow := new(uint256.Int).AddOverflow(&a.v, &b.v)
	if overflow {
		return Amount{}, ErrOverflow
	}
	return Amount{v: *sum}, nil
}

// Sub returns a-b; underflow reports ErrOverflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	diff, underflow := new(uint256.Int).SubOverflow(&a.v, &b.v)
	if underflow {
		return Amount{}, ErrOverflow
	}
	return Amount{v: *diff}, nil
}

// Mul returns a*b or ErrOverflow.
func (a Amount) Mul(b Amount) (Amount, error) {
	prod, overflow := new(uint256.Int).MulOverflow(&a.v, &b.v)
	if overflow {
		return Amount{}, ErrOverflow
	}
	return Amount{v: *prod}, nil
}

// Div returns a/b truncated toward zero. A zero divisor reports
// ErrInvalidParameters.
func (a Amount) Div(b Amount) (Amount, error) {
	if b.v.IsZero() {
		return Amount{}, ErrInvalidParameters
	}
	return Amount{v: *new(uint256.Int).Div(&a.v, &b.v)}, nil
}

// MulDiv returns floor(a*b/c). The intermediate product is held in 256
// bits; a product that does not fit reports ErrOverflow even if the final
// quotient would, matching the settlement contract's arithmetic.
func MulDiv(a, b, c Amount) (Amount, error) {
	prod, err := a.Mul(b)
	if err != nil {
		return Amount{}, err
	}
	return prod.Div(c)
}

// Cmp returns -1, 0, or 1 comparing a to b.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// Lt reports a < b.
func (a Amount) Lt(b Amount) bool { return a.v.Lt(&b.v) }

// Gt reports a > b.
func (a Amount) Gt(b Amount) bool { return a.v.Gt(&b.v) }

// Eq reports a == b.
func (a Amount) Eq(b Amount) bool { return a.v.Eq(&b.v) }

// IsZero reports a == 0.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// Big returns the value as a fresh big.Int.
func (a Amount) Big() *big.Int { return a.v.ToBig() }

// Bytes32 returns the big-endian 32-byte encoding used in EIP-712 hashing.
func (a Amount) Bytes32() [32]byte { return a.v.Bytes32() }

// String returns the unscaled base-10 representation.
func (a Amount) String() string { return a.v.Dec() }

// MarshalJSON encodes the Amount as a decimal string, the relay wire form.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.v.Dec() + `"`), nil
}

// UnmarshalJSON accepts quoted or bare decimal integers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := AmountFromDecimal(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
