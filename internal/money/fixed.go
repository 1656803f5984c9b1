// Package money implements the scaled-integer arithmetic the engine uses
// for price, quantity, balance and margin. No floating point is permitted
// past the ingress boundary; every amount in this package is an int64 at
// a fixed scale.
package money

import (
	"fmt"
	"math/big"
)

// Scale is the number of decimal places carried by a Fixed value. 1 unit
// of Fixed represents 1/Scale of a whole token/currency unit.
const Scale int64 = 1e8

// Fixed is a signed fixed-point amount scaled by Scale. All public numeric
// fields on ingress requests decode into Fixed values before they touch
// the matching or netting kernel.
type Fixed int64

// Zero is the additive identity.
const Zero Fixed = 0

// FromWhole scales a whole-unit integer (e.g. "5 BTC") into Fixed.
func FromWhole(whole int64) Fixed {
	return Fixed(whole * Scale)
}

// FromRaw wraps an already-scaled integer (as received on the wire) as Fixed.
func FromRaw(raw int64) Fixed {
	return Fixed(raw)
}

// Raw returns the underlying scaled integer, e.g. for wire encoding.
func (f Fixed) Raw() int64 {
	return int64(f)
}

func (f Fixed) String() string {
	v := int64(f)
	neg := v < 0
	if neg {
		v = -v
	}
	whole := v / Scale
	frac := v % Scale
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%08d", sign, whole, frac)
}

// Add returns f+o.
func (f Fixed) Add(o Fixed) Fixed { return f + o }

// Sub returns f-o.
func (f Fixed) Sub(o Fixed) Fixed { return f - o }

// Neg returns -f.
func (f Fixed) Neg() Fixed { return -f }

// IsZero reports whether f == 0.
func (f Fixed) IsZero() bool { return f == 0 }

// IsPositive reports whether f > 0.
func (f Fixed) IsPositive() bool { return f > 0 }

// IsNegative reports whether f < 0.
func (f Fixed) IsNegative() bool { return f < 0 }

// Cmp returns -1, 0 or 1 as f is less than, equal to, or greater than o.
func (f Fixed) Cmp(o Fixed) int {
	switch {
	case f < o:
		return -1
	case f > o:
		return 1
	default:
		return 0
	}
}

// Min returns the smaller of f and o.
func Min(f, o Fixed) Fixed {
	if f < o {
		return f
	}
	return o
}

// Max returns the larger of f and o.
func Max(f, o Fixed) Fixed {
	if f > o {
		return f
	}
	return o
}

// ProRate computes f * num / den, truncating toward zero. num and den are
// assumed to share the same Scale (e.g. both quantities), so the Scale
// cancels out of the ratio and the result carries f's own Scale. The
// multiplication is carried out in a 128-bit-wide big.Int so that no
// intermediate overflow can corrupt the result.
func ProRate(f, num, den Fixed) Fixed {
	if den == 0 {
		return 0
	}
	n := new(big.Int).Mul(big.NewInt(int64(f)), big.NewInt(int64(num)))
	n.Quo(n, big.NewInt(int64(den)))
	return Fixed(n.Int64())
}

// MulLeveraged computes priceDelta * qty * leverage / Scale, i.e. the
// notional PnL of holding qty units of an asset through a price move of
// priceDelta at the given integer leverage. The division by Scale removes
// the double-scaling introduced by multiplying two Fixed values together;
// leverage is a plain (unscaled) multiplier.
func MulLeveraged(priceDelta, qty Fixed, leverage int64) Fixed {
	n := new(big.Int).Mul(big.NewInt(int64(priceDelta)), big.NewInt(int64(qty)))
	n.Mul(n, big.NewInt(leverage))
	n.Quo(n, big.NewInt(Scale))
	return Fixed(n.Int64())
}

// PercentOf computes amount * percent / 100 where percent is a plain
// (unscaled) integer, e.g. 5 meaning 5%.
func PercentOf(amount Fixed, percent int64) Fixed {
	n := new(big.Int).Mul(big.NewInt(int64(amount)), big.NewInt(percent))
	n.Quo(n, big.NewInt(100))
	return Fixed(n.Int64())
}
