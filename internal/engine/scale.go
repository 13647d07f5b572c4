package engine

import (
	"math/big"
	"math/bits"
)

// AddChecked returns a+b or ErrOverflow.
func AddChecked(a, b uint64) (uint64, error) {
	s := a + b
	if s < a {
		return 0, ErrOverflow
	}
	return s, nil
}

// MulDiv returns a*b/div with a 128-bit intermediate product.
func MulDiv(a, b, div uint64) (uint64, error) {
	if div == 0 {
		return 0, ErrInvalid
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= div {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, div)
	return q, nil
}

var scaleSquared = new(big.Int).SetUint64(Scale * Scale)

// PriceFor computes a*b*c/Scale² with a full-width intermediate product, so
// sub-unit quantities like 0.005 never truncate to zero before the final
// division. Fails only if the quotient does not fit in 64 bits.
func PriceFor(a, b, c uint64) (uint64, error) {
	p := new(big.Int).SetUint64(a)
	p.Mul(p, new(big.Int).SetUint64(b))
	p.Mul(p, new(big.Int).SetUint64(c))
	p.Quo(p, scaleSquared)
	if !p.IsUint64() {
		return 0, ErrOverflow
	}
	return p.Uint64(), nil
}
