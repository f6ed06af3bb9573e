// Package felt implements felt252, the native field element of Sierra and
// CASM, on top of the gnark-crypto Stark field.
package felt

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// Felt is an element of the field of integers modulo the Stark prime
// P = 2^251 + 17*2^192 + 1.
type Felt struct {
	e fp.Element
}

// halfPrime is (P-1)/2, the largest value rendered as non-negative.
var halfPrime = new(big.Int).Rsh(fp.Modulus(), 1)

// InRange reports whether v lies strictly between -P and P, the range Sierra
// accepts for felt252 constants.
func InRange(v *big.Int) bool {
	p := fp.Modulus()
	return v.CmpAbs(p) < 0
}

// FromBigInt reduces v modulo P.
func FromBigInt(v *big.Int) Felt {
	var f Felt
	f.e.SetBigInt(v)
	return f
}

// BigInt returns the canonical representative in [0, P).
func (f Felt) BigInt() *big.Int {
	return f.e.BigInt(new(big.Int))
}

// Signed returns the representative in (-P/2, P/2].
func (f Felt) Signed() *big.Int {
	v := f.BigInt()
	if v.Cmp(halfPrime) > 0 {
		v.Sub(v, fp.Modulus())
	}
	return v
}

// Neg returns -f.
func (f Felt) Neg() Felt {
	var r Felt
	r.e.Neg(&f.e)
	return r
}

// Add returns f + g.
func (f Felt) Add(g Felt) Felt {
	var r Felt
	r.e.Add(&f.e, &g.e)
	return r
}

// Sub returns f - g.
func (f Felt) Sub(g Felt) Felt {
	var r Felt
	r.e.Sub(&f.e, &g.e)
	return r
}

// Mul returns f * g.
func (f Felt) Mul(g Felt) Felt {
	var r Felt
	r.e.Mul(&f.e, &g.e)
	return r
}

// String renders the signed decimal representative, the form CASM uses for
// immediates.
func (f Felt) String() string {
	return f.Signed().String()
}
