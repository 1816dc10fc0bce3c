package fixedpoint

// This package implements the Q64 fixed-point arithmetic used by the
// allowance ledger. A fractional value x is represented as the integer
// x * 2^64, so fractional allowance and value amounts can be carried
// through the proportional pricing formulas without premature rounding.
//
// All operations work on *big.Int so intermediate products are computed
// at full width before any division takes place.

import "math/big"

// ScaleBits is the number of fractional bits in the Q64 representation.
const ScaleBits = 64

// Scale is 2^64 as a big integer. One integer unit equals Scale
// fixed-point units.
var Scale = new(big.Int).Lsh(big.NewInt(1), ScaleBits)

// FromUnits expands an integer amount into fixed-point representation.
func FromUnits(units *big.Int) *big.Int {
	return new(big.Int).Lsh(units, ScaleBits)
}

// Truncate reduces a fixed-point amount back to integer units,
// discarding the fractional part. Negative inputs are not expected and
// truncate toward zero like big.Int division.
func Truncate(fixed *big.Int) *big.Int {
	return new(big.Int).Rsh(fixed, ScaleBits)
}

// MulDiv returns a*b/den truncated, with the product computed at full
// width. den must be nonzero; a zero denominator panics the same way
// big.Int division does, and callers are expected to guard it.
func MulDiv(a, b, den *big.Int) *big.Int {
	prod := new(big.Int).Mul(a, b)
	return prod.Quo(prod, den)
}

// MulDivUint64 is the common case of MulDiv where the multiplier and
// the denominator are plain block counts.
func MulDivUint64(a *big.Int, b, den uint64) *big.Int {
	return MulDiv(a, new(big.Int).SetUint64(b), new(big.Int).SetUint64(den))
}
