package fixedpoint

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestScale verifies the Q64 scale constant.
func TestScale(t *testing.T) {
	want := new(big.Int).Lsh(big.NewInt(1), 64)
	assert.Equal(t, 0, Scale.Cmp(want), "Scale must be 2^64")
}

// TestUnitsRoundTrip checks that expanding an integer amount and
// truncating it back is lossless.
func TestUnitsRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		units := new(big.Int).SetUint64(r.Uint64())
		got := Truncate(FromUnits(units))
		assert.Equal(t, 0, units.Cmp(got), "round trip mismatch for %s", units)
	}
}

// TestTruncateDropsFraction checks that sub-unit amounts truncate to zero.
func TestTruncateDropsFraction(t *testing.T) {
	half := new(big.Int).Rsh(Scale, 1) // 0.5 in Q64
	assert.Equal(t, int64(0), Truncate(half).Int64())

	oneAndHalf := new(big.Int).Add(Scale, half)
	assert.Equal(t, int64(1), Truncate(oneAndHalf).Int64())
}

// TestMulDiv exercises the wide multiply-then-divide primitive against
// values that would overflow a 64-bit intermediate product.
func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d uint64
		want    string
	}{
		{"exact", 1000, 50, 100, "500"},
		{"truncated", 10, 1, 3, "3"},
		{"wide product", 1 << 63, 1 << 10, 1 << 9, "18446744073709551616"},
		{"identity", 12345, 1, 1, "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MulDivUint64(new(big.Int).SetUint64(tt.a), tt.b, tt.d)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

// TestMulDivNoOperandAliasing makes sure MulDiv does not mutate its inputs.
func TestMulDivNoOperandAliasing(t *testing.T) {
	a := big.NewInt(7)
	b := big.NewInt(11)
	d := big.NewInt(3)
	_ = MulDiv(a, b, d)
	assert.Equal(t, int64(7), a.Int64())
	assert.Equal(t, int64(11), b.Int64())
	assert.Equal(t, int64(3), d.Int64())
}
