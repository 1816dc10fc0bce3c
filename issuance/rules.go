// Package issuance defines the economic rules of the allowance ledger:
// the epoch length and the linear issuance curve that determines how
// much credit a single entitlement yields per epoch.
//
// This package provides:
//   - Curve: the per-entitlement-unit allowance rate as a linear
//     function of the epoch index, in signed Q64 fixed-point
//   - Rules: the immutable ledger configuration with named presets
//   - AllowanceForWindow: the block-granular allowance computation
//     shared by claim, buy, settle and withdraw pricing
//
// The Rules type is the central configuration structure; presets follow
// the usual main/fake split so tests and local networks can run with
// short epochs.

package issuance

import (
	"encoding/json"
	"errors"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/go-allowance-ledger/utils/fixedpoint"
)

const (
	// DefaultEpochLength is the production epoch length in blocks.
	DefaultEpochLength idx.Block = 86400

	// FakeEpochLength is the accelerated epoch length for local/fake
	// networks, short enough that a test can cross several epochs.
	FakeEpochLength idx.Block = 100
)

// ErrBadEpochLength is returned by Validate when the epoch length is
// too small to carry block-granular accounting.
var ErrBadEpochLength = errors.New("epoch length must be greater than 1")

// Curve is the linear issuance-rate curve. For epoch e, the allowance
// granted to one entitlement over a full epoch is Slope*e + Intercept,
// in signed Q64 fixed-point credit units. Negative results clamp to
// zero, so a falling curve simply stops issuing at some epoch rather
// than going negative.
type Curve struct {
	Slope     *big.Int // Q64 per-epoch change of the per-unit allowance
	Intercept *big.Int // Q64 per-unit allowance at epoch 0
}

// NewCurve builds a curve from raw Q64 slope and intercept values.
func NewCurve(slope, intercept *big.Int) Curve {
	return Curve{
		Slope:     new(big.Int).Set(slope),
		Intercept: new(big.Int).Set(intercept),
	}
}

// FlatCurve builds a constant curve issuing `units` whole credit units
// per entitlement per epoch, regardless of the epoch index.
func FlatCurve(units uint64) Curve {
	return Curve{
		Slope:     new(big.Int),
		Intercept: fixedpoint.FromUnits(new(big.Int).SetUint64(units)),
	}
}

// PerUnit returns the Q64 allowance rate of one entitlement unit for
// the given epoch, clamped to zero when the curve evaluates negative.
func (c Curve) PerUnit(epoch idx.Epoch) *big.Int {
	rate := new(big.Int).SetUint64(uint64(epoch))
	rate.Mul(rate, c.Slope)
	rate.Add(rate, c.Intercept)
	if rate.Sign() < 0 {
		return new(big.Int)
	}
	return rate
}

// Copy creates a deep copy of the curve. Curves hold *big.Int fields
// that would otherwise be shared by a shallow copy.
func (c Curve) Copy() Curve {
	return Curve{
		Slope:     new(big.Int).Set(c.Slope),
		Intercept: new(big.Int).Set(c.Intercept),
	}
}

// Rules describes the complete configuration of an allowance ledger
// deployment.
type Rules struct {
	// Name identifies the preset (e.g. "main", "fake").
	Name string

	// EpochLength is the number of blocks per epoch. It is fixed at
	// construction and must be greater than 1.
	EpochLength idx.Block

	// Curve is the initial issuance curve. The ledger administrator
	// may replace it at runtime.
	Curve Curve
}

// MainNetRules returns the production configuration.
func MainNetRules() Rules {
	return Rules{
		Name:        "main",
		EpochLength: DefaultEpochLength,
		Curve:       FlatCurve(1000),
	}
}

// FakeNetRules returns the accelerated configuration for local
// networks and tests: 100-block epochs with a flat curve of 1000
// credit units per entitlement per epoch.
func FakeNetRules() Rules {
	return Rules{
		Name:        "fake",
		EpochLength: FakeEpochLength,
		Curve:       FlatCurve(1000),
	}
}

// Validate checks the construction-time constraints.
func (r Rules) Validate() error {
	if r.EpochLength <= 1 {
		return ErrBadEpochLength
	}
	if r.Curve.Slope == nil || r.Curve.Intercept == nil {
		return errors.New("issuance curve is not initialized")
	}
	return nil
}

// Copy creates a deep copy of Rules, deep-copying the curve's big.Int
// fields to avoid shared state.
func (r Rules) Copy() Rules {
	cp := r
	cp.Curve = r.Curve.Copy()
	return cp
}

// String returns a JSON representation of Rules for debugging and
// logging.
func (r Rules) String() string {
	b, _ := json.Marshal(&r)
	return string(b)
}

// AllowanceForWindow returns the integer credit amount a single
// entitlement yields over `duration` consecutive blocks of `epoch`:
// PerUnit(epoch) * duration / epochLength, truncated.
//
// The caller is responsible for 0 < duration <= epochLength; out of
// range durations yield zero. The Q64 intermediate is kept at full
// width so the result only rounds once, at the end.
func AllowanceForWindow(c Curve, epochLength idx.Block, epoch idx.Epoch, duration idx.Block) *big.Int {
	if duration == 0 || duration > epochLength {
		return new(big.Int)
	}
	perUnit := c.PerUnit(epoch)
	if perUnit.Sign() <= 0 {
		return new(big.Int)
	}
	windowed := fixedpoint.MulDivUint64(perUnit, uint64(duration), uint64(epochLength))
	return fixedpoint.Truncate(windowed)
}
