package ledger

import (
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/go-allowance-ledger/inter"
	"github.com/rony4d/go-allowance-ledger/issuance"
	"github.com/rony4d/go-allowance-ledger/utils/fixedpoint"
)

// totalAllowanceSupply returns the epoch's total issuable supply: the
// entitlement count times the full-epoch per-unit allowance. For the
// live epoch (and future ones) the count is the current one, so the
// figure grows as entitlements are issued mid-epoch. For a closed epoch
// the count is frozen at the epoch's last block via the registry's
// snapshot history.
func (e *Engine) totalAllowanceSupply(epoch, now idx.Epoch) (*big.Int, error) {
	perUnit := issuance.AllowanceForWindow(e.curve, e.rules.EpochLength, epoch, e.rules.EpochLength)

	var count uint64
	if epoch >= now {
		count = e.entitlements.CurrentCount()
	} else {
		last, err := inter.EpochLastHeight(epoch, e.rules.EpochLength)
		if err != nil {
			return nil, err
		}
		count = e.entitlements.CountAsOf(last)
	}
	return perUnit.Mul(perUnit, new(big.Int).SetUint64(count)), nil
}

// remainingSupplyQ64 returns the epoch's unallocated supply in Q64:
// total supply minus everything already claimed, withdrawn or settled.
// This is the shared pool both settlement and withdrawal price against,
// floored at zero.
func (e *Engine) remainingSupplyQ64(epoch, now idx.Epoch, t *EpochTotals) (*big.Int, error) {
	supply, err := e.totalAllowanceSupply(epoch, now)
	if err != nil {
		return nil, err
	}
	rem := supply
	rem.Sub(rem, t.SupplyClaimed)
	rem.Sub(rem, t.SupplyWithdrawn)
	remQ64 := fixedpoint.FromUnits(rem)
	remQ64.Sub(remQ64, t.SupplySettledQ64)
	if remQ64.Sign() < 0 {
		return new(big.Int), nil
	}
	return remQ64, nil
}

// settleAmountQ64 prices a settlement: the remaining supply is divided
// among the remaining unspent value, proportionally to the value due.
// Both value operands are Q64, so the pool nets out value already paid
// to withdrawing holders. The first settler of an epoch prices against
// the full remaining pool; each later settler re-divides what is left.
// The result never exceeds the remaining supply.
func settleAmountQ64(remSupplyQ64, valueDueQ64, remValueQ64 *big.Int) *big.Int {
	if remSupplyQ64.Sign() <= 0 || remValueQ64.Sign() <= 0 || valueDueQ64.Sign() <= 0 {
		return new(big.Int)
	}
	amount := fixedpoint.MulDiv(remSupplyQ64, valueDueQ64, remValueQ64)
	if amount.Cmp(remSupplyQ64) > 0 {
		amount.Set(remSupplyQ64)
	}
	return amount
}

// withdrawValueQ64 prices a withdrawal, the mirror of settleAmountQ64
// over the investor side: the remaining unwithdrawn value is divided
// among the remaining supply, proportionally to the allowance amount
// handed back. Returns the effective Q64 supply retired (the amount,
// clamped to the pool) and the Q64 value paid out.
func withdrawValueQ64(remSupplyQ64, remValueQ64, amount *big.Int) (effQ64, valueQ64 *big.Int) {
	if remSupplyQ64.Sign() <= 0 || remValueQ64.Sign() <= 0 || amount.Sign() <= 0 {
		return new(big.Int), new(big.Int)
	}
	effQ64 = fixedpoint.FromUnits(amount)
	if effQ64.Cmp(remSupplyQ64) > 0 {
		effQ64.Set(remSupplyQ64)
	}
	valueQ64 = fixedpoint.MulDiv(remValueQ64, effQ64, remSupplyQ64)
	if valueQ64.Cmp(remValueQ64) > 0 {
		valueQ64.Set(remValueQ64)
	}
	return effQ64, valueQ64
}

// remainingValueQ64 returns the epoch's invested value not yet settled
// or withdrawn against, in Q64, floored at zero.
func remainingValueQ64(t *EpochTotals) *big.Int {
	rem := new(big.Int).Sub(t.ValueInvested, t.ValueSettled)
	remQ64 := fixedpoint.FromUnits(rem)
	remQ64.Sub(remQ64, t.ValueWithdrawnQ64)
	if remQ64.Sign() < 0 {
		return new(big.Int)
	}
	return remQ64
}
