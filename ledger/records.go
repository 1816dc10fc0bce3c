package ledger

import (
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
)

// accountKey identifies one investor's record within one epoch.
type accountKey struct {
	epoch idx.Epoch
	addr  common.Address
}

// AccountRecord is the per-(epoch, account) investment state. The rate
// only grows (via buy) and the settled offset only advances (via
// settle, bounded by the epoch length).
type AccountRecord struct {
	// RatePerBlock is the account's cumulative investment rate, in
	// value units per block.
	RatePerBlock *big.Int

	// LastSettledOffset is the block offset up to which the account
	// has already been settled.
	LastSettledOffset idx.Block
}

func newAccountRecord() *AccountRecord {
	return &AccountRecord{RatePerBlock: new(big.Int)}
}

// Copy returns a detached copy of the record.
func (a *AccountRecord) Copy() AccountRecord {
	return AccountRecord{
		RatePerBlock:      new(big.Int).Set(a.RatePerBlock),
		LastSettledOffset: a.LastSettledOffset,
	}
}

// EpochTotals holds one epoch's aggregate accumulators. All fields are
// non-decreasing for the lifetime of the epoch and are never reset.
// Q64 fields carry fixed-point precision; the rest are integer units.
type EpochTotals struct {
	SupplyClaimed     *big.Int
	SupplyWithdrawn   *big.Int
	SupplySettledQ64  *big.Int
	ValueInvested     *big.Int
	ValueSettled      *big.Int
	ValueWithdrawnQ64 *big.Int
}

func newEpochTotals() *EpochTotals {
	return &EpochTotals{
		SupplyClaimed:     new(big.Int),
		SupplyWithdrawn:   new(big.Int),
		SupplySettledQ64:  new(big.Int),
		ValueInvested:     new(big.Int),
		ValueSettled:      new(big.Int),
		ValueWithdrawnQ64: new(big.Int),
	}
}

// Copy returns a detached copy of the totals.
func (t *EpochTotals) Copy() EpochTotals {
	return EpochTotals{
		SupplyClaimed:     new(big.Int).Set(t.SupplyClaimed),
		SupplyWithdrawn:   new(big.Int).Set(t.SupplyWithdrawn),
		SupplySettledQ64:  new(big.Int).Set(t.SupplySettledQ64),
		ValueInvested:     new(big.Int).Set(t.ValueInvested),
		ValueSettled:      new(big.Int).Set(t.ValueSettled),
		ValueWithdrawnQ64: new(big.Int).Set(t.ValueWithdrawnQ64),
	}
}
