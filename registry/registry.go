// Package registry defines the external collaborators of the allowance
// ledger and provides in-memory reference implementations of them.
//
// The ledger engine only ever talks to these small interfaces: the
// entitlement registry (ownership, approvals, supply snapshots), the
// fungible credit ledger (mint and burn-credit accounting), the value
// vault (deposits, refunds and payouts) and the height source. Any
// subsystem satisfying the interfaces can be plugged in; the memory
// implementations back the tests and the simulator.
package registry

import (
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-allowance-ledger/inter"
)

// HeightSource reports the current block height. The ledger derives all
// of its time from it; it never advances time itself.
type HeightSource interface {
	CurrentHeight() idx.Block
}

// EntitlementRegistry is the ledger's read-only view of the
// non-fungible entitlement registry.
type EntitlementRegistry interface {
	// OwnerAndMintHeight resolves an entitlement to its current owner
	// and the height it was created at.
	OwnerAndMintHeight(id inter.EntitlementID) (common.Address, idx.Block, error)

	// IsApprovedOrOwner reports whether caller may act on the
	// entitlement (owner, per-entitlement approval, or operator).
	IsApprovedOrOwner(caller common.Address, id inter.EntitlementID) (bool, error)

	// CurrentCount returns the number of entitlements in existence.
	CurrentCount() uint64

	// CountAsOf returns the number of entitlements that existed at the
	// given past height, from the registry's checkpoint history.
	CountAsOf(height idx.Block) uint64
}

// CreditLedger is the fungible credit sink. Mint and burn-credit are
// pure accounting against the ledger's own books and cannot fail.
type CreditLedger interface {
	// Mint credits `amount` to `to`.
	Mint(to common.Address, amount *big.Int)

	// RecordBurnCredit tracks `amount` as burned-but-credited for
	// `account` without moving any tokens.
	RecordBurnCredit(account common.Address, amount *big.Int)
}

// ValueVault moves deposited value between accounts and the ledger's
// escrow. Both directions are fallible; a failed transfer must leave
// the vault unchanged, and the engine aborts the whole operation.
type ValueVault interface {
	// Collect pulls `amount` of value from `from` into escrow.
	Collect(from common.Address, amount *big.Int) error

	// Payout pays `amount` of escrowed value out to `to`.
	Payout(to common.Address, amount *big.Int) error
}
