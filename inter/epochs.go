// Package inter defines the core value types shared by the allowance
// ledger: the epoch clock derived from block heights, the bounded
// consumed-window counter coupling claims and withdrawals, and the
// exportable epoch record format.
//
// Heights and epochs reuse the lachesis-base index types so the ledger
// composes with the rest of the node without conversions.

package inter

import (
	"errors"
	"math"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// EntitlementID is the index of a non-fungible entitlement in the
// external registry.
type EntitlementID uint64

// ErrHeightOverflow is returned when an epoch boundary computation
// exceeds the height range.
var ErrHeightOverflow = errors.New("epoch end height overflows")

// EpochOf returns the epoch a height belongs to. epochLength must be
// nonzero; the ledger rules guarantee it is greater than one.
func EpochOf(height idx.Block, epochLength idx.Block) idx.Epoch {
	return idx.Epoch(uint64(height) / uint64(epochLength))
}

// OffsetOf returns the block offset of a height within its epoch,
// in the range [0, epochLength).
func OffsetOf(height idx.Block, epochLength idx.Block) idx.Block {
	return height % epochLength
}

// EpochLastHeight returns the height of the final block of an epoch,
// i.e. (epoch+1)*epochLength - 1. Historical snapshot queries for a
// closed epoch are made at this height.
func EpochLastHeight(epoch idx.Epoch, epochLength idx.Block) (idx.Block, error) {
	next := uint64(epoch) + 1
	if next > math.MaxUint64/uint64(epochLength) {
		return 0, ErrHeightOverflow
	}
	return idx.Block(next*uint64(epochLength) - 1), nil
}
