package inter

import (
	"errors"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// ErrWindowExceeded is returned when an advance would push the consumed
// window past the epoch length.
var ErrWindowExceeded = errors.New("allowance window exceeded")

// ConsumedWindow counts the blocks of an entitlement's allowance that
// have already been consumed within its mint epoch, by claiming or by
// withdrawing. It is a single counter shared by both paths: once a
// block of allowance is consumed by either operation it is gone for the
// other. The counter only moves forward and never exceeds the epoch
// length.
type ConsumedWindow idx.Block

// Offset returns the consumed offset as a block count.
func (w ConsumedWindow) Offset() idx.Block {
	return idx.Block(w)
}

// Advance consumes `by` additional blocks of allowance, used by the
// claim path. It fails with ErrWindowExceeded if the result would pass
// `limit` (the epoch length). `by` must be nonzero.
func (w *ConsumedWindow) Advance(by, limit idx.Block) error {
	next := idx.Block(*w) + by
	if next < idx.Block(*w) || next > limit {
		return ErrWindowExceeded
	}
	*w = ConsumedWindow(next)
	return nil
}

// AdvanceTo moves the consumed offset forward to `offset`, used by the
// withdraw path. Offsets at or behind the current value are a no-op;
// the counter never moves backward.
func (w *ConsumedWindow) AdvanceTo(offset idx.Block) {
	if idx.Block(*w) < offset {
		*w = ConsumedWindow(offset)
	}
}

// String returns a human-readable representation for logging.
func (w ConsumedWindow) String() string {
	return fmt.Sprintf("consumed=%d", idx.Block(w))
}
