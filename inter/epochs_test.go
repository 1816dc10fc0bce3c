package inter

import (
	"math"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// TestEpochOf verifies the height-to-epoch derivation for a range of
// epoch lengths and heights, including epoch boundaries.
func TestEpochOf(t *testing.T) {
	tests := []struct {
		name   string
		height idx.Block
		length idx.Block
		want   idx.Epoch
	}{
		{"genesis", 0, 100, 0},
		{"mid first epoch", 99, 100, 0},
		{"first block of second epoch", 100, 100, 1},
		{"large height", 123456789, 100, 1234567},
		{"length two", 5, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EpochOf(tt.height, tt.length); got != tt.want {
				t.Errorf("EpochOf(%d, %d) = %d, want %d", tt.height, tt.length, got, tt.want)
			}
		})
	}
}

// TestOffsetOf verifies the intra-epoch offset stays in [0, length).
func TestOffsetOf(t *testing.T) {
	const length = idx.Block(100)
	for _, height := range []idx.Block{0, 1, 99, 100, 101, 199, 200, 1234567} {
		got := OffsetOf(height, length)
		if got >= length {
			t.Fatalf("OffsetOf(%d, %d) = %d, out of range", height, length, got)
		}
		if want := height % length; got != want {
			t.Errorf("OffsetOf(%d, %d) = %d, want %d", height, length, got, want)
		}
	}
}

// TestEpochLastHeight verifies boundary heights and overflow detection.
func TestEpochLastHeight(t *testing.T) {
	got, err := EpochLastHeight(0, 100)
	if err != nil || got != 99 {
		t.Errorf("EpochLastHeight(0, 100) = %d, %v, want 99, nil", got, err)
	}
	got, err = EpochLastHeight(3, 100)
	if err != nil || got != 399 {
		t.Errorf("EpochLastHeight(3, 100) = %d, %v, want 399, nil", got, err)
	}

	// An epoch index near the top of the range must not wrap around.
	_, err = EpochLastHeight(idx.Epoch(math.MaxUint32), idx.Block(math.MaxUint64/2))
	if err != ErrHeightOverflow {
		t.Errorf("expected ErrHeightOverflow, got %v", err)
	}
}

// TestConsumedWindow exercises the shared claim/withdraw counter:
// bounded, monotone, and shared between both advance paths.
func TestConsumedWindow(t *testing.T) {
	const limit = idx.Block(100)
	var w ConsumedWindow

	if err := w.Advance(30, limit); err != nil {
		t.Fatalf("Advance(30) failed: %v", err)
	}
	if w.Offset() != 30 {
		t.Fatalf("Offset = %d, want 30", w.Offset())
	}

	// AdvanceTo behind the current offset is a no-op.
	w.AdvanceTo(10)
	if w.Offset() != 30 {
		t.Errorf("AdvanceTo(10) moved counter backward to %d", w.Offset())
	}

	// AdvanceTo ahead moves forward.
	w.AdvanceTo(50)
	if w.Offset() != 50 {
		t.Errorf("AdvanceTo(50): Offset = %d, want 50", w.Offset())
	}

	// Claiming past the limit must fail without mutating the counter.
	if err := w.Advance(51, limit); err != ErrWindowExceeded {
		t.Errorf("Advance(51) = %v, want ErrWindowExceeded", err)
	}
	if w.Offset() != 50 {
		t.Errorf("failed Advance mutated counter to %d", w.Offset())
	}

	// Consuming exactly up to the limit is allowed.
	if err := w.Advance(50, limit); err != nil {
		t.Errorf("Advance to limit failed: %v", err)
	}
	if w.Offset() != limit {
		t.Errorf("Offset = %d, want %d", w.Offset(), limit)
	}
}
