package bits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// field is one bitstream entry the way the snapshot codec emits them:
// a few size bits per encoded integer.
type field struct {
	width int
	v     uint
}

// roundTrip writes all fields and reads them back in order.
func roundTrip(t *testing.T, fields []field) {
	t.Helper()
	arr := &Array{Bytes: make([]byte, 0, 16)}
	w := NewWriter(arr)

	totalBits := 0
	for _, f := range fields {
		w.Write(f.width, f.v)
		totalBits += f.width
	}
	wantBytes := (totalBits + 7) / 8
	require.Len(t, arr.Bytes, wantBytes)

	r := NewReader(arr)
	for i, f := range fields {
		assert.EqualValuesf(t, f.v, r.Read(f.width), "field %d", i)
	}
	assert.Equal(t, totalBits, wantBytes*8-r.NonReadBits())
}

func TestRoundTrip(t *testing.T) {
	for name, fields := range map[string][]field{
		"empty":        {},
		"single bit":   {{1, 1}},
		"size fields":  {{3, 0}, {3, 7}, {2, 1}, {3, 4}, {2, 3}},
		"byte aligned": {{8, 0xa5}, {8, 0x00}, {8, 0xff}},
		"spans bytes":  {{3, 5}, {7, 0x41}, {6, 0x2a}, {3, 2}, {5, 0x11}},
		"wide value":   {{16, 0xbeef}, {1, 0}, {16, 0x0102}},
	} {
		t.Run(name, func(t *testing.T) {
			roundTrip(t, fields)
		})
	}
}

func TestWritePacksLowBits(t *testing.T) {
	// Three 3-bit fields fill the first byte and spill into a second.
	arr := &Array{Bytes: make([]byte, 0, 2)}
	w := NewWriter(arr)
	w.Write(3, 0b101)
	w.Write(3, 0b011)
	w.Write(3, 0b110)

	require.Len(t, arr.Bytes, 2)
	assert.Equal(t, byte(0b10011101), arr.Bytes[0])
	assert.Equal(t, byte(0b00000001), arr.Bytes[1])
}

func TestReadZeroWidth(t *testing.T) {
	arr := &Array{Bytes: []byte{0xff}}
	r := NewReader(arr)
	assert.EqualValues(t, 0, r.Read(0))
	assert.Equal(t, 8, r.NonReadBits())
	assert.Equal(t, 1, r.NonReadBytes())
}

func TestAccounting(t *testing.T) {
	arr := &Array{Bytes: make([]byte, 0, 4)}
	w := NewWriter(arr)
	w.Write(10, 0x2ff)

	r := NewReader(arr)
	assert.Equal(t, 16, r.NonReadBits())
	assert.Equal(t, 2, r.NonReadBytes())

	_ = r.Read(10)
	assert.Equal(t, 6, r.NonReadBits())
	assert.Equal(t, 1, r.NonReadBytes())

	// The write left the 6 padding bits zero.
	assert.EqualValues(t, 0, r.Read(r.NonReadBits()))
	assert.Equal(t, 0, r.NonReadBytes())
}
