// Package bitmap implements the block-0 bit array tracking which blocks of
// the device are in use, backed by github.com/bits-and-blooms/bitset
// rather than hand-rolled bit shifting.
package bitmap

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/rtprakash/minifs/block"
	"github.com/rtprakash/minifs/fserr"
	"github.com/rtprakash/minifs/layout"
)

// reservedThrough is the first block index the allocator may ever hand
// out: bitmap block + descriptor blocks + the root's pre-assigned first
// data block.
const reservedThrough = layout.FirstDataBlock + 1

// Bitmap is the RAM copy of block 0, reinterpreted as a bit array where
// bit i records whether block i is in use.
type Bitmap struct {
	words []uint64 // len == block.Size/8, decoded from block 0
	bits  *bitset.BitSet
}

// Load decodes block 0 of dev into a Bitmap.
func Load(dev *block.Device) (*Bitmap, error) {
	raw := make([]byte, block.Size)
	if err := dev.ReadBlock(layout.BitmapBlock, raw); err != nil {
		return nil, errors.Wrap(err, "load bitmap")
	}

	words := make([]uint64, block.Size/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(raw[i*8 : i*8+8])
	}

	return &Bitmap{
		words: words,
		bits:  bitset.From(words),
	}, nil
}

// Format resets the bitmap so that block 0, the descriptor blocks, and the
// root directory's first data block are marked used, and nothing else is.
func (b *Bitmap) Format() {
	b.bits.ClearAll()
	for i := 0; i < reservedThrough; i++ {
		b.bits.Set(uint(i))
	}
}

// Flush re-encodes the RAM bitmap and writes it back to block 0 of dev.
func (b *Bitmap) Flush(dev *block.Device) error {
	raw := make([]byte, block.Size)
	for i, w := range b.words {
		binary.LittleEndian.PutUint64(raw[i*8:i*8+8], w)
	}
	if err := dev.WriteBlock(layout.BitmapBlock, raw); err != nil {
		return errors.Wrap(err, "flush bitmap")
	}
	return nil
}

// SetStatus marks block i used or free.
func (b *Bitmap) SetStatus(i int, used bool) {
	if used {
		b.bits.Set(uint(i))
	} else {
		b.bits.Clear(uint(i))
	}
}

// Test reports whether block i is marked used.
func (b *Bitmap) Test(i int) bool {
	return b.bits.Test(uint(i))
}

// Acquire finds the smallest free block at or past the reserved range,
// marks it used, and returns it. It returns fserr.ErrDiskFull when no
// block is available.
func (b *Bitmap) Acquire() (int, error) {
	next, ok := b.bits.NextClear(uint(reservedThrough))
	if !ok || int(next) >= block.Count {
		return 0, fserr.ErrDiskFull
	}
	b.bits.Set(next)
	return int(next), nil
}

// Release clears block i's bit. It is safe to call on an already-clear
// bit.
func (b *Bitmap) Release(i int) {
	b.bits.Clear(uint(i))
}
