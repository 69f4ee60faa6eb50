// Package descriptor implements the descriptor table: a packed array of
// fixed-size file descriptors backed by the blocks immediately following
// the bitmap, cached in RAM for the lifetime of a mount.
package descriptor

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/rtprakash/minifs/block"
	"github.com/rtprakash/minifs/fserr"
	"github.com/rtprakash/minifs/layout"
)

// Descriptor is one file's on-disk record: its size and its data block
// list. FileSize == layout.FreeSentinel marks a free descriptor.
type Descriptor struct {
	FileSize int32
	Block    [layout.MaxBlocksPerFile]int32
}

// Free reports whether d is unallocated.
func (d *Descriptor) Free() bool {
	return d.FileSize == layout.FreeSentinel
}

// Table is the RAM-cached array of layout.DescriptorCount descriptors.
type Table struct {
	entries [layout.DescriptorCount]Descriptor
}

// Load decodes the descriptor blocks of dev into a Table.
func Load(dev *block.Device) (*Table, error) {
	t := &Table{}
	if err := t.decode(dev); err != nil {
		return nil, errors.Wrap(err, "load descriptor table")
	}
	return t, nil
}

// Format sets every descriptor free (all bytes 0xFF, so every int32 field
// reads as -1), then installs the root directory's pre-assigned state:
// file_size=0, block[0]=layout.FirstDataBlock, remaining slots free.
func (t *Table) Format() {
	for i := range t.entries {
		t.entries[i] = Descriptor{FileSize: layout.FreeSentinel}
		for j := range t.entries[i].Block {
			t.entries[i].Block[j] = layout.FreeSentinel
		}
	}

	root := &t.entries[layout.RootDescriptor]
	root.FileSize = 0
	root.Block[0] = layout.FirstDataBlock
}

// Get returns a pointer to descriptor i for in-place mutation; no copy is
// made.
func (t *Table) Get(i int) *Descriptor {
	return &t.entries[i]
}

// AcquireFree scans for the first free descriptor and returns its index.
// It returns fserr.ErrTooManyFiles when the table is full.
func (t *Table) AcquireFree() (int, error) {
	for i := range t.entries {
		if t.entries[i].Free() {
			return i, nil
		}
	}
	return 0, fserr.ErrTooManyFiles
}

// Flush encodes the RAM table and writes it back to dev's descriptor
// blocks.
func (t *Table) Flush(dev *block.Device) error {
	blocks := make([][]byte, layout.DescriptorBlocks)
	for i := range blocks {
		blocks[i] = make([]byte, block.Size)
	}

	for i := range t.entries {
		blk := blocks[i/layout.DescriptorsPerBlock]
		off := layout.DescriptorOffset(i)
		encode(&t.entries[i], blk[off:off+layout.DescriptorSize])
	}

	for i, blk := range blocks {
		if err := dev.WriteBlock(layout.FirstDescriptorBlock+i, blk); err != nil {
			return errors.Wrapf(err, "flush descriptor block %d", i)
		}
	}
	return nil
}

func (t *Table) decode(dev *block.Device) error {
	raw := make([]byte, block.Size)
	for b := 0; b < layout.DescriptorBlocks; b++ {
		if err := dev.ReadBlock(layout.FirstDescriptorBlock+b, raw); err != nil {
			return errors.Wrapf(err, "read descriptor block %d", b)
		}
		for i := 0; i < layout.DescriptorsPerBlock; i++ {
			idx := b*layout.DescriptorsPerBlock + i
			off := i * layout.DescriptorSize
			decode(raw[off:off+layout.DescriptorSize], &t.entries[idx])
		}
	}
	return nil
}

func encode(d *Descriptor, dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(d.FileSize))
	for i, b := range d.Block {
		off := 4 + i*4
		binary.LittleEndian.PutUint32(dst[off:off+4], uint32(b))
	}
}

func decode(src []byte, d *Descriptor) {
	d.FileSize = int32(binary.LittleEndian.Uint32(src[0:4]))
	for i := range d.Block {
		off := 4 + i*4
		d.Block[i] = int32(binary.LittleEndian.Uint32(src[off : off+4]))
	}
}
