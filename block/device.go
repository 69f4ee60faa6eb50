// Package block implements the fixed-size block device MiniFS runs on: an
// array of B fixed-size blocks of S bytes each, held entirely in memory.
package block

import (
	"github.com/pkg/errors"

	"github.com/rtprakash/minifs/fserr"
)

const (
	// Size is the fixed size of a single block, in bytes.
	Size = 512
	// Count is the total number of blocks the device exposes.
	Count = 64
)

// Device is an in-memory array of Count blocks of Size bytes. It has no
// notion of free or used blocks; that bookkeeping belongs to the bitmap
// allocator layered on top.
type Device struct {
	blocks [Count][Size]byte
}

// New returns a Device with every byte zeroed.
func New() *Device {
	return &Device{}
}

// ReadBlock copies block i into out. out must be at least Size bytes.
func (d *Device) ReadBlock(i int, out []byte) error {
	if i < 0 || i >= Count {
		return errors.Wrapf(fserr.ErrOutOfRange, "read block %d", i)
	}
	copy(out, d.blocks[i][:])
	return nil
}

// WriteBlock replaces all Size bytes of block i with in.
func (d *Device) WriteBlock(i int, in []byte) error {
	if i < 0 || i >= Count {
		return errors.Wrapf(fserr.ErrOutOfRange, "write block %d", i)
	}
	copy(d.blocks[i][:], in)
	return nil
}

// InitBlock fills block i with fill repeated Size times.
func (d *Device) InitBlock(i int, fill byte) error {
	if i < 0 || i >= Count {
		return errors.Wrapf(fserr.ErrOutOfRange, "init block %d", i)
	}
	for j := range d.blocks[i] {
		d.blocks[i][j] = fill
	}
	return nil
}

// Block returns a direct reference to block i's backing array, for
// components (bitmap, descriptor table) that need to decode/encode a whole
// block in place rather than copy through ReadBlock/WriteBlock. Callers
// must not retain the reference past the device's lifetime.
func (d *Device) Block(i int) (*[Size]byte, error) {
	if i < 0 || i >= Count {
		return nil, errors.Wrapf(fserr.ErrOutOfRange, "block %d", i)
	}
	return &d.blocks[i], nil
}
