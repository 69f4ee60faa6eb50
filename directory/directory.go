// Package directory implements the name service: create, destroy, open,
// close and listing of files, all expressed as reads and writes of the
// root directory's content through the same open-file-table machinery
// every other file uses. The directory is not a separate subsystem; it is
// descriptor 0, opened once at mount and pinned to handle 0.
package directory

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/pkg/errors"

	"github.com/rtprakash/minifs/bitmap"
	"github.com/rtprakash/minifs/block"
	"github.com/rtprakash/minifs/descriptor"
	"github.com/rtprakash/minifs/fserr"
	"github.com/rtprakash/minifs/layout"
	"github.com/rtprakash/minifs/oft"
)

// Directory drives name-service operations over the root's OFT entry.
type Directory struct {
	dev *block.Device
	bm  *bitmap.Bitmap
	dt  *descriptor.Table
	oft *oft.Table

	// filter is a negative-existence pre-check over live names: a false
	// result is a hard guarantee no live entry matches, since bloom
	// filters never produce false negatives. A true result only means
	// "maybe" and the directory scan remains authoritative either way.
	filter *bloom.BloomFilter
}

// New constructs a Directory over the given subsystems. Callers must open
// the root (descriptor 0) into OFT handle 0 themselves, per spec — this
// package never special-cases that binding beyond assuming it already
// holds.
func New(dev *block.Device, bm *bitmap.Bitmap, dt *descriptor.Table, oftTable *oft.Table) *Directory {
	dr := &Directory{dev: dev, bm: bm, dt: dt, oft: oftTable}
	dr.Format()
	return dr
}

// Format resets the membership filter to empty, matching the directory
// file itself being reset to empty at every mount.
func (dr *Directory) Format() {
	dr.filter = bloom.NewWithEstimates(uint(layout.DescriptorCount), 0.01)
}

// Rebuild resets the membership filter, then repopulates it by scanning
// every live entry currently in the directory file. Unlike Format, it does
// not assume the directory is empty — callers use this after the
// directory's underlying content was replaced out from under the filter
// (a block-device snapshot restore), rather than after a true mount
// reformat.
func (dr *Directory) Rebuild() error {
	dr.Format()

	if err := dr.oft.Seek(dr.dev, dr.dt, layout.RootHandle, 0); err != nil {
		return errors.Wrap(err, "rebuild: rewind directory")
	}

	var buf [layout.DirEntrySize]byte
	for !dr.oft.Eof(layout.RootHandle) {
		n, err := dr.oft.Read(dr.dev, dr.dt, layout.RootHandle, buf[:])
		if err != nil {
			return errors.Wrap(err, "rebuild: read directory entry")
		}
		if n < layout.DirEntrySize {
			break
		}
		if buf[0] != 0 {
			dr.filter.AddString(decodeName(buf[:layout.NameLen]))
		}
	}
	return nil
}

// Create adds a new file named name. It fails with ErrPathTooLong,
// ErrAlreadyExists, ErrTooManyFiles or ErrNoFreeDirEntry, per spec.md §4.6.
func (dr *Directory) Create(name string) error {
	if len(name) >= layout.NameLen {
		return fserr.ErrPathTooLong
	}

	maybeExists := dr.filter.TestString(name)

	if err := dr.oft.Seek(dr.dev, dr.dt, layout.RootHandle, 0); err != nil {
		return errors.Wrap(err, "create: rewind directory")
	}

	freeOffset := int32(-1)
	var buf [layout.DirEntrySize]byte
	for !dr.oft.Eof(layout.RootHandle) {
		entryPos := dr.oft.Tell(layout.RootHandle)
		n, err := dr.oft.Read(dr.dev, dr.dt, layout.RootHandle, buf[:])
		if err != nil {
			return errors.Wrap(err, "create: read directory entry")
		}
		if n < layout.DirEntrySize {
			break
		}
		if buf[0] == 0 {
			if freeOffset < 0 {
				freeOffset = entryPos
			}
		} else if maybeExists && nameMatches(buf[:layout.NameLen], name) {
			return fserr.ErrAlreadyExists
		}
	}

	if freeOffset < 0 && dr.oft.Size(layout.RootHandle) >= int32(layout.MaxBlocksPerFile*block.Size) {
		return fserr.ErrNoFreeDirEntry
	}

	descIdx, err := dr.dt.AcquireFree()
	if err != nil {
		return err
	}
	d := dr.dt.Get(descIdx)
	d.FileSize = 0
	for i := range d.Block {
		d.Block[i] = layout.FreeSentinel
	}

	var rec [layout.DirEntrySize]byte
	encodeName(name, rec[:layout.NameLen])
	binary.LittleEndian.PutUint32(rec[layout.NameLen:], uint32(descIdx))

	writeAt := freeOffset
	if writeAt < 0 {
		writeAt = dr.oft.Size(layout.RootHandle)
	}
	if err := dr.oft.Seek(dr.dev, dr.dt, layout.RootHandle, writeAt); err != nil {
		return errors.Wrap(err, "create: seek to write offset")
	}

	n, err := dr.oft.Write(dr.dev, dr.dt, dr.bm, layout.RootHandle, rec[:])
	if err != nil {
		return errors.Wrap(err, "create: write directory entry")
	}
	if n < layout.DirEntrySize {
		d.FileSize = layout.FreeSentinel
		return fserr.ErrNoFreeDirEntry
	}

	dr.filter.AddString(name)
	return nil
}

// Destroy removes the file named name: frees its descriptor and every
// block it held, and marks the directory entry free in place. It fails
// with ErrNotFound when no live entry matches.
func (dr *Directory) Destroy(name string) error {
	if err := dr.oft.Seek(dr.dev, dr.dt, layout.RootHandle, 0); err != nil {
		return errors.Wrap(err, "destroy: rewind directory")
	}

	var buf [layout.DirEntrySize]byte
	for !dr.oft.Eof(layout.RootHandle) {
		entryPos := dr.oft.Tell(layout.RootHandle)
		n, err := dr.oft.Read(dr.dev, dr.dt, layout.RootHandle, buf[:])
		if err != nil {
			return errors.Wrap(err, "destroy: read directory entry")
		}
		if n < layout.DirEntrySize {
			break
		}
		if buf[0] == 0 || !nameMatches(buf[:layout.NameLen], name) {
			continue
		}

		descIdx := int(binary.LittleEndian.Uint32(buf[layout.NameLen:]))
		d := dr.dt.Get(descIdx)
		for i := range d.Block {
			if d.Block[i] != layout.FreeSentinel {
				dr.bm.Release(int(d.Block[i]))
				d.Block[i] = layout.FreeSentinel
			}
		}
		d.FileSize = layout.FreeSentinel

		buf[0] = 0
		if err := dr.oft.Seek(dr.dev, dr.dt, layout.RootHandle, entryPos); err != nil {
			return errors.Wrap(err, "destroy: seek to entry")
		}
		if _, err := dr.oft.Write(dr.dev, dr.dt, dr.bm, layout.RootHandle, buf[:]); err != nil {
			return errors.Wrap(err, "destroy: write freed entry")
		}

		// Bloom filters have no delete; the filter may now report a
		// false positive for name, which only ever costs an extra scan
		// in a later Create, never an incorrect already-exists.
		return nil
	}

	return fserr.ErrNotFound
}

// Open looks up name and opens it, returning a new handle. It fails with
// ErrPathTooLong, ErrNotFound or ErrTooManyOpened.
func (dr *Directory) Open(name string) (int, error) {
	if len(name) >= layout.NameLen {
		return 0, fserr.ErrPathTooLong
	}

	if err := dr.oft.Seek(dr.dev, dr.dt, layout.RootHandle, 0); err != nil {
		return 0, errors.Wrap(err, "open: rewind directory")
	}

	var buf [layout.DirEntrySize]byte
	for !dr.oft.Eof(layout.RootHandle) {
		n, err := dr.oft.Read(dr.dev, dr.dt, layout.RootHandle, buf[:])
		if err != nil {
			return 0, errors.Wrap(err, "open: read directory entry")
		}
		if n < layout.DirEntrySize {
			break
		}
		if buf[0] == 0 || !nameMatches(buf[:layout.NameLen], name) {
			continue
		}

		descIdx := int(binary.LittleEndian.Uint32(buf[layout.NameLen:]))
		return dr.oft.Open(dr.dev, dr.dt, descIdx)
	}

	return 0, fserr.ErrNotFound
}

// Close releases handle. It never fails.
func (dr *Directory) Close(handle int) error {
	return dr.oft.Close(dr.dev, dr.dt, handle)
}

// List scans live directory entries in directory order and returns a
// listing of "name size" pairs separated by single spaces and terminated
// by a newline, along with the count of live entries.
func (dr *Directory) List() (string, int) {
	if err := dr.oft.Seek(dr.dev, dr.dt, layout.RootHandle, 0); err != nil {
		return "\n", 0
	}

	var sb strings.Builder
	count := 0
	var buf [layout.DirEntrySize]byte
	for !dr.oft.Eof(layout.RootHandle) {
		n, err := dr.oft.Read(dr.dev, dr.dt, layout.RootHandle, buf[:])
		if err != nil || n < layout.DirEntrySize {
			break
		}
		if buf[0] == 0 {
			continue
		}

		if count > 0 {
			sb.WriteByte(' ')
		}
		descIdx := int(binary.LittleEndian.Uint32(buf[layout.NameLen:]))
		fmt.Fprintf(&sb, "%s %d", decodeName(buf[:layout.NameLen]), dr.dt.Get(descIdx).FileSize)
		count++
	}
	sb.WriteByte('\n')

	return sb.String(), count
}

func encodeName(name string, dst []byte) {
	for i := range dst {
		if i < len(name) {
			dst[i] = name[i]
		} else {
			dst[i] = 0
		}
	}
}

func nameMatches(stored []byte, name string) bool {
	for i := 0; i < layout.NameLen; i++ {
		var want byte
		if i < len(name) {
			want = name[i]
		}
		if stored[i] != want {
			return false
		}
	}
	return true
}

func decodeName(stored []byte) string {
	end := 0
	for end < len(stored) && stored[end] != 0 {
		end++
	}
	return string(stored[:end])
}
