// Package minifs assembles the block device, bitmap allocator, descriptor
// table, open-file table and name service into the single programmatic
// surface described in spec.md §6: mount, unmount, create, destroy, open,
// close, read, write, seek, tell, eof, directory. It mirrors the teacher's
// DB-interface-over-main.go pattern: a small facade type that owns and
// wires together subsystems that each live in their own package.
package minifs

import (
	"github.com/pkg/errors"

	"github.com/rtprakash/minifs/bitmap"
	"github.com/rtprakash/minifs/block"
	"github.com/rtprakash/minifs/descriptor"
	"github.com/rtprakash/minifs/directory"
	"github.com/rtprakash/minifs/layout"
	"github.com/rtprakash/minifs/oft"
)

// Root is the sentinel name Open accepts to rebind the root directory's
// already-open handle rather than looking up a named file, per spec.md
// §4.6. It is chosen outside the alphanumeric names the command
// interpreter hands users.
const Root = "/"

// FileSystem is the process-wide, mount/unmount-scoped state spec.md §9
// describes: a single constructed value rather than module globals, which
// also makes it trivially usable from parallel test packages.
type FileSystem struct {
	dev *block.Device
	bm  *bitmap.Bitmap
	dt  *descriptor.Table
	oft *oft.Table
	dir *directory.Directory
}

// New returns an unmounted FileSystem. Every operation other than Mount is
// undefined before the first Mount, per spec.md §5.
func New() *FileSystem {
	return &FileSystem{}
}

// Mount formats the block device and its subsystems and binds OFT handle 0
// to the root directory. Mount is idempotent over prior state: calling it
// again always reformats, invalidating any previously issued handles.
func (fs *FileSystem) Mount() error {
	dev := block.New()

	bm, err := bitmap.Load(dev)
	if err != nil {
		return errors.Wrap(err, "mount: load bitmap")
	}
	bm.Format()

	dt, err := descriptor.Load(dev)
	if err != nil {
		return errors.Wrap(err, "mount: load descriptor table")
	}
	dt.Format()

	oftTable := oft.New()
	root, err := oftTable.Open(dev, dt, layout.RootDescriptor)
	if err != nil {
		return errors.Wrap(err, "mount: open root")
	}
	if root != layout.RootHandle {
		return errors.Errorf("mount: root bound to handle %d, want %d", root, layout.RootHandle)
	}

	fs.dev = dev
	fs.bm = bm
	fs.dt = dt
	fs.oft = oftTable
	fs.dir = directory.New(dev, bm, dt, oftTable)
	return nil
}

// Unmount releases the root directory's OFT entry and flushes the
// buffered bitmap and descriptor table back to the block device.
func (fs *FileSystem) Unmount() error {
	if err := fs.oft.Close(fs.dev, fs.dt, layout.RootHandle); err != nil {
		return errors.Wrap(err, "unmount: close root")
	}
	if err := fs.dt.Flush(fs.dev); err != nil {
		return errors.Wrap(err, "unmount: flush descriptor table")
	}
	if err := fs.bm.Flush(fs.dev); err != nil {
		return errors.Wrap(err, "unmount: flush bitmap")
	}
	return nil
}

// Create adds a new file named name.
func (fs *FileSystem) Create(name string) error {
	return fs.dir.Create(name)
}

// Destroy removes the file named name, releasing its descriptor and data
// blocks.
func (fs *FileSystem) Destroy(name string) error {
	return fs.dir.Destroy(name)
}

// Open binds a new handle to name, or to the root directory when name ==
// Root.
func (fs *FileSystem) Open(name string) (int, error) {
	if name == Root {
		return layout.RootHandle, nil
	}
	return fs.dir.Open(name)
}

// Close releases handle.
func (fs *FileSystem) Close(handle int) error {
	return fs.oft.Close(fs.dev, fs.dt, handle)
}

// Read copies up to len(dst) bytes from handle's current position.
func (fs *FileSystem) Read(handle int, dst []byte) (int, error) {
	return fs.oft.Read(fs.dev, fs.dt, handle, dst)
}

// Write copies up to len(src) bytes into handle's current position,
// acquiring data blocks lazily.
func (fs *FileSystem) Write(handle int, src []byte) (int, error) {
	return fs.oft.Write(fs.dev, fs.dt, fs.bm, handle, src)
}

// Seek moves handle to pos.
func (fs *FileSystem) Seek(handle int, pos int32) error {
	return fs.oft.Seek(fs.dev, fs.dt, handle, pos)
}

// Tell returns handle's logical position.
func (fs *FileSystem) Tell(handle int) int32 {
	return fs.oft.Tell(handle)
}

// Eof reports whether handle has reached end-of-file.
func (fs *FileSystem) Eof(handle int) bool {
	return fs.oft.Eof(handle)
}

// Directory returns the root directory's listing and the count of live
// entries.
func (fs *FileSystem) Directory() (string, int) {
	return fs.dir.List()
}

// Snapshot copies the entire raw block array out to a byte slice. It is an
// in-memory round-trip hook only — it performs no file I/O and does not
// contradict spec.md §1's "durability across process restarts" non-goal,
// since a snapshot only survives as long as the process does.
func (fs *FileSystem) Snapshot() []byte {
	out := make([]byte, 0, block.Count*block.Size)
	for i := 0; i < block.Count; i++ {
		b, err := fs.dev.Block(i)
		if err != nil {
			// Count is a compile-time constant in range; unreachable.
			panic(err)
		}
		out = append(out, b[:]...)
	}
	return out
}

// Restore replaces the entire raw block array with data, which must have
// been produced by Snapshot (or have the same length), then reloads the
// bitmap, descriptor table, root binding and directory filter from the
// restored device. Any handle other than the root is invalidated.
func (fs *FileSystem) Restore(data []byte) error {
	if len(data) != block.Count*block.Size {
		return errors.Errorf("restore: expected %d bytes, got %d", block.Count*block.Size, len(data))
	}
	for i := 0; i < block.Count; i++ {
		if err := fs.dev.WriteBlock(i, data[i*block.Size:(i+1)*block.Size]); err != nil {
			return errors.Wrapf(err, "restore: write block %d", i)
		}
	}

	return fs.reloadFromDevice("restore")
}

// DumpToFile persists the current block array to path via block.FileStore,
// an explicit export distinct from Snapshot/Restore's in-memory hook.
func (fs *FileSystem) DumpToFile(path string) error {
	return block.NewFileStore(path).Dump(fs.dev)
}

// LoadFromFile replaces the current block array with the image at path,
// previously written by DumpToFile, then reloads the bitmap and descriptor
// caches from it.
func (fs *FileSystem) LoadFromFile(path string) error {
	if err := block.NewFileStore(path).Load(fs.dev); err != nil {
		return err
	}

	return fs.reloadFromDevice("load from file")
}

// reloadFromDevice re-derives every cache (bitmap, descriptor table, the
// root's OFT binding, and the directory's name filter) from the device's
// current raw contents. Unlike Mount, it never reformats: it is used after
// the device's bytes were replaced out from under the existing caches
// (Restore, LoadFromFile), where the content must be preserved, not reset.
func (fs *FileSystem) reloadFromDevice(op string) error {
	bm, err := bitmap.Load(fs.dev)
	if err != nil {
		return errors.Wrapf(err, "%s: reload bitmap", op)
	}
	dt, err := descriptor.Load(fs.dev)
	if err != nil {
		return errors.Wrapf(err, "%s: reload descriptor table", op)
	}
	fs.bm = bm
	fs.dt = dt

	fs.oft.Format()
	root, err := fs.oft.Open(fs.dev, fs.dt, layout.RootDescriptor)
	if err != nil {
		return errors.Wrapf(err, "%s: reopen root", op)
	}
	if root != layout.RootHandle {
		return errors.Errorf("%s: root bound to handle %d, want %d", op, root, layout.RootHandle)
	}

	fs.dir = directory.New(fs.dev, fs.bm, fs.dt, fs.oft)
	if err := fs.dir.Rebuild(); err != nil {
		return errors.Wrapf(err, "%s: rebuild directory filter", op)
	}
	return nil
}
