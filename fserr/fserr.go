// Package fserr defines the sentinel error kinds shared across MiniFS's
// subsystems. Callers compare against these with errors.Is; wrapping
// (github.com/pkg/errors) only adds diagnostic context, never changes the
// kind a caller observes.
package fserr

import "errors"

var (
	// ErrAlreadyExists is returned by Create when a live directory entry
	// already carries the requested name.
	ErrAlreadyExists = errors.New("minifs: file already exists")

	// ErrNotFound is returned by Destroy/Open when no live directory entry
	// matches the requested name.
	ErrNotFound = errors.New("minifs: file not found")

	// ErrTooManyFiles is returned by Create when the descriptor table has
	// no free descriptor left.
	ErrTooManyFiles = errors.New("minifs: too many files")

	// ErrNoFreeDirEntry is returned by Create when the directory file is
	// already at its maximum size and holds no reusable (free) entry.
	ErrNoFreeDirEntry = errors.New("minifs: no free directory entry")

	// ErrSeekOutOfRange is returned by Seek when the target position is
	// negative or past the file's current size.
	ErrSeekOutOfRange = errors.New("minifs: seek out of range")

	// ErrPathTooLong is returned by Create/Open when a name's length
	// reaches the maximum name length.
	ErrPathTooLong = errors.New("minifs: path too long")

	// ErrDiskFull is returned by Write when a file has no first block and
	// none can be acquired from the bitmap allocator.
	ErrDiskFull = errors.New("minifs: disk is full")

	// ErrTooManyOpened is returned by Open when the open-file table has no
	// free entry left.
	ErrTooManyOpened = errors.New("minifs: too many files opened")

	// ErrOutOfRange is returned by the block device when a block index is
	// out of bounds. It is an internal invariant violation, not part of
	// the public operation surface's error table.
	ErrOutOfRange = errors.New("minifs: block index out of range")
)
