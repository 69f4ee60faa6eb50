// Package layout holds the on-disk constants shared across MiniFS's
// subsystems, mirroring how the teacher pack keeps cross-cutting record
// shapes (FlashLogGo's types package) in one place rather than duplicated
// per consumer.
package layout

import "github.com/rtprakash/minifs/block"

const (
	// DescriptorSize is sizeof(descriptor): one int32 file_size plus
	// MaxBlocksPerFile int32 block slots.
	DescriptorSize = 4 + MaxBlocksPerFile*4

	// MaxBlocksPerFile bounds every file (including the root directory) to
	// at most this many data blocks.
	MaxBlocksPerFile = 3

	// NameLen is the fixed width, in bytes, of a file name. A name whose
	// length reaches NameLen is rejected as path-too-long.
	NameLen = 4

	// DirEntrySize is sizeof(directory entry): NameLen bytes of name plus
	// one int32 descriptor index.
	DirEntrySize = NameLen + 4

	// DescriptorBlocks is the number of blocks, immediately following the
	// bitmap block, occupied by the descriptor table.
	DescriptorBlocks = 6

	// DescriptorsPerBlock is how many fixed-width descriptors fit in one
	// block.
	DescriptorsPerBlock = block.Size / DescriptorSize

	// DescriptorCount is the total number of descriptors the table holds.
	DescriptorCount = DescriptorBlocks * DescriptorsPerBlock

	// OFTCapacity is the number of concurrent open-file sessions.
	OFTCapacity = 4

	// BitmapBlock is the index of the block the bitmap occupies.
	BitmapBlock = 0

	// FirstDescriptorBlock is the index of the first descriptor block.
	FirstDescriptorBlock = BitmapBlock + 1

	// FirstDataBlock is the index of the first block available for file
	// data — immediately after the bitmap and descriptor blocks.
	FirstDataBlock = FirstDescriptorBlock + DescriptorBlocks

	// RootDescriptor is the descriptor index permanently reserved for the
	// root directory.
	RootDescriptor = 0

	// RootHandle is the OFT handle permanently bound to the root
	// directory after mount.
	RootHandle = 0

	// FreeSentinel marks a free descriptor (file_size), a free OFT entry
	// (pos), or an unallocated block slot.
	FreeSentinel = -1
)

// DescriptorBlockIndex returns the block holding descriptor i.
func DescriptorBlockIndex(i int) int {
	return FirstDescriptorBlock + i/DescriptorsPerBlock
}

// DescriptorOffset returns descriptor i's byte offset within its block.
func DescriptorOffset(i int) int {
	return (i % DescriptorsPerBlock) * DescriptorSize
}
