// Package writer provides the low-level file handle used while an HDF5
// file is being produced.
package writer

import (
	"fmt"
	"sort"
)

// AllocatedBlock is a contiguous region handed out by the Allocator.
type AllocatedBlock struct {
	Offset uint64
	Size   uint64
}

// Allocator hands out file space at the end of the file. Space is never
// reused, so the resulting layout is strictly sequential.
//
// Not safe for concurrent use.
type Allocator struct {
	blocks     []AllocatedBlock
	nextOffset uint64
}

// NewAllocator returns an allocator whose first block starts at
// initialOffset (the bytes before it are reserved for the superblock).
func NewAllocator(initialOffset uint64) *Allocator {
	return &Allocator{
		blocks:     make([]AllocatedBlock, 0, 16),
		nextOffset: initialOffset,
	}
}

// Allocate reserves size bytes and returns their address.
func (a *Allocator) Allocate(size uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("cannot allocate zero bytes")
	}
	if a.nextOffset+size < a.nextOffset {
		return 0, fmt.Errorf("allocation of %d bytes at %d overflows the address space", size, a.nextOffset)
	}

	addr := a.nextOffset
	a.blocks = append(a.blocks, AllocatedBlock{Offset: addr, Size: size})
	a.nextOffset = addr + size
	return addr, nil
}

// EndOfFile returns the address where the next allocation would start.
func (a *Allocator) EndOfFile() uint64 {
	return a.nextOffset
}

// Blocks returns a copy of the allocated blocks sorted by offset.
func (a *Allocator) Blocks() []AllocatedBlock {
	blocks := append([]AllocatedBlock(nil), a.blocks...)
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Offset < blocks[j].Offset
	})
	return blocks
}

// ValidateNoOverlaps checks that no two blocks share a byte.
func (a *Allocator) ValidateNoOverlaps() error {
	blocks := a.Blocks()
	for i := 0; i+1 < len(blocks); i++ {
		cur, next := blocks[i], blocks[i+1]
		if cur.Offset+cur.Size > next.Offset {
			return fmt.Errorf("overlap detected: block at %d (size %d) overlaps block at %d",
				cur.Offset, cur.Size, next.Offset)
		}
	}
	return nil
}
