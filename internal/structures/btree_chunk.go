// Package structures implements the indexing structures that sit between
// object headers and raw data: the version 1 chunk B-tree used by chunked
// datasets, and the local heap, group B-tree and symbol table nodes of
// old-style groups.
package structures

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/scigolib/h5voxel/internal/core"
	"github.com/scigolib/h5voxel/internal/utils"
)

// B-tree node types.
const (
	NodeTypeGroup = 0
	NodeTypeChunk = 1
)

// Maximum tree depth accepted when reading; a 64-ary tree this deep
// indexes far more chunks than any file can hold.
const maxTreeDepth = 16

// Writer interface for writing data at a specific address.
type Writer interface {
	WriteAtAddress(data []byte, address uint64) error
}

// Allocator interface for space allocation.
type Allocator interface {
	Allocate(size uint64) (uint64, error)
}

// ChunkRecord locates one stored chunk.
//
// Offsets are element offsets of the chunk's first element, one per
// dataset dimension. Size is the stored (filtered) size in bytes and bit i
// of FilterMask is set when filter i of the pipeline was skipped.
type ChunkRecord struct {
	Offsets    []uint64
	Size       uint32
	FilterMask uint32
	Address    uint64
}

// chunkKey is the on-disk key of a chunk B-tree. Every key carries rank+1
// offsets; the trailing one addresses bytes within an element and is
// always zero.
type chunkKey struct {
	size    uint32
	mask    uint32
	offsets []uint64
}

func keySize(rank int) int {
	return 4 + 4 + 8*(rank+1)
}

func (k chunkKey) appendTo(buf []byte, rank int) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, k.size)
	buf = binary.LittleEndian.AppendUint32(buf, k.mask)
	for _, off := range k.offsets {
		buf = binary.LittleEndian.AppendUint64(buf, off)
	}
	return binary.LittleEndian.AppendUint64(buf, 0)
}

// ChunkBTreeWriter builds the version 1 B-tree (node type 1) indexing the
// chunks of one dataset.
//
// Leaves hold up to 2K chunks, sorted by offset. When more than one leaf
// is needed, internal levels are added until a single root remains. Nodes
// at the same level are linked through their sibling addresses and every
// node is allocated at its full 2K capacity, as libhdf5 expects.
//
// Usage:
//
//	bt := NewChunkBTreeWriter([]uint64{4, 4, 4}, 32)
//	bt.AddChunk(ChunkRecord{Offsets: []uint64{0, 0, 0}, Size: 512, Address: addr})
//	root, err := bt.WriteToFile(fileWriter, fileWriter)
type ChunkBTreeWriter struct {
	chunkDims []uint64
	k         int
	records   []ChunkRecord
}

// NewChunkBTreeWriter creates a writer for chunks of shape chunkDims.
// k is the B-tree half-capacity; libhdf5 uses 32 unless the file says
// otherwise.
func NewChunkBTreeWriter(chunkDims []uint64, k int) *ChunkBTreeWriter {
	if k <= 0 {
		k = core.DefaultChunkBTreeK
	}
	return &ChunkBTreeWriter{chunkDims: slices.Clone(chunkDims), k: k}
}

// AddChunk records a written chunk.
func (w *ChunkBTreeWriter) AddChunk(rec ChunkRecord) error {
	if len(rec.Offsets) != len(w.chunkDims) {
		return fmt.Errorf("chunk offset rank %d does not match chunk rank %d", len(rec.Offsets), len(w.chunkDims))
	}
	for i, off := range rec.Offsets {
		if off%w.chunkDims[i] != 0 {
			return fmt.Errorf("chunk offset %v not aligned to chunk shape %v", rec.Offsets, w.chunkDims)
		}
	}
	rec.Offsets = slices.Clone(rec.Offsets)
	w.records = append(w.records, rec)
	return nil
}

// Len returns the number of recorded chunks.
func (w *ChunkBTreeWriter) Len() int {
	return len(w.records)
}

// NodeSize returns the allocated size of one node.
func (w *ChunkBTreeWriter) NodeSize() uint64 {
	rank := len(w.chunkDims)
	//nolint:gosec // G115: k and rank are small
	return uint64(24 + 2*w.k*8 + (2*w.k+1)*keySize(rank))
}

type pendingNode struct {
	keys     []chunkKey
	children []uint64
	address  uint64
}

// WriteToFile writes every level of the tree and returns the root
// address.
func (w *ChunkBTreeWriter) WriteToFile(writer Writer, allocator Allocator) (uint64, error) {
	if len(w.records) == 0 {
		return 0, errors.New("chunk B-tree has no chunks")
	}

	sorted := slices.Clone(w.records)
	slices.SortFunc(sorted, func(a, b ChunkRecord) int {
		return slices.Compare(a.Offsets, b.Offsets)
	})
	for i := 1; i < len(sorted); i++ {
		if slices.Equal(sorted[i-1].Offsets, sorted[i].Offsets) {
			return 0, fmt.Errorf("duplicate chunk at offset %v", sorted[i].Offsets)
		}
	}

	// The right bound of the last chunk is one chunk past it in every
	// dimension.
	last := sorted[len(sorted)-1].Offsets
	upper := chunkKey{offsets: make([]uint64, len(last))}
	for i := range last {
		upper.offsets[i] = last[i] + w.chunkDims[i]
	}

	keys := make([]chunkKey, len(sorted))
	children := make([]uint64, len(sorted))
	for i, rec := range sorted {
		keys[i] = chunkKey{size: rec.Size, mask: rec.FilterMask, offsets: rec.Offsets}
		children[i] = rec.Address
	}

	for level := 0; ; level++ {
		nodes, err := w.writeLevel(writer, allocator, level, keys, children, upper)
		if err != nil {
			return 0, err
		}
		if len(nodes) == 1 {
			return nodes[0].address, nil
		}
		keys = keys[:0:0]
		children = children[:0:0]
		for _, n := range nodes {
			first := n.keys[0]
			keys = append(keys, chunkKey{offsets: first.offsets})
			children = append(children, n.address)
		}
	}
}

func (w *ChunkBTreeWriter) writeLevel(writer Writer, allocator Allocator, level int, keys []chunkKey, children []uint64, upper chunkKey) ([]*pendingNode, error) {
	capacity := 2 * w.k
	var nodes []*pendingNode
	for start := 0; start < len(children); start += capacity {
		end := min(start+capacity, len(children))
		addr, err := allocator.Allocate(w.NodeSize())
		if err != nil {
			return nil, fmt.Errorf("failed to allocate B-tree node: %w", err)
		}
		nodes = append(nodes, &pendingNode{keys: keys[start:end], children: children[start:end], address: addr})
	}

	for i, n := range nodes {
		left, right := core.UndefinedAddress, core.UndefinedAddress
		if i > 0 {
			left = nodes[i-1].address
		}
		if i+1 < len(nodes) {
			right = nodes[i+1].address
		}
		// A node's right bound is the left key of the next node at this
		// level, or the upper bound of the whole tree.
		bound := upper
		if i+1 < len(nodes) {
			bound = chunkKey{offsets: nodes[i+1].keys[0].offsets}
		}
		buf := w.encodeNode(level, n, left, right, bound)
		if err := writer.WriteAtAddress(buf, n.address); err != nil {
			return nil, fmt.Errorf("failed to write B-tree node: %w", err)
		}
	}
	return nodes, nil
}

func (w *ChunkBTreeWriter) encodeNode(level int, n *pendingNode, left, right uint64, bound chunkKey) []byte {
	rank := len(w.chunkDims)
	buf := make([]byte, 0, w.NodeSize())
	buf = append(buf, "TREE"...)
	buf = append(buf, NodeTypeChunk, uint8(level))                      //nolint:gosec // G115: depth is small
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(n.children))) //nolint:gosec // G115: at most 2K
	buf = binary.LittleEndian.AppendUint64(buf, left)
	buf = binary.LittleEndian.AppendUint64(buf, right)
	for i, child := range n.children {
		buf = n.keys[i].appendTo(buf, rank)
		buf = binary.LittleEndian.AppendUint64(buf, child)
	}
	buf = bound.appendTo(buf, rank)
	return append(buf, make([]byte, int(w.NodeSize())-len(buf))...)
}

// ReadChunkBTree walks the chunk B-tree rooted at address and returns every
// chunk record in key order. rank is the dataset rank.
func ReadChunkBTree(r io.ReaderAt, address uint64, rank int, sb *core.Superblock) ([]ChunkRecord, error) {
	var out []ChunkRecord
	if err := readChunkNode(r, address, rank, sb, maxTreeDepth, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readChunkNode(r io.ReaderAt, address uint64, rank int, sb *core.Superblock, depth int, out *[]ChunkRecord) error {
	if depth == 0 {
		return errors.New("chunk B-tree too deep")
	}
	o := int(sb.OffsetSize)
	headerSize := 8 + 2*o
	head, err := core.ReadBlock(r, address, uint64(headerSize)) //nolint:gosec // G115: small
	if err != nil {
		return utils.WrapError("chunk B-tree node", err)
	}
	if !bytes.Equal(head[:4], []byte("TREE")) {
		return fmt.Errorf("invalid B-tree signature at %d", address)
	}
	if head[4] != NodeTypeChunk {
		return fmt.Errorf("B-tree node type %d at %d, want chunk", head[4], address)
	}
	level := int(head[5])
	entries := int(binary.LittleEndian.Uint16(head[6:]))

	ks := keySize(rank)
	body, err := core.ReadBlock(r, address+uint64(headerSize), uint64(entries*(ks+o)+ks)) //nolint:gosec // G115: bounded by uint16 entries
	if err != nil {
		return utils.WrapError("chunk B-tree entries", err)
	}

	c := utils.NewCursor(body)
	for range entries {
		rec := ChunkRecord{Size: c.Uint32(), FilterMask: c.Uint32(), Offsets: make([]uint64, rank)}
		for d := range rec.Offsets {
			rec.Offsets[d] = c.Uint64()
		}
		c.Skip(8)
		rec.Address = c.Uint(o)
		if err := c.Err(); err != nil {
			return utils.WrapError("chunk B-tree key", err)
		}

		if level == 0 {
			*out = append(*out, rec)
			continue
		}
		if err := readChunkNode(r, rec.Address, rank, sb, depth-1, out); err != nil {
			return err
		}
	}
	return nil
}
