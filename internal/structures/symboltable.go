package structures

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/h5voxel/internal/core"
	"github.com/scigolib/h5voxel/internal/utils"
)

// GroupEntry is one named member of an old-style group.
type GroupEntry struct {
	Name         string
	ObjectHeader uint64
}

// ReadSymbolTableGroup lists the members of a group stored as a symbol
// table: a group B-tree (node type 0) whose leaves point at symbol table
// nodes, with names held in the local heap.
func ReadSymbolTableGroup(r io.ReaderAt, st *core.SymbolTable, sb *core.Superblock) ([]GroupEntry, error) {
	heap, err := LoadLocalHeap(r, st.LocalHeap, sb)
	if err != nil {
		return nil, err
	}
	var nodes []uint64
	if err := collectSymbolNodes(r, st.BTree, sb, maxTreeDepth, &nodes); err != nil {
		return nil, err
	}

	var entries []GroupEntry
	for _, addr := range nodes {
		syms, err := readSymbolNode(r, addr, sb)
		if err != nil {
			return nil, err
		}
		for _, s := range syms {
			name, err := heap.GetString(s.NameOffset)
			if err != nil {
				return nil, err
			}
			entries = append(entries, GroupEntry{Name: name, ObjectHeader: s.ObjectHeader})
		}
	}
	return entries, nil
}

// collectSymbolNodes gathers the symbol table node addresses of a group
// B-tree in key order.
func collectSymbolNodes(r io.ReaderAt, address uint64, sb *core.Superblock, depth int, out *[]uint64) error {
	if depth == 0 {
		return errors.New("group B-tree too deep")
	}
	o, l := int(sb.OffsetSize), int(sb.LengthSize)
	headerSize := 8 + 2*o
	head, err := core.ReadBlock(r, address, uint64(headerSize)) //nolint:gosec // G115: small
	if err != nil {
		return utils.WrapError("group B-tree node", err)
	}
	if string(head[:4]) != "TREE" {
		return fmt.Errorf("invalid B-tree signature at %d", address)
	}
	if head[4] != NodeTypeGroup {
		return fmt.Errorf("B-tree node type %d at %d, want group", head[4], address)
	}
	level := int(head[5])
	entries := int(binary.LittleEndian.Uint16(head[6:]))

	body, err := core.ReadBlock(r, address+uint64(headerSize), uint64(entries*(l+o)+l)) //nolint:gosec // G115: bounded
	if err != nil {
		return utils.WrapError("group B-tree entries", err)
	}
	c := utils.NewCursor(body)
	for range entries {
		c.Skip(l)
		child := c.Uint(o)
		if err := c.Err(); err != nil {
			return err
		}
		if level == 0 {
			*out = append(*out, child)
			continue
		}
		if err := collectSymbolNodes(r, child, sb, depth-1, out); err != nil {
			return err
		}
	}
	return nil
}

// readSymbolNode decodes an "SNOD" symbol table node.
func readSymbolNode(r io.ReaderAt, address uint64, sb *core.Superblock) ([]*core.SymbolTableEntry, error) {
	head, err := core.ReadBlock(r, address, 8)
	if err != nil {
		return nil, utils.WrapError("symbol table node", err)
	}
	if string(head[:4]) != "SNOD" {
		return nil, fmt.Errorf("invalid symbol table node signature at %d", address)
	}
	if head[4] != 1 {
		return nil, fmt.Errorf("%w: symbol table node version %d", core.ErrUnsupported, head[4])
	}
	count := int(binary.LittleEndian.Uint16(head[6:]))

	o := int(sb.OffsetSize)
	body, err := core.ReadBlock(r, address+8, uint64(count*core.SymbolTableEntrySize(o))) //nolint:gosec // G115: bounded
	if err != nil {
		return nil, utils.WrapError("symbol table entries", err)
	}
	c := utils.NewCursor(body)
	entries := make([]*core.SymbolTableEntry, 0, count)
	for range count {
		e, err := core.DecodeSymbolTableEntry(c, o)
		if err != nil {
			return nil, utils.WrapError("symbol table entry", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
