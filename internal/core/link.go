package core

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/scigolib/h5voxel/internal/utils"
)

// LinkType is the kind of a link message.
type LinkType uint8

// Link types.
const (
	LinkHard     LinkType = 0
	LinkSoft     LinkType = 1
	LinkExternal LinkType = 64
)

// Link message flag bits.
const (
	linkNameSizeMask   = 0x03
	linkCreationOrder  = 0x04
	linkTypePresent    = 0x08
	linkCharsetPresent = 0x10
)

// LinkInfo is the link info message of a new-style group.
type LinkInfo struct {
	MaxCreationIndex uint64
	FractalHeap      uint64
	NameIndex        uint64
	CreationIndex    uint64
}

// Compact reports whether the group stores its links as link messages
// in the object header rather than in a fractal heap.
func (li *LinkInfo) Compact(offsetSize int) bool {
	return utils.IsUndefined(li.FractalHeap, offsetSize)
}

// EncodeCompactLinkInfo returns a link info message for a group whose
// links are all stored in its object header.
func EncodeCompactLinkInfo() []byte {
	buf := []byte{0, 0}
	buf = binary.LittleEndian.AppendUint64(buf, UndefinedAddress)
	return binary.LittleEndian.AppendUint64(buf, UndefinedAddress)
}

// DecodeLinkInfo parses a link info message.
func DecodeLinkInfo(data []byte, sb *Superblock) (*LinkInfo, error) {
	c := utils.NewCursor(data)
	if v := c.Uint8(); v != 0 {
		return nil, fmt.Errorf("%w: link info version %d", ErrUnsupported, v)
	}
	flags := c.Uint8()
	li := &LinkInfo{CreationIndex: UndefinedAddress}
	if flags&0x01 != 0 {
		li.MaxCreationIndex = c.Uint64()
	}
	li.FractalHeap = c.Uint(int(sb.OffsetSize))
	li.NameIndex = c.Uint(int(sb.OffsetSize))
	if flags&0x02 != 0 {
		li.CreationIndex = c.Uint(int(sb.OffsetSize))
	}
	if err := c.Err(); err != nil {
		return nil, utils.WrapError("link info message", err)
	}
	return li, nil
}

// EncodeGroupInfo returns a group info message with default storage
// thresholds.
func EncodeGroupInfo() []byte {
	return []byte{0, 0}
}

// Link is a decoded link message.
type Link struct {
	Name    string
	Type    LinkType
	Address uint64 // hard links
	Target  string // soft links
}

// Encode serializes a version 1 hard link message with 8-byte addresses.
func (l *Link) Encode() ([]byte, error) {
	if l.Type != LinkHard {
		return nil, fmt.Errorf("%w: writing link type %d", ErrUnsupported, l.Type)
	}
	if l.Name == "" {
		return nil, fmt.Errorf("empty link name")
	}
	n := uint64(len(l.Name))
	var flags uint8
	var width int
	switch {
	case n <= math.MaxUint8:
		flags, width = 0, 1
	case n <= math.MaxUint16:
		flags, width = 1, 2
	default:
		flags, width = 2, 4
	}

	buf := []byte{1, flags}
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], n)
	buf = append(buf, size[:width]...)
	buf = append(buf, l.Name...)
	return binary.LittleEndian.AppendUint64(buf, l.Address), nil
}

// DecodeLink parses a link message.
func DecodeLink(data []byte, sb *Superblock) (*Link, error) {
	c := utils.NewCursor(data)
	if v := c.Uint8(); v != 1 {
		return nil, fmt.Errorf("%w: link message version %d", ErrUnsupported, v)
	}
	flags := c.Uint8()
	l := &Link{Type: LinkHard}
	if flags&linkTypePresent != 0 {
		l.Type = LinkType(c.Uint8())
	}
	if flags&linkCreationOrder != 0 {
		c.Skip(8)
	}
	if flags&linkCharsetPresent != 0 {
		c.Skip(1)
	}
	nameLen := c.Uint(1 << (flags & linkNameSizeMask))
	if nameLen > uint64(c.Remaining()) { //nolint:gosec // G115: Remaining is non-negative
		return nil, utils.WrapError("link name", utils.ErrTruncated)
	}
	l.Name = string(c.Bytes(int(nameLen))) //nolint:gosec // G115: bounded by Remaining

	switch l.Type {
	case LinkHard:
		l.Address = c.Uint(int(sb.OffsetSize))
	case LinkSoft:
		l.Target = string(c.Bytes(int(c.Uint16())))
	default:
		// External and user-defined links carry opaque data.
		c.Skip(int(c.Uint16()))
	}
	if err := c.Err(); err != nil {
		return nil, utils.WrapError("link message", err)
	}
	return l, nil
}

// SymbolTable locates the B-tree and local heap of an old-style group.
type SymbolTable struct {
	BTree     uint64
	LocalHeap uint64
}

// DecodeSymbolTable parses a symbol table message.
func DecodeSymbolTable(data []byte, sb *Superblock) (*SymbolTable, error) {
	c := utils.NewCursor(data)
	st := &SymbolTable{
		BTree:     c.Uint(int(sb.OffsetSize)),
		LocalHeap: c.Uint(int(sb.OffsetSize)),
	}
	if err := c.Err(); err != nil {
		return nil, utils.WrapError("symbol table message", err)
	}
	return st, nil
}

// SymbolTableEntry is one entry of a symbol table node or the root entry
// of a version 0/1 superblock.
type SymbolTableEntry struct {
	NameOffset   uint64
	ObjectHeader uint64
	Cache        *SymbolTable // set when the entry caches a group's symbol table
}

// SymbolTableEntrySize returns the encoded size of an entry.
func SymbolTableEntrySize(offsetSize int) int {
	return 2*offsetSize + 4 + 4 + 16
}

// DecodeSymbolTableEntry reads one entry from c.
func DecodeSymbolTableEntry(c *utils.Cursor, offsetSize int) (*SymbolTableEntry, error) {
	return decodeSymbolTableEntry(c, offsetSize)
}

func decodeSymbolTableEntry(c *utils.Cursor, offsetSize int) (*SymbolTableEntry, error) {
	e := &SymbolTableEntry{
		NameOffset:   c.Uint(offsetSize),
		ObjectHeader: c.Uint(offsetSize),
	}
	cacheType := c.Uint32()
	c.Skip(4)
	scratch := utils.NewCursor(c.Bytes(16))
	if cacheType == 1 {
		e.Cache = &SymbolTable{
			BTree:     scratch.Uint(offsetSize),
			LocalHeap: scratch.Uint(offsetSize),
		}
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return e, nil
}
