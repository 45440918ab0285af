// Package core encodes and decodes the HDF5 on-disk structures used by
// h5voxel: the superblock, object headers and the header messages that
// describe groups, links, datasets and attributes.
package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/h5voxel/internal/utils"
)

// Signature opens every HDF5 superblock.
const Signature = "\x89HDF\r\n\x1a\n"

// Superblock versions.
const (
	Version0 = 0
	Version1 = 1
	Version2 = 2
	Version3 = 3
)

// UndefinedAddress is the all-ones address HDF5 uses for "not present".
const UndefinedAddress = ^uint64(0)

// SuperblockV2Size is the encoded size of a v2 superblock with 8-byte
// offsets and lengths.
const SuperblockV2Size = 48

// DefaultChunkBTreeK is the chunk B-tree half-capacity assumed when the
// file does not override it (v2+ superblocks without an extension).
const DefaultChunkBTreeK = 32

var (
	// ErrNotHDF5 is returned when no superblock signature is found.
	ErrNotHDF5 = errors.New("not an HDF5 file")

	// ErrUnsupported is returned for valid HDF5 constructs outside the
	// subset this package understands.
	ErrUnsupported = errors.New("unsupported HDF5 feature")

	// ErrChecksum is returned when a metadata checksum does not match.
	ErrChecksum = errors.New("metadata checksum mismatch")
)

// Superblock holds the file-level metadata.
type Superblock struct {
	Version        uint8
	OffsetSize     uint8
	LengthSize     uint8
	BaseAddress    uint64
	SuperExtension uint64
	EndOfFile      uint64
	RootGroup      uint64 // object header address of the root group

	// Version 0/1 only.
	GroupLeafK      uint16
	GroupInternalK  uint16
	ChunkK          uint16
	RootSymbolTable *SymbolTable // cached root B-tree and heap, when present
}

// ReadSuperblock locates and decodes the superblock. HDF5 allows a user
// block in front of the superblock, so the signature is searched at offset
// 0 and every power of two from 512 up to the file size. The returned
// offset is where the signature was found.
func ReadSuperblock(r io.ReaderAt, fileSize int64) (*Superblock, int64, error) {
	for off := int64(0); off+8 <= fileSize; {
		sig := make([]byte, 8)
		if _, err := r.ReadAt(sig, off); err != nil {
			return nil, 0, utils.WrapError("superblock signature read failed", err)
		}
		if string(sig) == Signature {
			sb, err := decodeSuperblock(r, off, fileSize)
			return sb, off, err
		}
		if off == 0 {
			off = 512
		} else {
			off *= 2
		}
	}
	return nil, 0, ErrNotHDF5
}

func decodeSuperblock(r io.ReaderAt, off, fileSize int64) (*Superblock, error) {
	// Large enough for every supported version with 8-byte fields.
	buf := make([]byte, min(int64(128), fileSize-off))
	if _, err := r.ReadAt(buf, off); err != nil && !errors.Is(err, io.EOF) {
		return nil, utils.WrapError("superblock read failed", err)
	}
	if len(buf) < 12 {
		return nil, utils.WrapError("superblock", utils.ErrTruncated)
	}

	switch version := buf[8]; version {
	case Version0, Version1:
		return decodeSuperblockV0(buf, version)
	case Version2, Version3:
		return decodeSuperblockV2(buf, version)
	default:
		return nil, fmt.Errorf("%w: superblock version %d", ErrUnsupported, version)
	}
}

func decodeSuperblockV0(buf []byte, version uint8) (*Superblock, error) {
	c := utils.NewCursor(buf)
	c.Skip(8) // signature
	sb := &Superblock{Version: c.Uint8()}
	c.Skip(4) // free-space, root entry, reserved, shared header versions
	sb.OffsetSize = c.Uint8()
	sb.LengthSize = c.Uint8()
	c.Skip(1)
	sb.GroupLeafK = c.Uint16()
	sb.GroupInternalK = c.Uint16()
	c.Skip(4) // consistency flags
	sb.ChunkK = DefaultChunkBTreeK
	if version == Version1 {
		sb.ChunkK = c.Uint16()
		c.Skip(2)
	}
	if err := c.Err(); err != nil {
		return nil, utils.WrapError("superblock header", err)
	}
	if err := checkFieldSizes(sb); err != nil {
		return nil, err
	}

	o := int(sb.OffsetSize)
	sb.BaseAddress = c.Uint(o)
	c.Skip(o) // free-space info address
	sb.EndOfFile = c.Uint(o)
	c.Skip(o) // driver info address

	entry, err := decodeSymbolTableEntry(c, o)
	if err != nil {
		return nil, utils.WrapError("root group symbol table entry", err)
	}
	sb.RootGroup = entry.ObjectHeader
	sb.RootSymbolTable = entry.Cache
	sb.SuperExtension = UndefinedAddress
	return sb, nil
}

func decodeSuperblockV2(buf []byte, version uint8) (*Superblock, error) {
	c := utils.NewCursor(buf)
	c.Skip(8)
	sb := &Superblock{Version: c.Uint8(), ChunkK: DefaultChunkBTreeK}
	sb.OffsetSize = c.Uint8()
	sb.LengthSize = c.Uint8()
	c.Skip(1) // consistency flags
	if err := c.Err(); err != nil {
		return nil, utils.WrapError("superblock header", err)
	}
	if err := checkFieldSizes(sb); err != nil {
		return nil, err
	}

	o := int(sb.OffsetSize)
	sb.BaseAddress = c.Uint(o)
	sb.SuperExtension = c.Uint(o)
	sb.EndOfFile = c.Uint(o)
	sb.RootGroup = c.Uint(o)
	end := c.Pos()
	stored := c.Uint32()
	if err := c.Err(); err != nil {
		return nil, utils.WrapError(fmt.Sprintf("superblock v%d", version), err)
	}
	if sum := utils.Lookup3(buf[:end]); sum != stored {
		return nil, fmt.Errorf("%w: superblock stored %08x, computed %08x", ErrChecksum, stored, sum)
	}
	return sb, nil
}

func checkFieldSizes(sb *Superblock) error {
	for _, s := range []uint8{sb.OffsetSize, sb.LengthSize} {
		if s != 2 && s != 4 && s != 8 {
			return fmt.Errorf("%w: field size %d", ErrUnsupported, s)
		}
	}
	return nil
}

// WriteTo encodes a version 2 superblock with 8-byte offsets and lengths
// at offset 0. eofAddress becomes the stored end-of-file address.
func (sb *Superblock) WriteTo(w io.WriterAt, eofAddress uint64) error {
	buf, err := sb.Encode(eofAddress)
	if err != nil {
		return err
	}
	if _, err := w.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("failed to write superblock: %w", err)
	}
	return nil
}

// Encode returns the 48-byte version 2 superblock.
func (sb *Superblock) Encode(eofAddress uint64) ([]byte, error) {
	if sb.Version != Version2 {
		return nil, fmt.Errorf("%w: writing superblock version %d", ErrUnsupported, sb.Version)
	}
	if sb.OffsetSize != 8 || sb.LengthSize != 8 {
		return nil, fmt.Errorf("%w: writing offset size %d, length size %d", ErrUnsupported, sb.OffsetSize, sb.LengthSize)
	}

	buf := make([]byte, 0, SuperblockV2Size)
	buf = append(buf, Signature...)
	buf = append(buf, Version2, 8, 8, 0)
	buf = binary.LittleEndian.AppendUint64(buf, sb.BaseAddress)
	buf = binary.LittleEndian.AppendUint64(buf, sb.SuperExtension)
	buf = binary.LittleEndian.AppendUint64(buf, eofAddress)
	buf = binary.LittleEndian.AppendUint64(buf, sb.RootGroup)
	buf = binary.LittleEndian.AppendUint32(buf, utils.Lookup3(buf))
	return buf, nil
}
