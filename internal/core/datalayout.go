package core

import (
	"encoding/binary"
	"fmt"

	"github.com/scigolib/h5voxel/internal/utils"
)

// LayoutClass is the storage class of a dataset's raw data.
type LayoutClass uint8

// Layout classes.
const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
)

func (c LayoutClass) String() string {
	switch c {
	case LayoutCompact:
		return "compact"
	case LayoutContiguous:
		return "contiguous"
	case LayoutChunked:
		return "chunked"
	default:
		return fmt.Sprintf("layout(%d)", uint8(c))
	}
}

// DataLayout is a version 3 data layout message.
//
// For chunked storage Address is the chunk B-tree root and ChunkDims the
// chunk shape in elements; the trailing element-size dimension of the
// encoded message is kept separately in ElementSize.
type DataLayout struct {
	Class       LayoutClass
	Address     uint64
	Size        uint64 // contiguous only
	CompactData []byte
	ChunkDims   []uint64
	ElementSize uint32
}

// DecodeDataLayout parses a data layout message.
func DecodeDataLayout(data []byte, sb *Superblock) (*DataLayout, error) {
	c := utils.NewCursor(data)
	version := c.Uint8()
	if version != 3 {
		return nil, fmt.Errorf("%w: data layout version %d", ErrUnsupported, version)
	}
	l := &DataLayout{Class: LayoutClass(c.Uint8())}

	switch l.Class {
	case LayoutCompact:
		size := int(c.Uint16())
		l.CompactData = c.Bytes(size)
		l.Size = uint64(size) //nolint:gosec // G115: size is a uint16
	case LayoutContiguous:
		l.Address = c.Uint(int(sb.OffsetSize))
		l.Size = c.Uint(int(sb.LengthSize))
	case LayoutChunked:
		dimensionality := int(c.Uint8())
		if dimensionality < 2 || dimensionality > MaxRank+1 {
			return nil, fmt.Errorf("invalid chunk dimensionality %d", dimensionality)
		}
		l.Address = c.Uint(int(sb.OffsetSize))
		l.ChunkDims = make([]uint64, dimensionality-1)
		for i := range l.ChunkDims {
			l.ChunkDims[i] = uint64(c.Uint32())
		}
		l.ElementSize = c.Uint32()
	default:
		return nil, fmt.Errorf("%w: layout class %d", ErrUnsupported, l.Class)
	}
	if err := c.Err(); err != nil {
		return nil, utils.WrapError("data layout message", err)
	}
	return l, nil
}

// Encode serializes a version 3 layout message with 8-byte offsets and
// lengths.
func (l *DataLayout) Encode() ([]byte, error) {
	buf := []byte{3, uint8(l.Class)}
	switch l.Class {
	case LayoutCompact:
		if len(l.CompactData) > 0xffff {
			return nil, fmt.Errorf("compact data of %d bytes exceeds 65535", len(l.CompactData))
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(l.CompactData)))
		buf = append(buf, l.CompactData...)
	case LayoutContiguous:
		buf = binary.LittleEndian.AppendUint64(buf, l.Address)
		buf = binary.LittleEndian.AppendUint64(buf, l.Size)
	case LayoutChunked:
		if len(l.ChunkDims) == 0 || len(l.ChunkDims) > MaxRank {
			return nil, fmt.Errorf("invalid chunk rank %d", len(l.ChunkDims))
		}
		buf = append(buf, uint8(len(l.ChunkDims)+1)) //nolint:gosec // G115: rank checked
		buf = binary.LittleEndian.AppendUint64(buf, l.Address)
		for _, d := range l.ChunkDims {
			if d == 0 || d > 0xffffffff {
				return nil, fmt.Errorf("chunk dimension %d out of range", d)
			}
			buf = binary.LittleEndian.AppendUint32(buf, uint32(d))
		}
		buf = binary.LittleEndian.AppendUint32(buf, l.ElementSize)
	default:
		return nil, fmt.Errorf("%w: layout class %d", ErrUnsupported, l.Class)
	}
	return buf, nil
}
