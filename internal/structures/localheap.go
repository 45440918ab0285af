package structures

import (
	"bytes"
	"fmt"
	"io"

	"github.com/scigolib/h5voxel/internal/core"
	"github.com/scigolib/h5voxel/internal/utils"
)

// LocalHeap represents an HDF5 local heap for storing short strings.
// Used by symbol tables to store object names.
//
// Header layout:
//
//	"HEAP" | version 0 | reserved(3) | data segment size (L) |
//	free list head offset (L) | data segment address (O)
type LocalHeap struct {
	Data []byte
}

// LoadLocalHeap loads a local heap and its data segment.
func LoadLocalHeap(r io.ReaderAt, address uint64, sb *core.Superblock) (*LocalHeap, error) {
	headerSize := 8 + 2*int(sb.LengthSize) + int(sb.OffsetSize)
	head, err := core.ReadBlock(r, address, uint64(headerSize)) //nolint:gosec // G115: small
	if err != nil {
		return nil, utils.WrapError("local heap header read failed", err)
	}
	if string(head[:4]) != "HEAP" {
		return nil, fmt.Errorf("invalid local heap signature at %d", address)
	}
	if head[4] != 0 {
		return nil, fmt.Errorf("%w: local heap version %d", core.ErrUnsupported, head[4])
	}

	c := utils.NewCursor(head[8:])
	size := c.Uint(int(sb.LengthSize))
	c.Skip(int(sb.LengthSize))
	dataAddr := c.Uint(int(sb.OffsetSize))
	if err := c.Err(); err != nil {
		return nil, utils.WrapError("local heap header", err)
	}

	data, err := core.ReadBlock(r, dataAddr, size)
	if err != nil {
		return nil, utils.WrapError("local heap data segment", err)
	}
	return &LocalHeap{Data: data}, nil
}

// GetString returns the null-terminated string at offset.
func (h *LocalHeap) GetString(offset uint64) (string, error) {
	if offset >= uint64(len(h.Data)) {
		return "", fmt.Errorf("local heap offset %d beyond data segment of %d bytes", offset, len(h.Data))
	}
	rest := h.Data[offset:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return "", fmt.Errorf("unterminated string at local heap offset %d", offset)
	}
	return string(rest[:end]), nil
}
