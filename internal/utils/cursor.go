package utils

import (
	"encoding/binary"
	"fmt"
)

// Cursor decodes little-endian fields from an in-memory block.
//
// The first short read sets a sticky error and every later read returns
// zero values, so callers check Err once after decoding a structure.
type Cursor struct {
	buf []byte
	pos int
	err error
}

// NewCursor returns a Cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

func (c *Cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.pos+n > len(c.buf) {
		c.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, c.pos, len(c.buf)-c.pos)
		return nil
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b
}

// Uint8 reads one byte.
func (c *Cursor) Uint8() uint8 {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint16 reads a little-endian uint16.
func (c *Cursor) Uint16() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Uint32 reads a little-endian uint32.
func (c *Cursor) Uint32() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Uint64 reads a little-endian uint64.
func (c *Cursor) Uint64() uint64 {
	b := c.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Uint reads an unsigned little-endian integer of 1..8 bytes. HDF5 sizes
// offsets and lengths per file, so most address fields go through here.
func (c *Cursor) Uint(size int) uint64 {
	if size < 1 || size > 8 {
		if c.err == nil {
			c.err = fmt.Errorf("invalid field size %d", size)
		}
		return 0
	}
	b := c.take(size)
	if b == nil {
		return 0
	}
	return DecodeUint(b)
}

// Bytes returns the next n bytes without copying.
func (c *Cursor) Bytes(n int) []byte {
	return c.take(n)
}

// Skip advances over n bytes.
func (c *Cursor) Skip(n int) {
	c.take(n)
}

// Pos returns the current offset into the block.
func (c *Cursor) Pos() int {
	return c.pos
}

// Remaining returns the number of undecoded bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// Err returns the first decoding error, if any.
func (c *Cursor) Err() error {
	return c.err
}

// DecodeUint decodes a little-endian unsigned integer of len(b) bytes.
func DecodeUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// IsUndefined reports whether addr is the all-ones "undefined address"
// for the given offset size.
func IsUndefined(addr uint64, offsetSize int) bool {
	if offsetSize >= 8 {
		return addr == ^uint64(0)
	}
	return addr == (uint64(1)<<(8*uint(offsetSize)))-1 //nolint:gosec // G115: offsetSize is 1..7 here
}
