package core

import (
	"encoding/binary"
	"fmt"

	"github.com/scigolib/h5voxel/internal/utils"
)

// Space allocation times.
const (
	AllocEarly       uint8 = 1
	AllocLate        uint8 = 2
	AllocIncremental uint8 = 3
)

// Fill value write times.
const (
	FillOnAlloc uint8 = 0
	FillNever   uint8 = 1
	FillIfSet   uint8 = 2
)

// FillValue is the fill value message of a dataset.
type FillValue struct {
	AllocTime uint8
	FillTime  uint8
	Defined   bool
	Value     []byte
}

// NewChunkedFillValue returns the defaults HDF5 uses for chunked datasets:
// incremental allocation, fill only when a value is set, no value.
func NewChunkedFillValue() *FillValue {
	return &FillValue{AllocTime: AllocIncremental, FillTime: FillIfSet}
}

// Encode serializes a version 3 fill value message.
func (fv *FillValue) Encode() []byte {
	flags := fv.AllocTime&0x03 | (fv.FillTime&0x03)<<2
	if !fv.Defined {
		return []byte{3, flags}
	}
	flags |= 0x20
	buf := []byte{3, flags}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(fv.Value))) //nolint:gosec // G115: fill values are one element
	return append(buf, fv.Value...)
}

// DecodeFillValue parses a version 1, 2 or 3 fill value message.
func DecodeFillValue(data []byte) (*FillValue, error) {
	c := utils.NewCursor(data)
	version := c.Uint8()
	fv := &FillValue{}

	switch version {
	case 1, 2:
		fv.AllocTime = c.Uint8()
		fv.FillTime = c.Uint8()
		fv.Defined = c.Uint8() != 0
		if version == 1 || fv.Defined {
			size := int(c.Uint32())
			fv.Value = c.Bytes(size)
			fv.Defined = size > 0
		}
	case 3:
		flags := c.Uint8()
		fv.AllocTime = flags & 0x03
		fv.FillTime = (flags >> 2) & 0x03
		if flags&0x20 != 0 {
			fv.Defined = true
			size := int(c.Uint32())
			fv.Value = c.Bytes(size)
		}
	default:
		return nil, fmt.Errorf("%w: fill value version %d", ErrUnsupported, version)
	}
	if err := c.Err(); err != nil {
		return nil, utils.WrapError("fill value message", err)
	}
	return fv, nil
}
