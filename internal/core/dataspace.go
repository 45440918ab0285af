package core

import (
	"encoding/binary"
	"fmt"

	"github.com/scigolib/h5voxel/internal/utils"
)

// DataspaceType is the dataspace class.
type DataspaceType uint8

// Dataspace classes.
const (
	DataspaceScalar DataspaceType = 0
	DataspaceSimple DataspaceType = 1
	DataspaceNull   DataspaceType = 2
)

// MaxRank is the largest rank HDF5 allows.
const MaxRank = 32

// Dataspace describes the shape of a dataset or attribute.
type Dataspace struct {
	Type    DataspaceType
	Dims    []uint64
	MaxDims []uint64 // nil when equal to Dims
}

// NewSimpleDataspace returns a fixed-size simple dataspace.
func NewSimpleDataspace(dims []uint64) *Dataspace {
	return &Dataspace{Type: DataspaceSimple, Dims: append([]uint64(nil), dims...)}
}

// NewScalarDataspace returns a single-element dataspace.
func NewScalarDataspace() *Dataspace {
	return &Dataspace{Type: DataspaceScalar}
}

// ElementCount returns the number of elements the dataspace holds.
func (ds *Dataspace) ElementCount() (uint64, error) {
	switch ds.Type {
	case DataspaceNull:
		return 0, nil
	case DataspaceScalar:
		return 1, nil
	default:
		return utils.ElementCount(ds.Dims)
	}
}

// DecodeDataspace parses a version 1 or 2 dataspace message.
func DecodeDataspace(data []byte, lengthSize int) (*Dataspace, error) {
	c := utils.NewCursor(data)
	version := c.Uint8()
	rank := int(c.Uint8())
	flags := c.Uint8()
	ds := &Dataspace{Type: DataspaceSimple}

	switch version {
	case 1:
		c.Skip(5)
		if rank == 0 {
			ds.Type = DataspaceScalar
		}
	case 2:
		ds.Type = DataspaceType(c.Uint8())
		if ds.Type > DataspaceNull {
			return nil, fmt.Errorf("invalid dataspace type %d", ds.Type)
		}
	default:
		return nil, fmt.Errorf("%w: dataspace version %d", ErrUnsupported, version)
	}
	if rank > MaxRank {
		return nil, fmt.Errorf("dataspace rank %d exceeds %d", rank, MaxRank)
	}

	if rank > 0 {
		ds.Dims = make([]uint64, rank)
		for i := range ds.Dims {
			ds.Dims[i] = c.Uint(lengthSize)
		}
		if flags&0x01 != 0 {
			ds.MaxDims = make([]uint64, rank)
			for i := range ds.MaxDims {
				ds.MaxDims[i] = c.Uint(lengthSize)
			}
		}
	}
	if err := c.Err(); err != nil {
		return nil, utils.WrapError("dataspace message", err)
	}
	return ds, nil
}

// Encode serializes a version 2 dataspace message with 8-byte lengths.
func (ds *Dataspace) Encode() ([]byte, error) {
	if len(ds.Dims) > MaxRank {
		return nil, fmt.Errorf("dataspace rank %d exceeds %d", len(ds.Dims), MaxRank)
	}
	if ds.MaxDims != nil && len(ds.MaxDims) != len(ds.Dims) {
		return nil, fmt.Errorf("max dims rank %d does not match rank %d", len(ds.MaxDims), len(ds.Dims))
	}
	var flags uint8
	if ds.MaxDims != nil {
		flags = 0x01
	}
	buf := []byte{2, uint8(len(ds.Dims)), flags, uint8(ds.Type)} //nolint:gosec // G115: rank checked
	for _, d := range ds.Dims {
		buf = binary.LittleEndian.AppendUint64(buf, d)
	}
	for _, d := range ds.MaxDims {
		buf = binary.LittleEndian.AppendUint64(buf, d)
	}
	return buf, nil
}
