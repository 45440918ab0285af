package h5voxel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/scigolib/h5voxel/internal/core"
)

// Datatype represents the element type of a dataset.
type Datatype int

const (
	// Int8 represents 8-bit signed integer type.
	Int8 Datatype = iota
	// Int16 represents 16-bit signed integer type.
	Int16
	// Int32 represents 32-bit signed integer type.
	Int32
	// Int64 represents 64-bit signed integer type.
	Int64
	// Uint8 represents 8-bit unsigned integer type.
	Uint8
	// Uint16 represents 16-bit unsigned integer type.
	Uint16
	// Uint32 represents 32-bit unsigned integer type.
	Uint32
	// Uint64 represents 64-bit unsigned integer type.
	Uint64
	// Float32 represents 32-bit floating point type.
	Float32
	// Float64 represents 64-bit floating point type.
	Float64
)

// NativeInt is the platform's native signed integer, which numpy and
// h5py map to int64 on 64-bit hosts.
const NativeInt = Int64

var datatypeNames = map[Datatype]string{
	Int8: "int8", Int16: "int16", Int32: "int32", Int64: "int64",
	Uint8: "uint8", Uint16: "uint16", Uint32: "uint32", Uint64: "uint64",
	Float32: "float32", Float64: "float64",
}

func (dt Datatype) String() string {
	if name, ok := datatypeNames[dt]; ok {
		return name
	}
	return fmt.Sprintf("Datatype(%d)", int(dt))
}

// ParseDatatype maps a numpy-style name ("int64", "float32", ...) to a
// Datatype.
func ParseDatatype(name string) (Datatype, error) {
	for dt, n := range datatypeNames {
		if n == name {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("%w: datatype %q", ErrUnsupported, name)
}

// Size returns the element size in bytes.
func (dt Datatype) Size() int {
	switch dt {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

func (dt Datatype) core() (*core.Datatype, error) {
	switch dt {
	case Int8, Int16, Int32, Int64:
		return core.FixedPoint(uint32(dt.Size()), true), nil //nolint:gosec // G115: size is 1..8
	case Uint8, Uint16, Uint32, Uint64:
		return core.FixedPoint(uint32(dt.Size()), false), nil //nolint:gosec // G115: size is 1..8
	case Float32, Float64:
		return core.FloatingPoint(uint32(dt.Size())), nil //nolint:gosec // G115: size is 4 or 8
	default:
		return nil, fmt.Errorf("%w: datatype %d", ErrUnsupported, int(dt))
	}
}

// datatypeFromCore maps a stored numeric datatype back to a Datatype.
func datatypeFromCore(ct *core.Datatype) (Datatype, error) {
	for _, dt := range []Datatype{Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64, Float32, Float64} {
		want, _ := dt.core()
		if want.Class == ct.Class && want.Size == ct.Size && want.Signed == ct.Signed {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("%w: dataset datatype %s", ErrUnsupported, ct)
}

// encodeElements converts a typed slice into little-endian element bytes
// and returns the element count. The slice type must match dt exactly.
func encodeElements(dt Datatype, data any) ([]byte, int, error) {
	if !matches(dt, data) {
		return nil, 0, fmt.Errorf("%w: %T for %s dataset", ErrDatatypeMismatch, data, dt)
	}

	n := sliceLen(data)
	buf := make([]byte, 0, n*dt.Size())
	switch v := data.(type) {
	case []int8:
		for _, x := range v {
			buf = append(buf, byte(x))
		}
	case []uint8:
		buf = append(buf, v...)
	case []int16:
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(x)) //nolint:gosec // G115: two's complement
		}
	case []uint16:
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint16(buf, x)
		}
	case []int32:
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(x)) //nolint:gosec // G115: two's complement
		}
	case []uint32:
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint32(buf, x)
		}
	case []int64:
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(x)) //nolint:gosec // G115: two's complement
		}
	case []uint64:
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint64(buf, x)
		}
	case []float32:
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
		}
	case []float64:
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
		}
	}
	return buf, n, nil
}

func sliceLen(data any) int {
	switch v := data.(type) {
	case []int8:
		return len(v)
	case []uint8:
		return len(v)
	case []int16:
		return len(v)
	case []uint16:
		return len(v)
	case []int32:
		return len(v)
	case []uint32:
		return len(v)
	case []int64:
		return len(v)
	case []uint64:
		return len(v)
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	default:
		return -1
	}
}

func matches(dt Datatype, data any) bool {
	switch data.(type) {
	case []int8:
		return dt == Int8
	case []uint8:
		return dt == Uint8
	case []int16:
		return dt == Int16
	case []uint16:
		return dt == Uint16
	case []int32:
		return dt == Int32
	case []uint32:
		return dt == Uint32
	case []int64:
		return dt == Int64
	case []uint64:
		return dt == Uint64
	case []float32:
		return dt == Float32
	case []float64:
		return dt == Float64
	default:
		return false
	}
}
