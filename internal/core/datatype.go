package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/scigolib/h5voxel/internal/utils"
)

// DatatypeClass is the HDF5 datatype class.
type DatatypeClass uint8

// Datatype classes understood by this package.
const (
	ClassFixedPoint DatatypeClass = 0
	ClassFloat      DatatypeClass = 1
	ClassString     DatatypeClass = 3
)

// String padding types.
const (
	PadNullTerm  uint8 = 0
	PadNullPad   uint8 = 1
	PadSpacePad  uint8 = 2
	CharsetASCII uint8 = 0
	CharsetUTF8  uint8 = 1
)

// ErrDatatypeConversion is returned when stored elements cannot be
// converted to the requested Go type.
var ErrDatatypeConversion = errors.New("datatype conversion not supported")

// Datatype describes the element type of a dataset or attribute.
type Datatype struct {
	Class     DatatypeClass
	Version   uint8
	Size      uint32
	BigEndian bool
	Signed    bool  // fixed point only
	Padding   uint8 // string only
	Charset   uint8 // string only
}

// FixedPoint returns a little-endian integer datatype of size bytes.
func FixedPoint(size uint32, signed bool) *Datatype {
	return &Datatype{Class: ClassFixedPoint, Version: 1, Size: size, Signed: signed}
}

// FloatingPoint returns a little-endian IEEE 754 datatype of 4 or 8 bytes.
func FloatingPoint(size uint32) *Datatype {
	return &Datatype{Class: ClassFloat, Version: 1, Size: size}
}

// FixedString returns a null-terminated ASCII string datatype.
func FixedString(size uint32) *Datatype {
	return &Datatype{Class: ClassString, Version: 1, Size: size}
}

// String names the datatype the way numpy would.
func (dt *Datatype) String() string {
	switch dt.Class {
	case ClassFixedPoint:
		if dt.Signed {
			return fmt.Sprintf("int%d", dt.Size*8)
		}
		return fmt.Sprintf("uint%d", dt.Size*8)
	case ClassFloat:
		return fmt.Sprintf("float%d", dt.Size*8)
	case ClassString:
		return fmt.Sprintf("string%d", dt.Size)
	default:
		return fmt.Sprintf("class%d(%d)", dt.Class, dt.Size)
	}
}

// Equal reports whether two datatypes describe the same element encoding.
func (dt *Datatype) Equal(other *Datatype) bool {
	return dt.Class == other.Class && dt.Size == other.Size && dt.BigEndian == other.BigEndian &&
		dt.Signed == other.Signed && dt.Padding == other.Padding && dt.Charset == other.Charset
}

// DecodeDatatype parses a datatype message.
func DecodeDatatype(data []byte) (*Datatype, error) {
	c := utils.NewCursor(data)
	classVersion := c.Uint8()
	bits := c.Bytes(3)
	size := c.Uint32()
	if err := c.Err(); err != nil {
		return nil, utils.WrapError("datatype message", err)
	}

	dt := &Datatype{
		Class:   DatatypeClass(classVersion & 0x0f),
		Version: classVersion >> 4,
		Size:    size,
	}
	switch dt.Class {
	case ClassFixedPoint:
		dt.BigEndian = bits[0]&0x01 != 0
		dt.Signed = bits[0]&0x08 != 0
		if size != 1 && size != 2 && size != 4 && size != 8 {
			return nil, fmt.Errorf("%w: %d-byte integer", ErrUnsupported, size)
		}
	case ClassFloat:
		// Bit 6 together with bit 0 marks VAX order.
		if bits[0]&0x40 != 0 {
			return nil, fmt.Errorf("%w: VAX floating point", ErrUnsupported)
		}
		dt.BigEndian = bits[0]&0x01 != 0
		if size != 4 && size != 8 {
			return nil, fmt.Errorf("%w: %d-byte float", ErrUnsupported, size)
		}
	case ClassString:
		dt.Padding = bits[0] & 0x0f
		dt.Charset = bits[0] >> 4
	default:
		return nil, fmt.Errorf("%w: datatype class %d", ErrUnsupported, dt.Class)
	}
	return dt, nil
}

// Encode serializes the datatype message.
func (dt *Datatype) Encode() ([]byte, error) {
	header := func(class DatatypeClass, b0, b1 uint8) []byte {
		buf := []byte{1<<4 | uint8(class), b0, b1, 0}
		return binary.LittleEndian.AppendUint32(buf, dt.Size)
	}

	switch dt.Class {
	case ClassFixedPoint:
		var b0 uint8
		if dt.BigEndian {
			b0 |= 0x01
		}
		if dt.Signed {
			b0 |= 0x08
		}
		buf := header(ClassFixedPoint, b0, 0)
		buf = binary.LittleEndian.AppendUint16(buf, 0)
		return binary.LittleEndian.AppendUint16(buf, uint16(dt.Size*8)), nil //nolint:gosec // G115: size is 1..8

	case ClassFloat:
		// Implied leading mantissa bit.
		b0 := uint8(0x20)
		if dt.BigEndian {
			b0 |= 0x01
		}
		var props []byte
		switch dt.Size {
		case 4:
			props = floatProps(32, 23, 8, 0, 23, 127)
		case 8:
			props = floatProps(64, 52, 11, 0, 52, 1023)
		default:
			return nil, fmt.Errorf("%w: %d-byte float", ErrUnsupported, dt.Size)
		}
		return append(header(ClassFloat, b0, uint8(dt.Size*8-1)), props...), nil //nolint:gosec // G115: size is 4 or 8

	case ClassString:
		return header(ClassString, dt.Padding&0x0f|dt.Charset<<4, 0), nil

	default:
		return nil, fmt.Errorf("%w: datatype class %d", ErrUnsupported, dt.Class)
	}
}

func floatProps(precision uint16, expLoc, expSize, mantLoc, mantSize uint8, bias uint32) []byte {
	buf := binary.LittleEndian.AppendUint16(nil, 0)
	buf = binary.LittleEndian.AppendUint16(buf, precision)
	buf = append(buf, expLoc, expSize, mantLoc, mantSize)
	return binary.LittleEndian.AppendUint32(buf, bias)
}

func (dt *Datatype) order() binary.ByteOrder {
	if dt.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (dt *Datatype) checkLength(raw []byte) (int, error) {
	if dt.Size == 0 || len(raw)%int(dt.Size) != 0 {
		return 0, fmt.Errorf("buffer of %d bytes is not a multiple of element size %d", len(raw), dt.Size)
	}
	return len(raw) / int(dt.Size), nil
}

// DecodeInt64s converts raw integer elements to int64. Unsigned 64-bit
// values above math.MaxInt64 are rejected.
func (dt *Datatype) DecodeInt64s(raw []byte) ([]int64, error) {
	if dt.Class != ClassFixedPoint {
		return nil, fmt.Errorf("%w: %s to int64", ErrDatatypeConversion, dt)
	}
	n, err := dt.checkLength(raw)
	if err != nil {
		return nil, err
	}
	order := dt.order()
	out := make([]int64, n)
	for i := range out {
		b := raw[i*int(dt.Size) : (i+1)*int(dt.Size)]
		switch {
		case dt.Size == 1 && dt.Signed:
			out[i] = int64(int8(b[0]))
		case dt.Size == 1:
			out[i] = int64(b[0])
		case dt.Size == 2 && dt.Signed:
			out[i] = int64(int16(order.Uint16(b))) //nolint:gosec // G115: reinterpretation
		case dt.Size == 2:
			out[i] = int64(order.Uint16(b))
		case dt.Size == 4 && dt.Signed:
			out[i] = int64(int32(order.Uint32(b))) //nolint:gosec // G115: reinterpretation
		case dt.Size == 4:
			out[i] = int64(order.Uint32(b))
		case dt.Signed:
			out[i] = int64(order.Uint64(b)) //nolint:gosec // G115: reinterpretation
		default:
			v := order.Uint64(b)
			if v > math.MaxInt64 {
				return nil, fmt.Errorf("%w: uint64 value %d overflows int64", ErrDatatypeConversion, v)
			}
			out[i] = int64(v)
		}
	}
	return out, nil
}

// DecodeFloat64s converts raw numeric elements to float64. Integers are
// converted by value.
func (dt *Datatype) DecodeFloat64s(raw []byte) ([]float64, error) {
	switch dt.Class {
	case ClassFloat:
		n, err := dt.checkLength(raw)
		if err != nil {
			return nil, err
		}
		order := dt.order()
		out := make([]float64, n)
		for i := range out {
			if dt.Size == 4 {
				out[i] = float64(math.Float32frombits(order.Uint32(raw[i*4:])))
			} else {
				out[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
			}
		}
		return out, nil
	case ClassFixedPoint:
		if dt.Size == 8 && !dt.Signed {
			n, err := dt.checkLength(raw)
			if err != nil {
				return nil, err
			}
			out := make([]float64, n)
			for i := range out {
				out[i] = float64(dt.order().Uint64(raw[i*8:]))
			}
			return out, nil
		}
		ints, err := dt.DecodeInt64s(raw)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(ints))
		for i, v := range ints {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s to float64", ErrDatatypeConversion, dt)
	}
}

// DecodeString trims a fixed-length string element according to its
// padding type.
func (dt *Datatype) DecodeString(raw []byte) string {
	switch dt.Padding {
	case PadSpacePad:
		end := len(raw)
		for end > 0 && raw[end-1] == ' ' {
			end--
		}
		return string(raw[:end])
	default:
		for i, b := range raw {
			if b == 0 {
				return string(raw[:i])
			}
		}
		return string(raw)
	}
}
