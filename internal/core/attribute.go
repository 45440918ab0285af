package core

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/scigolib/h5voxel/internal/utils"
)

// Attribute is a named value attached to an object header.
type Attribute struct {
	Name      string
	Datatype  *Datatype
	Dataspace *Dataspace
	Data      []byte
}

// Encode serializes a version 3 attribute message with an ASCII name.
func (a *Attribute) Encode() ([]byte, error) {
	if a.Name == "" {
		return nil, fmt.Errorf("empty attribute name")
	}
	dt, err := a.Datatype.Encode()
	if err != nil {
		return nil, err
	}
	ds, err := a.Dataspace.Encode()
	if err != nil {
		return nil, err
	}
	if err := a.checkDataSize(); err != nil {
		return nil, err
	}
	if len(a.Name)+1 > math.MaxUint16 {
		return nil, fmt.Errorf("attribute name too long: %d bytes", len(a.Name))
	}

	buf := []byte{3, 0}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(a.Name)+1))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(dt))) //nolint:gosec // G115: datatype messages are small
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ds))) //nolint:gosec // G115: rank is bounded
	buf = append(buf, CharsetASCII)
	buf = append(buf, a.Name...)
	buf = append(buf, 0)
	buf = append(buf, dt...)
	buf = append(buf, ds...)
	return append(buf, a.Data...), nil
}

func (a *Attribute) checkDataSize() error {
	count, err := a.Dataspace.ElementCount()
	if err != nil {
		return err
	}
	want, err := utils.SafeMultiply(count, uint64(a.Datatype.Size))
	if err != nil {
		return err
	}
	if uint64(len(a.Data)) != want {
		return fmt.Errorf("attribute %q: %d data bytes, want %d", a.Name, len(a.Data), want)
	}
	return nil
}

func pad8(n int) int {
	return (n + 7) &^ 7
}

// DecodeAttribute parses a version 1, 2 or 3 attribute message.
func DecodeAttribute(data []byte, sb *Superblock) (*Attribute, error) {
	c := utils.NewCursor(data)
	version := c.Uint8()
	if version < 1 || version > 3 {
		return nil, fmt.Errorf("%w: attribute version %d", ErrUnsupported, version)
	}
	c.Skip(1) // reserved in v1, flags after
	nameSize := int(c.Uint16())
	dtSize := int(c.Uint16())
	dsSize := int(c.Uint16())
	if version == 3 {
		c.Skip(1) // name encoding
	}

	field := func(n int) []byte {
		b := c.Bytes(n)
		if version == 1 {
			c.Skip(pad8(n) - n)
		}
		return b
	}
	name := field(nameSize)
	dtRaw := field(dtSize)
	dsRaw := field(dsSize)
	if err := c.Err(); err != nil {
		return nil, utils.WrapError("attribute header", err)
	}

	a := &Attribute{Name: trimNull(name)}
	var err error
	if a.Datatype, err = DecodeDatatype(dtRaw); err != nil {
		return nil, utils.WrapError(fmt.Sprintf("attribute %q datatype", a.Name), err)
	}
	if a.Dataspace, err = DecodeDataspace(dsRaw, int(sb.LengthSize)); err != nil {
		return nil, utils.WrapError(fmt.Sprintf("attribute %q dataspace", a.Name), err)
	}
	count, err := a.Dataspace.ElementCount()
	if err != nil {
		return nil, err
	}
	size, err := utils.SafeMultiply(count, uint64(a.Datatype.Size))
	if err != nil {
		return nil, err
	}
	if size > uint64(c.Remaining()) { //nolint:gosec // G115: Remaining is non-negative
		return nil, utils.WrapError(fmt.Sprintf("attribute %q data", a.Name), utils.ErrTruncated)
	}
	a.Data = c.Bytes(int(size)) //nolint:gosec // G115: bounded by Remaining
	return a, nil
}

func trimNull(b []byte) string {
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Value decodes the attribute into a Go value: a string for string
// attributes, int64 or float64 for scalars, and slices for simple
// dataspaces.
func (a *Attribute) Value() (any, error) {
	scalar := a.Dataspace.Type == DataspaceScalar

	switch a.Datatype.Class {
	case ClassString:
		size := int(a.Datatype.Size)
		if size == 0 {
			return "", nil
		}
		values := make([]string, 0, len(a.Data)/size)
		for off := 0; off+size <= len(a.Data); off += size {
			values = append(values, a.Datatype.DecodeString(a.Data[off:off+size]))
		}
		if scalar && len(values) == 1 {
			return values[0], nil
		}
		return values, nil

	case ClassFixedPoint:
		values, err := a.Datatype.DecodeInt64s(a.Data)
		if err != nil {
			return nil, err
		}
		if scalar && len(values) == 1 {
			return values[0], nil
		}
		return values, nil

	case ClassFloat:
		values, err := a.Datatype.DecodeFloat64s(a.Data)
		if err != nil {
			return nil, err
		}
		if scalar && len(values) == 1 {
			return values[0], nil
		}
		return values, nil

	default:
		return nil, fmt.Errorf("%w: attribute class %d", ErrDatatypeConversion, a.Datatype.Class)
	}
}
