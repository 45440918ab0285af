package h5voxel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/scigolib/h5voxel/internal/core"
)

// newAttribute converts a Go value into an attribute message.
//
// Supported values are strings, int, int64, uint64, float32 and float64
// scalars, and slices of those numeric types. Scalars are stored with a
// scalar dataspace, slices as one-dimensional arrays.
func newAttribute(name string, value any) (*core.Attribute, error) {
	if name == "" {
		return nil, fmt.Errorf("attribute name cannot be empty")
	}

	attr := &core.Attribute{Name: name, Dataspace: core.NewScalarDataspace()}
	vector := func(n int) {
		attr.Dataspace = core.NewSimpleDataspace([]uint64{uint64(n)}) //nolint:gosec // G115: slice length
	}

	switch v := value.(type) {
	case string:
		// Stored null-terminated, like h5py's fixed-length strings.
		attr.Datatype = core.FixedString(uint32(len(v) + 1)) //nolint:gosec // G115: attribute strings are short
		attr.Data = append([]byte(v), 0)
	case int:
		attr.Datatype = core.FixedPoint(8, true)
		attr.Data = binary.LittleEndian.AppendUint64(nil, uint64(int64(v))) //nolint:gosec // G115: two's complement
	case int64:
		attr.Datatype = core.FixedPoint(8, true)
		attr.Data = binary.LittleEndian.AppendUint64(nil, uint64(v)) //nolint:gosec // G115: two's complement
	case uint64:
		attr.Datatype = core.FixedPoint(8, false)
		attr.Data = binary.LittleEndian.AppendUint64(nil, v)
	case float32:
		attr.Datatype = core.FloatingPoint(4)
		attr.Data = binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))
	case float64:
		attr.Datatype = core.FloatingPoint(8)
		attr.Data = binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))
	case []int:
		attr.Datatype = core.FixedPoint(8, true)
		vector(len(v))
		for _, x := range v {
			attr.Data = binary.LittleEndian.AppendUint64(attr.Data, uint64(int64(x))) //nolint:gosec // G115: two's complement
		}
	case []int64:
		attr.Datatype = core.FixedPoint(8, true)
		vector(len(v))
		for _, x := range v {
			attr.Data = binary.LittleEndian.AppendUint64(attr.Data, uint64(x)) //nolint:gosec // G115: two's complement
		}
	case []uint64:
		attr.Datatype = core.FixedPoint(8, false)
		vector(len(v))
		for _, x := range v {
			attr.Data = binary.LittleEndian.AppendUint64(attr.Data, x)
		}
	case []float32:
		attr.Datatype = core.FloatingPoint(4)
		vector(len(v))
		for _, x := range v {
			attr.Data = binary.LittleEndian.AppendUint32(attr.Data, math.Float32bits(x))
		}
	case []float64:
		attr.Datatype = core.FloatingPoint(8)
		vector(len(v))
		for _, x := range v {
			attr.Data = binary.LittleEndian.AppendUint64(attr.Data, math.Float64bits(x))
		}
	default:
		return nil, fmt.Errorf("%w: attribute %q of type %T", ErrUnsupported, name, value)
	}

	if attr.Dataspace.Type == core.DataspaceSimple && len(attr.Data) == 0 {
		return nil, fmt.Errorf("attribute %q: empty slice", name)
	}
	return attr, nil
}
