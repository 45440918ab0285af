package filter

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/scigolib/h5voxel/internal/utils"
)

// EncodeMessage serializes the pipeline as a version 2 filter pipeline
// message. Names are only stored for filter ids of 256 and above, so the
// standard filters encode without them.
func (p *Pipeline) EncodeMessage() ([]byte, error) {
	if p.Empty() {
		return nil, fmt.Errorf("empty filter pipeline")
	}
	if p.Len() > 32 {
		return nil, fmt.Errorf("pipeline has %d filters, at most 32 allowed", p.Len())
	}

	buf := []byte{2, byte(p.Len())}
	for _, s := range p.Specs() {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s.ID))
		withName := s.ID >= 256 && s.Name != ""
		if s.ID >= 256 {
			nameLen := 0
			if withName {
				nameLen = len(s.Name) + 1
			}
			buf = binary.LittleEndian.AppendUint16(buf, uint16(nameLen)) //nolint:gosec // G115: names are short
		}
		buf = binary.LittleEndian.AppendUint16(buf, s.Flags)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s.ClientData))) //nolint:gosec // G115: few cd_values
		if withName {
			buf = append(buf, s.Name...)
			buf = append(buf, 0)
		}
		for _, v := range s.ClientData {
			buf = binary.LittleEndian.AppendUint32(buf, v)
		}
	}
	return buf, nil
}

// DecodeMessage parses a version 1 or 2 filter pipeline message.
func DecodeMessage(data []byte) ([]Spec, error) {
	c := utils.NewCursor(data)
	version := c.Uint8()
	count := int(c.Uint8())
	if err := c.Err(); err != nil {
		return nil, utils.WrapError("filter pipeline header", err)
	}

	switch version {
	case 1:
		c.Skip(6)
	case 2:
	default:
		return nil, fmt.Errorf("%w: filter pipeline message version %d", ErrUnsupported, version)
	}

	specs := make([]Spec, 0, count)
	for i := 0; i < count; i++ {
		var s Spec
		s.ID = ID(c.Uint16())

		nameLen := 0
		if version == 1 || s.ID >= 256 {
			nameLen = int(c.Uint16())
		}
		s.Flags = c.Uint16()
		ncd := int(c.Uint16())

		if nameLen > 0 {
			stored := nameLen
			if version == 1 {
				stored = (nameLen + 7) &^ 7
			}
			s.Name = strings.TrimRight(string(c.Bytes(stored)), "\x00")
		}

		if ncd > 0 {
			s.ClientData = make([]uint32, ncd)
			for j := range s.ClientData {
				s.ClientData[j] = c.Uint32()
			}
		}
		if version == 1 && ncd%2 != 0 {
			c.Skip(4)
		}

		if err := c.Err(); err != nil {
			return nil, utils.WrapError(fmt.Sprintf("filter %d", i), err)
		}
		specs = append(specs, s)
	}
	return specs, nil
}
