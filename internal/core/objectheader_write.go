package core

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/scigolib/h5voxel/internal/utils"
)

// ObjectHeaderWriter builds a version 2 object header.
//
// The header is written as a single chunk without timestamps or
// attribute phase-change values:
//
//	"OHDR" | version 2 | flags | chunk 0 size | messages | checksum
//
// Each message is type(1), size(2), flags(1) followed by its data. The
// width of the chunk 0 size field is chosen from the encoded message size.
type ObjectHeaderWriter struct {
	Messages []MessageWriter
}

// MessageWriter represents a message that can be written to an object header.
type MessageWriter struct {
	Type  MessageType
	Flags uint8
	Data  []byte
}

// Add appends a message.
func (ohw *ObjectHeaderWriter) Add(t MessageType, data []byte) {
	ohw.Messages = append(ohw.Messages, MessageWriter{Type: t, Data: data})
}

func (ohw *ObjectHeaderWriter) messagesSize() uint64 {
	var n uint64
	for _, m := range ohw.Messages {
		n += 4 + uint64(len(m.Data))
	}
	return n
}

func chunkSizeFlag(n uint64) (uint8, int) {
	switch {
	case n <= math.MaxUint8:
		return 0, 1
	case n <= math.MaxUint16:
		return 1, 2
	case n <= math.MaxUint32:
		return 2, 4
	default:
		return 3, 8
	}
}

// Size returns the encoded size of the header in bytes.
func (ohw *ObjectHeaderWriter) Size() uint64 {
	body := ohw.messagesSize()
	_, width := chunkSizeFlag(body)
	return 6 + uint64(width) + body + 4 //nolint:gosec // G115: width is 1..8
}

// Encode serializes the header.
func (ohw *ObjectHeaderWriter) Encode() ([]byte, error) {
	if len(ohw.Messages) == 0 {
		return nil, fmt.Errorf("object header has no messages")
	}
	body := ohw.messagesSize()
	flags, width := chunkSizeFlag(body)

	buf := make([]byte, 0, ohw.Size())
	buf = append(buf, "OHDR"...)
	buf = append(buf, 2, flags)
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], body)
	buf = append(buf, size[:width]...)

	for _, m := range ohw.Messages {
		if len(m.Data) > math.MaxUint16 {
			return nil, fmt.Errorf("message type %d too large: %d bytes", m.Type, len(m.Data))
		}
		buf = append(buf, uint8(m.Type)) //nolint:gosec // G115: message types fit in a byte
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.Data)))
		buf = append(buf, m.Flags)
		buf = append(buf, m.Data...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, utils.Lookup3(buf))
	return buf, nil
}

// WriteTo encodes the header and writes it at address.
func (ohw *ObjectHeaderWriter) WriteTo(w io.WriterAt, address uint64) (int64, error) {
	buf, err := ohw.Encode()
	if err != nil {
		return 0, err
	}
	//nolint:gosec // G115: file addresses fit in int64
	n, err := w.WriteAt(buf, int64(address))
	if err != nil {
		return int64(n), fmt.Errorf("failed to write object header at %d: %w", address, err)
	}
	return int64(n), nil
}
