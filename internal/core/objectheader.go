package core

import (
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/h5voxel/internal/utils"
)

// MessageType identifies the type of message in an object header.
type MessageType uint16

// Message type constants identify different types of header messages.
const (
	MsgNil            MessageType = 0
	MsgDataspace      MessageType = 1
	MsgLinkInfo       MessageType = 2
	MsgDatatype       MessageType = 3
	MsgFillValueOld   MessageType = 4
	MsgFillValue      MessageType = 5
	MsgLink           MessageType = 6
	MsgDataLayout     MessageType = 8
	MsgGroupInfo      MessageType = 10
	MsgFilterPipeline MessageType = 11
	MsgAttribute      MessageType = 12
	MsgContinuation   MessageType = 16
	MsgSymbolTable    MessageType = 17
)

// Object header v2 flag bits.
const (
	ohdrChunkSizeMask  = 0x03
	ohdrCreationOrder  = 0x04
	ohdrPhaseChange    = 0x10
	ohdrTimesPresent   = 0x20
	ohdrKnownFlagsMask = 0x3f
)

// Continuation chains longer than this are treated as corrupt.
const maxContinuations = 1024

// ObjectHeader is a decoded object header: its version and the messages of
// every chunk, in file order, with continuation messages already followed.
type ObjectHeader struct {
	Version  uint8
	Address  uint64
	Messages []HeaderMessage
}

// HeaderMessage is one raw header message.
type HeaderMessage struct {
	Type  MessageType
	Flags uint8
	Data  []byte
}

// Find returns the first message of type t, or nil.
func (h *ObjectHeader) Find(t MessageType) *HeaderMessage {
	for i := range h.Messages {
		if h.Messages[i].Type == t {
			return &h.Messages[i]
		}
	}
	return nil
}

// All returns every message of type t.
func (h *ObjectHeader) All(t MessageType) []HeaderMessage {
	var out []HeaderMessage
	for _, m := range h.Messages {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// IsGroup reports whether the header describes a group.
func (h *ObjectHeader) IsGroup() bool {
	return h.Find(MsgLinkInfo) != nil || h.Find(MsgSymbolTable) != nil || h.Find(MsgLink) != nil
}

// IsDataset reports whether the header describes a dataset.
func (h *ObjectHeader) IsDataset() bool {
	return h.Find(MsgDataLayout) != nil && h.Find(MsgDatatype) != nil
}

type continuation struct {
	address uint64
	length  uint64
}

// ReadObjectHeader reads and parses an object header at address.
// Version 1 and version 2 headers are supported.
func ReadObjectHeader(r io.ReaderAt, address uint64, sb *Superblock) (*ObjectHeader, error) {
	prefix, err := readAt(r, address, 6)
	if err != nil {
		return nil, utils.WrapError("object header read failed", err)
	}

	switch {
	case string(prefix[:4]) == "OHDR":
		return readObjectHeaderV2(r, address, sb)
	case prefix[0] == 1:
		return readObjectHeaderV1(r, address, sb)
	default:
		return nil, fmt.Errorf("invalid object header signature at %d: % x", address, prefix[:4])
	}
}

func readObjectHeaderV2(r io.ReaderAt, address uint64, sb *Superblock) (*ObjectHeader, error) {
	// Longest fixed prefix: signature, version, flags, 4 timestamps,
	// 2 phase-change values, 8-byte chunk size.
	head, err := readUpTo(r, address, 4+1+1+16+4+8)
	if err != nil {
		return nil, utils.WrapError("v2 object header prefix", err)
	}
	c := utils.NewCursor(head)
	c.Skip(4)
	version := c.Uint8()
	flags := c.Uint8()
	if version != 2 {
		return nil, fmt.Errorf("%w: object header version %d", ErrUnsupported, version)
	}
	if flags&^ohdrKnownFlagsMask != 0 {
		return nil, fmt.Errorf("invalid object header flags 0x%02x", flags)
	}
	if flags&ohdrTimesPresent != 0 {
		c.Skip(16)
	}
	if flags&ohdrPhaseChange != 0 {
		c.Skip(4)
	}
	chunk0Size := c.Uint(1 << (flags & ohdrChunkSizeMask))
	prefixLen := c.Pos()
	if err := c.Err(); err != nil {
		return nil, err
	}

	chunk, err := readAt(r, address, uint64(prefixLen)+chunk0Size+4) //nolint:gosec // G115: prefix is tiny
	if err != nil {
		return nil, utils.WrapError("v2 object header chunk 0", err)
	}
	if err := verifyChecksum(chunk, "object header"); err != nil {
		return nil, err
	}

	h := &ObjectHeader{Version: 2, Address: address}
	pending, err := h.decodeV2Messages(chunk[prefixLen:len(chunk)-4], flags, sb)
	if err != nil {
		return nil, err
	}

	for n := 0; len(pending) > 0; n++ {
		if n >= maxContinuations {
			return nil, errors.New("object header continuation chain too long")
		}
		cont := pending[0]
		pending = pending[1:]

		block, err := readAt(r, cont.address, cont.length)
		if err != nil {
			return nil, utils.WrapError("object header continuation", err)
		}
		if len(block) < 8 || string(block[:4]) != "OCHK" {
			return nil, fmt.Errorf("invalid continuation block signature at %d", cont.address)
		}
		if err := verifyChecksum(block, "continuation block"); err != nil {
			return nil, err
		}
		more, err := h.decodeV2Messages(block[4:len(block)-4], flags, sb)
		if err != nil {
			return nil, err
		}
		pending = append(pending, more...)
	}
	return h, nil
}

func (h *ObjectHeader) decodeV2Messages(buf []byte, flags uint8, sb *Superblock) ([]continuation, error) {
	headerLen := 4
	if flags&ohdrCreationOrder != 0 {
		headerLen = 6
	}

	var conts []continuation
	c := utils.NewCursor(buf)
	// Fewer bytes than a message header is a gap, not a message.
	for c.Remaining() >= headerLen {
		msgType := MessageType(c.Uint8())
		size := int(c.Uint16())
		msgFlags := c.Uint8()
		if flags&ohdrCreationOrder != 0 {
			c.Skip(2)
		}
		data := c.Bytes(size)
		if err := c.Err(); err != nil {
			return nil, utils.WrapError(fmt.Sprintf("header message type %d", msgType), err)
		}

		if msgType == MsgContinuation {
			cont, err := decodeContinuation(data, sb)
			if err != nil {
				return nil, err
			}
			conts = append(conts, cont)
			continue
		}
		h.Messages = append(h.Messages, HeaderMessage{Type: msgType, Flags: msgFlags, Data: data})
	}
	return conts, nil
}

func readObjectHeaderV1(r io.ReaderAt, address uint64, sb *Superblock) (*ObjectHeader, error) {
	head, err := readAt(r, address, 16)
	if err != nil {
		return nil, utils.WrapError("v1 object header prefix", err)
	}
	c := utils.NewCursor(head)
	c.Skip(2) // version, reserved
	remaining := int(c.Uint16())
	c.Skip(4) // reference count
	size := uint64(c.Uint32())

	h := &ObjectHeader{Version: 1, Address: address}
	// Messages start 8-byte aligned, right after the 12-byte prefix.
	pending := []continuation{{address: address + 16, length: size}}
	for n := 0; len(pending) > 0 && remaining > 0; n++ {
		if n > maxContinuations {
			return nil, errors.New("object header continuation chain too long")
		}
		cont := pending[0]
		pending = pending[1:]

		block, err := readAt(r, cont.address, cont.length)
		if err != nil {
			return nil, utils.WrapError("v1 object header block", err)
		}
		bc := utils.NewCursor(block)
		for bc.Remaining() >= 8 && remaining > 0 {
			msgType := MessageType(bc.Uint16())
			msgSize := int(bc.Uint16())
			msgFlags := bc.Uint8()
			bc.Skip(3)
			data := bc.Bytes(msgSize)
			if err := bc.Err(); err != nil {
				return nil, utils.WrapError(fmt.Sprintf("v1 header message type %d", msgType), err)
			}
			remaining--

			switch msgType {
			case MsgContinuation:
				next, err := decodeContinuation(data, sb)
				if err != nil {
					return nil, err
				}
				pending = append(pending, next)
			case MsgNil:
			default:
				h.Messages = append(h.Messages, HeaderMessage{Type: msgType, Flags: msgFlags, Data: data})
			}
		}
	}
	return h, nil
}

func decodeContinuation(data []byte, sb *Superblock) (continuation, error) {
	c := utils.NewCursor(data)
	cont := continuation{
		address: c.Uint(int(sb.OffsetSize)),
		length:  c.Uint(int(sb.LengthSize)),
	}
	if err := c.Err(); err != nil {
		return cont, utils.WrapError("continuation message", err)
	}
	return cont, nil
}

// verifyChecksum checks the trailing lookup3 checksum of a metadata block.
func verifyChecksum(block []byte, what string) error {
	if len(block) < 4 {
		return utils.WrapError(what, utils.ErrTruncated)
	}
	end := len(block) - 4
	stored := utils.DecodeUint(block[end:])
	if sum := uint64(utils.Lookup3(block[:end])); sum != stored {
		return fmt.Errorf("%w: %s stored %08x, computed %08x", ErrChecksum, what, stored, sum)
	}
	return nil
}

// readAt reads exactly n bytes at address.
func readAt(r io.ReaderAt, address, n uint64) ([]byte, error) {
	if address > 1<<62 || n > 1<<40 {
		return nil, fmt.Errorf("read of %d bytes at %d out of range", n, address)
	}
	buf := make([]byte, n)
	//nolint:gosec // G115: bounded above
	if _, err := r.ReadAt(buf, int64(address)); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %d bytes at %d", utils.ErrTruncated, n, address)
		}
		return nil, err
	}
	return buf, nil
}

// readUpTo reads at most n bytes at address, accepting a short read at
// the end of the file.
func readUpTo(r io.ReaderAt, address, n uint64) ([]byte, error) {
	if address > 1<<62 {
		return nil, fmt.Errorf("read at %d out of range", address)
	}
	buf := make([]byte, n)
	//nolint:gosec // G115: bounded above
	got, err := r.ReadAt(buf, int64(address))
	if err != nil && !(errors.Is(err, io.EOF) && got > 0) {
		return nil, err
	}
	return buf[:got], nil
}

// ReadBlock reads n bytes at address; n is bounded to keep corrupt sizes
// from allocating absurd buffers.
func ReadBlock(r io.ReaderAt, address, n uint64) ([]byte, error) {
	return readAt(r, address, n)
}
