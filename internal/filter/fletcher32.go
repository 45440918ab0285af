package filter

import (
	"encoding/binary"
	"fmt"

	"github.com/scigolib/h5voxel/internal/utils"
)

// Fletcher32 is HDF5 filter 3: it appends a 4-byte checksum to each chunk.
type Fletcher32 struct{}

// NewFletcher32 returns the checksum filter.
func NewFletcher32() *Fletcher32 {
	return &Fletcher32{}
}

// ID implements Filter.
func (f *Fletcher32) ID() ID { return IDFletcher32 }

// Name implements Filter.
func (f *Fletcher32) Name() string { return "fletcher32" }

// ClientData implements Filter.
func (f *Fletcher32) ClientData() []uint32 { return nil }

// Apply appends the checksum, little-endian.
func (f *Fletcher32) Apply(data []byte) ([]byte, error) {
	out := make([]byte, len(data)+4)
	copy(out, data)
	binary.LittleEndian.PutUint32(out[len(data):], utils.Fletcher32(data))
	return out, nil
}

// Remove verifies and strips the checksum. Files written by libhdf5 before
// 1.6.3 stored the value with the bytes of each 16-bit half swapped; both
// forms are accepted.
func (f *Fletcher32) Remove(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: chunk of %d bytes has no room for a checksum", ErrChecksum, len(data))
	}
	body := data[:len(data)-4]
	stored := binary.LittleEndian.Uint32(data[len(data)-4:])
	sum := utils.Fletcher32(body)
	swapped := (sum&0x00ff00ff)<<8 | (sum&0xff00ff00)>>8
	if stored != sum && stored != swapped {
		return nil, fmt.Errorf("%w: stored %08x, computed %08x", ErrChecksum, stored, sum)
	}
	return body, nil
}
