package core

import (
	"bytes"
	"encoding/binary"
	"testing"

	h5test "github.com/scigolib/h5voxel/internal/testing"
	"github.com/scigolib/h5voxel/internal/utils"
	"github.com/stretchr/testify/require"
)

func newTestSuperblock() *Superblock {
	return &Superblock{
		Version:        Version2,
		OffsetSize:     8,
		LengthSize:     8,
		SuperExtension: UndefinedAddress,
		RootGroup:      48,
	}
}

func TestSuperblockEncode_Layout(t *testing.T) {
	buf, err := newTestSuperblock().Encode(4096)
	require.NoError(t, err)
	require.Len(t, buf, SuperblockV2Size)
	require.Equal(t, Signature, string(buf[:8]))
	require.Equal(t, []byte{2, 8, 8, 0}, buf[8:12])
	require.Equal(t, uint64(0), binary.LittleEndian.Uint64(buf[12:]))
	require.Equal(t, UndefinedAddress, binary.LittleEndian.Uint64(buf[20:]))
	require.Equal(t, uint64(4096), binary.LittleEndian.Uint64(buf[28:]))
	require.Equal(t, uint64(48), binary.LittleEndian.Uint64(buf[36:]))
	require.Equal(t, utils.Lookup3(buf[:44]), binary.LittleEndian.Uint32(buf[44:]))
}

func TestSuperblockEncode_RejectsOtherVersions(t *testing.T) {
	sb := newTestSuperblock()
	sb.Version = Version0
	_, err := sb.Encode(100)
	require.ErrorIs(t, err, ErrUnsupported)

	sb = newTestSuperblock()
	sb.OffsetSize = 4
	_, err = sb.Encode(100)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestSuperblockRoundTrip(t *testing.T) {
	file := h5test.Place(SuperblockV2Size+100, nil)
	require.NoError(t, newTestSuperblock().WriteTo(file, 1000))

	sb, off, err := ReadSuperblock(file, int64(len(file.Bytes())))
	require.NoError(t, err)
	require.Equal(t, int64(0), off)
	require.Equal(t, uint8(Version2), sb.Version)
	require.Equal(t, uint64(1000), sb.EndOfFile)
	require.Equal(t, uint64(48), sb.RootGroup)
	require.Equal(t, uint16(DefaultChunkBTreeK), sb.ChunkK)
}

func TestReadSuperblock_AfterUserBlock(t *testing.T) {
	buf, err := newTestSuperblock().Encode(1000)
	require.NoError(t, err)
	file := append(make([]byte, 512), buf...)

	_, off, err := ReadSuperblock(bytes.NewReader(file), int64(len(file)))
	require.NoError(t, err)
	require.Equal(t, int64(512), off)
}

func TestReadSuperblock_ChecksumMismatch(t *testing.T) {
	buf, err := newTestSuperblock().Encode(1000)
	require.NoError(t, err)
	buf[30] ^= 0xff

	_, _, err = ReadSuperblock(bytes.NewReader(buf), int64(len(buf)))
	require.ErrorIs(t, err, ErrChecksum)
}

func TestReadSuperblock_NotHDF5(t *testing.T) {
	data := bytes.Repeat([]byte("not hdf5"), 200)
	_, _, err := ReadSuperblock(bytes.NewReader(data), int64(len(data)))
	require.ErrorIs(t, err, ErrNotHDF5)
}

// buildSuperblockV0 lays out a version 0 superblock the way libhdf5 writes
// one for a new file, with the root entry caching its symbol table.
func buildSuperblockV0(rootHeader, btree, heap uint64) []byte {
	buf := []byte(Signature)
	buf = append(buf, 0, 0, 0, 0, 0, 8, 8, 0)
	buf = binary.LittleEndian.AppendUint16(buf, 4)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = binary.LittleEndian.AppendUint64(buf, 0)
	buf = binary.LittleEndian.AppendUint64(buf, UndefinedAddress)
	buf = binary.LittleEndian.AppendUint64(buf, 2048)
	buf = binary.LittleEndian.AppendUint64(buf, UndefinedAddress)
	buf = binary.LittleEndian.AppendUint64(buf, 0)
	buf = binary.LittleEndian.AppendUint64(buf, rootHeader)
	buf = binary.LittleEndian.AppendUint32(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = binary.LittleEndian.AppendUint64(buf, btree)
	return binary.LittleEndian.AppendUint64(buf, heap)
}

func TestReadSuperblock_Version0(t *testing.T) {
	file := buildSuperblockV0(96, 136, 680)
	require.Len(t, file, 96)

	sb, _, err := ReadSuperblock(bytes.NewReader(file), int64(len(file)))
	require.NoError(t, err)
	require.Equal(t, uint8(Version0), sb.Version)
	require.Equal(t, uint8(8), sb.OffsetSize)
	require.Equal(t, uint16(4), sb.GroupLeafK)
	require.Equal(t, uint16(16), sb.GroupInternalK)
	require.Equal(t, uint64(2048), sb.EndOfFile)
	require.Equal(t, uint64(96), sb.RootGroup)
	require.NotNil(t, sb.RootSymbolTable)
	require.Equal(t, uint64(136), sb.RootSymbolTable.BTree)
	require.Equal(t, uint64(680), sb.RootSymbolTable.LocalHeap)
}

func TestReadSuperblock_UnknownVersion(t *testing.T) {
	buf, err := newTestSuperblock().Encode(1000)
	require.NoError(t, err)
	buf[8] = 9
	_, _, err = ReadSuperblock(bytes.NewReader(buf), int64(len(buf)))
	require.ErrorIs(t, err, ErrUnsupported)
}
