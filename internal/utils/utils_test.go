package utils

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapError(t *testing.T) {
	cause := errors.New("invalid signature")
	err := WrapError("reading superblock", cause)

	require.EqualError(t, err, "reading superblock: invalid signature")
	require.ErrorIs(t, err, cause)
	require.NoError(t, WrapError("nothing", nil))
}

func TestLookup3(t *testing.T) {
	tests := []struct {
		name string
		data string
		want uint32
	}{
		{"empty", "", 0xdeadbeef},
		{"reference sentence", "Four score and seven years ago", 0x17770551},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Lookup3([]byte(tt.data)))
		})
	}
}

func TestLookup3_SensitiveToEveryByte(t *testing.T) {
	data := make([]byte, 44)
	for i := range data {
		data[i] = byte(i)
	}
	base := Lookup3(data)

	for i := range data {
		mutated := append([]byte(nil), data...)
		mutated[i] ^= 0x01
		require.NotEqual(t, base, Lookup3(mutated), "byte %d", i)
	}
}

func TestFletcher32(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"empty", nil, 0},
		{"one word", []byte{0x01, 0x02}, 0x01020102},
		{"odd length", []byte{0x01, 0x02, 0x03}, 0x05040402},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Fletcher32(tt.data))
		})
	}
}

func TestElementCount(t *testing.T) {
	n, err := ElementCount([]uint64{16, 16, 16})
	require.NoError(t, err)
	require.Equal(t, uint64(4096), n)

	n, err = ElementCount(nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	_, err = ElementCount([]uint64{math.MaxUint64, 2})
	require.Error(t, err)
}

func TestByteSize(t *testing.T) {
	n, err := ByteSize([]uint64{4, 4, 4}, 8)
	require.NoError(t, err)
	require.Equal(t, 512, n)

	_, err = ByteSize([]uint64{math.MaxUint32, math.MaxUint32}, 8)
	require.Error(t, err)
}

func TestCursor(t *testing.T) {
	buf := []byte{
		0x01,
		0x02, 0x01,
		0x04, 0x03, 0x02, 0x01,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
		0xaa, 0xbb, 0xcc,
	}
	c := NewCursor(buf)

	require.Equal(t, uint8(0x01), c.Uint8())
	require.Equal(t, uint16(0x0102), c.Uint16())
	require.Equal(t, uint32(0x01020304), c.Uint32())
	require.Equal(t, uint64(0x0102030405060708), c.Uint64())
	require.Equal(t, uint64(0xccbbaa), c.Uint(3))
	require.NoError(t, c.Err())
	require.Zero(t, c.Remaining())

	require.Zero(t, c.Uint32())
	require.ErrorIs(t, c.Err(), ErrTruncated)

	// The error is sticky.
	require.Zero(t, c.Uint8())
	require.ErrorIs(t, c.Err(), ErrTruncated)
}

func TestIsUndefined(t *testing.T) {
	require.True(t, IsUndefined(math.MaxUint64, 8))
	require.True(t, IsUndefined(0xffffffff, 4))
	require.False(t, IsUndefined(0xffffffff, 8))
	require.False(t, IsUndefined(48, 8))
}
