package filter

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func int64Chunk(n int) []byte {
	buf := make([]byte, 0, n*8)
	for i := 0; i < n; i++ {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(i/16))
	}
	return buf
}

func TestShuffle(t *testing.T) {
	f := NewShuffle(4)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}

	shuffled, err := f.Apply(data)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 5, 2, 6, 3, 7, 4, 8, 9}, shuffled)

	restored, err := f.Remove(shuffled)
	require.NoError(t, err)
	require.Equal(t, data, restored)
}

func TestShuffle_SingleByteIsNoop(t *testing.T) {
	f := NewShuffle(1)
	data := []byte{1, 2, 3}
	out, err := f.Apply(data)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestDeflate_RoundTrip(t *testing.T) {
	f, err := NewDeflate(9)
	require.NoError(t, err)

	data := int64Chunk(64)
	compressed, err := f.Apply(data)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(data))

	// zlib header: CM=8 (deflate) in the low nibble of the first byte.
	require.Equal(t, byte(0x08), compressed[0]&0x0f)
	require.Zero(t, (uint16(compressed[0])<<8|uint16(compressed[1]))%31)

	restored, err := f.Remove(compressed)
	require.NoError(t, err)
	require.Equal(t, data, restored)
}

func TestDeflate_LevelRange(t *testing.T) {
	_, err := NewDeflate(10)
	require.Error(t, err)
	_, err = NewDeflate(-1)
	require.Error(t, err)
	_, err = NewDeflate(0)
	require.NoError(t, err)
}

func TestFletcher32_RoundTrip(t *testing.T) {
	f := NewFletcher32()
	data := []byte{0x01, 0x02, 0x03}

	out, err := f.Apply(data)
	require.NoError(t, err)
	require.Len(t, out, 7)
	require.Equal(t, uint32(0x05040402), binary.LittleEndian.Uint32(out[3:]))

	body, err := f.Remove(out)
	require.NoError(t, err)
	require.Equal(t, data, body)

	out[0] ^= 0xff
	_, err = f.Remove(out)
	require.ErrorIs(t, err, ErrChecksum)
}

func TestFletcher32_AcceptsLegacyByteOrder(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	out := append(append([]byte(nil), data...), 0, 0, 0, 0)
	// 0x05040402 with bytes swapped inside each 16-bit half.
	binary.LittleEndian.PutUint32(out[3:], 0x04050204)

	body, err := NewFletcher32().Remove(out)
	require.NoError(t, err)
	require.Equal(t, data, body)
}

func TestPipeline_ApplyRemove(t *testing.T) {
	deflate, err := NewDeflate(6)
	require.NoError(t, err)

	p := NewPipeline()
	p.Add(NewShuffle(8), 0)
	p.Add(deflate, 0)
	p.Add(NewFletcher32(), 0)
	require.Equal(t, []string{"shuffle", "deflate", "fletcher32"}, p.Names())

	data := int64Chunk(64)
	encoded, mask, err := p.Apply(data)
	require.NoError(t, err)
	require.Zero(t, mask)

	decoded, err := p.Remove(encoded, mask)
	require.NoError(t, err)
	require.Equal(t, data, decoded)
}

type failing struct{}

func (failing) ID() ID                          { return 32000 }
func (failing) Name() string                    { return "failing" }
func (failing) Apply([]byte) ([]byte, error)    { return nil, errors.New("boom") }
func (failing) Remove(b []byte) ([]byte, error) { return b, nil }
func (failing) ClientData() []uint32            { return nil }

func TestPipeline_OptionalFilterIsSkipped(t *testing.T) {
	p := NewPipeline()
	p.Add(failing{}, FlagOptional)
	p.Add(NewFletcher32(), 0)

	data := []byte{1, 2, 3, 4}
	encoded, mask, err := p.Apply(data)
	require.NoError(t, err)
	require.Equal(t, uint32(1), mask)

	decoded, err := p.Remove(encoded, mask)
	require.NoError(t, err)
	require.Equal(t, data, decoded)

	mandatory := NewPipeline()
	mandatory.Add(failing{}, 0)
	_, _, err = mandatory.Apply(data)
	require.Error(t, err)
}

func TestMessage_RoundTrip(t *testing.T) {
	deflate, err := NewDeflate(4)
	require.NoError(t, err)

	p := NewPipeline()
	p.Add(NewShuffle(8), 0)
	p.Add(deflate, FlagOptional)
	p.Add(NewFletcher32(), 0)

	msg, err := p.EncodeMessage()
	require.NoError(t, err)
	require.Equal(t, byte(2), msg[0])
	require.Equal(t, byte(3), msg[1])

	specs, err := DecodeMessage(msg)
	require.NoError(t, err)
	require.Equal(t, []Spec{
		{ID: IDShuffle, ClientData: []uint32{8}},
		{ID: IDDeflate, Flags: FlagOptional, ClientData: []uint32{4}},
		{ID: IDFletcher32},
	}, specs)

	rebuilt, err := FromSpecs(specs, 8)
	require.NoError(t, err)
	require.Equal(t, p.Names(), rebuilt.Names())
}

func TestDecodeMessage_Version1(t *testing.T) {
	msg := []byte{
		1, 1, 0, 0, 0, 0, 0, 0, // version, count, reserved
		1, 0, // id: deflate
		8, 0, // name length
		1, 0, // flags: optional
		1, 0, // one cd value
		'd', 'e', 'f', 'l', 'a', 't', 'e', 0,
		6, 0, 0, 0, // level
		0, 0, 0, 0, // padding for odd cd count
	}

	specs, err := DecodeMessage(msg)
	require.NoError(t, err)
	require.Equal(t, []Spec{{ID: IDDeflate, Name: "deflate", Flags: FlagOptional, ClientData: []uint32{6}}}, specs)
	require.True(t, specs[0].Optional())
}

func TestFromSpecs_Unsupported(t *testing.T) {
	_, err := FromSpecs([]Spec{{ID: 32001, Name: "blosc"}}, 8)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestEncodeAll(t *testing.T) {
	deflate, err := NewDeflate(6)
	require.NoError(t, err)
	p := NewPipeline()
	p.Add(NewShuffle(8), 0)
	p.Add(deflate, 0)

	chunks := make([][]byte, 64)
	for i := range chunks {
		chunks[i] = int64Chunk(64 + i)
	}

	encoded, err := p.EncodeAll(context.Background(), chunks, 4)
	require.NoError(t, err)
	require.Len(t, encoded, len(chunks))

	for i, e := range encoded {
		decoded, err := p.Remove(e.Data, e.Mask)
		require.NoError(t, err)
		require.Equal(t, chunks[i], decoded, "chunk %d", i)
	}
}

func TestEncodeAll_EmptyPipelinePassesThrough(t *testing.T) {
	chunks := [][]byte{{1}, {2}}
	encoded, err := NewPipeline().EncodeAll(context.Background(), chunks, 0)
	require.NoError(t, err)
	require.Equal(t, []Encoded{{Data: []byte{1}}, {Data: []byte{2}}}, encoded)
}

func TestEncodeAll_Cancelled(t *testing.T) {
	p := NewPipeline()
	p.Add(NewFletcher32(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.EncodeAll(ctx, [][]byte{{1}, {2}}, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEncodeAll_CancelledEmptyPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPipeline().EncodeAll(ctx, [][]byte{{1}}, 0)
	require.ErrorIs(t, err, context.Canceled)
}
