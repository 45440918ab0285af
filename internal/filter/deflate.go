package filter

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Deflate is HDF5 filter 1. Despite the name the stored bytes are a zlib
// stream (RFC 1950), which is what libhdf5 produces with compress2.
type Deflate struct {
	level int
}

// NewDeflate returns a deflate filter. Levels 0 through 9 are accepted.
func NewDeflate(level int) (*Deflate, error) {
	if level < 0 || level > 9 {
		return nil, fmt.Errorf("deflate level %d out of range 0..9", level)
	}
	return &Deflate{level: level}, nil
}

// ID implements Filter.
func (f *Deflate) ID() ID { return IDDeflate }

// Name implements Filter.
func (f *Deflate) Name() string { return "deflate" }

// Level returns the compression level.
func (f *Deflate) Level() int { return f.level }

// ClientData implements Filter.
func (f *Deflate) ClientData() []uint32 {
	return []uint32{uint32(f.level)} //nolint:gosec // G115: level is 0..9
}

// Apply compresses data.
func (f *Deflate) Apply(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, f.level)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

// Remove decompresses data.
func (f *Deflate) Remove(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	return out, nil
}
