// Package testing provides in-memory files for format tests.
package testing

import (
	"errors"
	"io"
)

// MemFile is an in-memory file. It implements io.ReaderAt and io.WriterAt,
// and the Allocate/WriteAtAddress pair the chunk index writer uses.
// Allocation appends at the end of the file.
type MemFile struct {
	buf  []byte
	next uint64
}

// NewMemFile returns an empty file whose first allocation is at start.
func NewMemFile(start uint64) *MemFile {
	return &MemFile{next: start}
}

// Place returns a MemFile of size bytes with each part copied at its
// address.
func Place(size int, parts map[int][]byte) *MemFile {
	m := &MemFile{buf: make([]byte, size), next: uint64(size)} //nolint:gosec // G115: test sizes
	for addr, data := range parts {
		copy(m.buf[addr:], data)
	}
	return m
}

func (m *MemFile) grow(end uint64) {
	if end > uint64(len(m.buf)) {
		m.buf = append(m.buf, make([]byte, end-uint64(len(m.buf)))...)
	}
}

// Allocate reserves size bytes at the end of the file.
func (m *MemFile) Allocate(size uint64) (uint64, error) {
	addr := m.next
	m.next += size
	m.grow(m.next)
	return addr, nil
}

// WriteAtAddress writes data at addr, growing the file as needed.
func (m *MemFile) WriteAtAddress(data []byte, addr uint64) error {
	m.grow(addr + uint64(len(data)))
	copy(m.buf[addr:], data)
	return nil
}

// WriteAt implements io.WriterAt.
func (m *MemFile) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	return len(p), m.WriteAtAddress(p, uint64(off))
}

// ReadAt implements io.ReaderAt.
func (m *MemFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Bytes returns the file contents. The slice aliases the file.
func (m *MemFile) Bytes() []byte {
	return m.buf
}

// Next returns the address of the next allocation.
func (m *MemFile) Next() uint64 {
	return m.next
}
