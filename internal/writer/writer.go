package writer

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrClosed is returned by every method of a closed FileWriter.
var ErrClosed = errors.New("writer is closed")

// CreateMode selects how an existing file at the target path is treated.
type CreateMode int

const (
	// ModeTruncate creates the file or truncates an existing one.
	ModeTruncate CreateMode = iota

	// ModeExclusive fails if the file already exists.
	ModeExclusive
)

// FileWriter couples an *os.File with an Allocator.
//
// Not safe for concurrent use.
type FileWriter struct {
	file      *os.File
	allocator *Allocator
}

// NewFileWriter creates filename and reserves the first initialOffset
// bytes for the superblock.
func NewFileWriter(filename string, mode CreateMode, initialOffset uint64) (*FileWriter, error) {
	var (
		f   *os.File
		err error
	)
	switch mode {
	case ModeTruncate:
		f, err = os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	case ModeExclusive:
		f, err = os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	default:
		return nil, fmt.Errorf("invalid create mode: %d", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return &FileWriter{
		file:      f,
		allocator: NewAllocator(initialOffset),
	}, nil
}

// Allocate reserves size bytes at the end of the file.
func (w *FileWriter) Allocate(size uint64) (uint64, error) {
	if w.file == nil {
		return 0, ErrClosed
	}
	return w.allocator.Allocate(size)
}

// WriteAt implements io.WriterAt.
func (w *FileWriter) WriteAt(data []byte, offset int64) (int, error) {
	if w.file == nil {
		return 0, ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, err := w.file.WriteAt(data, offset)
	if err != nil {
		return n, fmt.Errorf("write at address %d failed: %w", offset, err)
	}
	return n, nil
}

// WriteAtAddress writes data at addr.
func (w *FileWriter) WriteAtAddress(data []byte, addr uint64) error {
	_, err := w.WriteAt(data, int64(addr)) //nolint:gosec // G115: HDF5 addresses fit in int64 in practice
	return err
}

// Append allocates len(data) bytes, writes data there and returns the address.
func (w *FileWriter) Append(data []byte) (uint64, error) {
	addr, err := w.Allocate(uint64(len(data)))
	if err != nil {
		return 0, err
	}
	if err := w.WriteAtAddress(data, addr); err != nil {
		return 0, err
	}
	return addr, nil
}

// ReadAt implements io.ReaderAt so freshly written metadata can be read back.
func (w *FileWriter) ReadAt(buf []byte, offset int64) (int, error) {
	if w.file == nil {
		return 0, ErrClosed
	}
	return w.file.ReadAt(buf, offset)
}

// EndOfFile returns the end-of-file address known to the allocator.
func (w *FileWriter) EndOfFile() uint64 {
	return w.allocator.EndOfFile()
}

// Allocator exposes the allocator for validation.
func (w *FileWriter) Allocator() *Allocator {
	return w.allocator
}

// Flush commits written data to stable storage.
func (w *FileWriter) Flush() error {
	if w.file == nil {
		return ErrClosed
	}
	return w.file.Sync()
}

// Close closes the underlying file. It does not flush. Closing twice is a no-op.
func (w *FileWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

var (
	_ io.ReaderAt = (*FileWriter)(nil)
	_ io.WriterAt = (*FileWriter)(nil)
)
