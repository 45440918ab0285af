// Package main provides a command-line utility to dump HDF5 file contents.
// By default it describes every dataset in the root group; with -hex it
// displays raw bytes from an offset for debugging the file layout.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strings"

	"github.com/scigolib/h5voxel"
)

func main() {
	// Define command-line flags
	hex := flag.Bool("hex", false, "Dump raw bytes instead of describing datasets")
	offset := flag.Int64("offset", 0, "Offset in file to start dumping from (with -hex)")
	length := flag.Int("length", 128, "Number of bytes to dump (with -hex)")
	values := flag.Int("values", 16, "Number of leading values to print per dataset")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: dump_hdf5 [flags] <file.h5>")
		fmt.Println("Flags:")
		flag.PrintDefaults()
		return
	}

	var err error
	if *hex {
		err = dumpHex(os.Stdout, args[0], *offset, *length)
	} else {
		err = describe(os.Stdout, args[0], *values)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// describe prints the superblock version and, per dataset, its shape,
// chunking, datatype, filters, attributes and first n values.
func describe(w io.Writer, file string, n int) error {
	f, err := h5voxel.Open(file)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close file: %v", err)
		}
	}()

	fmt.Fprintf(w, "%s: superblock v%d, %d dataset(s)\n", file, f.SuperblockVersion(), len(f.Datasets()))
	for _, name := range f.Datasets() {
		ds, err := f.Dataset(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n/%s\n", name)
		fmt.Fprintf(w, "  shape:   %v\n", ds.Shape())
		fmt.Fprintf(w, "  layout:  %s", ds.Layout())
		if chunks := ds.ChunkShape(); chunks != nil {
			fmt.Fprintf(w, " %v", chunks)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  dtype:   %s\n", ds.Datatype())
		if filters := ds.Filters(); len(filters) > 0 {
			fmt.Fprintf(w, "  filters: %s\n", strings.Join(filters, ", "))
		}

		attrs, err := ds.Attributes()
		if err != nil {
			return fmt.Errorf("attributes of %s: %w", name, err)
		}
		keys := make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  @%s = %v\n", k, attrs[k])
		}

		if n <= 0 {
			continue
		}
		vals, more, err := leadingValues(ds, n)
		if err != nil {
			return fmt.Errorf("values of %s: %w", name, err)
		}
		fmt.Fprintf(w, "  values:  %v%s\n", vals, more)
	}
	return nil
}

// leadingValues reads the first n elements through a window, so only the
// chunks holding them are decoded.
func leadingValues(ds *h5voxel.Dataset, n int) ([]float64, string, error) {
	total, err := ds.NumElements()
	if err != nil {
		return nil, "", err
	}
	count, more := total, ""
	if count > uint64(n) {
		count, more = uint64(n), " ..."
	}
	win, err := ds.Window()
	if err != nil {
		return nil, "", err
	}
	vals := make([]float64, count)
	for i := range vals {
		if vals[i], err = win.ValueAt(uint64(i)); err != nil {
			return nil, "", err
		}
	}
	return vals, more, nil
}

func dumpHex(w io.Writer, file string, offset int64, length int) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close file: %v", err)
		}
	}()

	fileInfo, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}
	fileSize := fileInfo.Size()

	if offset < 0 || offset >= fileSize {
		return fmt.Errorf("invalid offset: %d (file size: %d)", offset, fileSize)
	}
	if length < 1 {
		return fmt.Errorf("invalid length: %d", length)
	}

	readLength := min(int64(length), fileSize-offset)
	if readLength < int64(length) {
		fmt.Fprintf(w, "Warning: requested length %d exceeds available bytes. Dumping %d bytes.\n",
			length, readLength)
	}

	buf := make([]byte, readLength)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		log.Printf("Read error: %v (read %d of %d bytes)", err, n, readLength)
	}

	fmt.Fprintf(w, "Dumping %d bytes at offset 0x%x (%d) of %s (size: %d bytes):\n",
		n, offset, offset, file, fileSize)
	hexLines(w, buf[:n], offset)
	return nil
}

// hexLines writes 16 bytes per line: address, hex bytes, ASCII.
func hexLines(w io.Writer, buf []byte, base int64) {
	for i := 0; i < len(buf); i += 16 {
		chunk := buf[i:min(i+16, len(buf))]

		fmt.Fprintf(w, "%08x: ", base+int64(i))
		for j := range 16 {
			if j < len(chunk) {
				fmt.Fprintf(w, "%02x ", chunk[j])
			} else {
				fmt.Fprint(w, "   ")
			}
			if j == 7 {
				fmt.Fprint(w, " ")
			}
		}
		fmt.Fprint(w, " |")

		for _, b := range chunk {
			if b >= 32 && b <= 126 {
				fmt.Fprintf(w, "%c", b)
			} else {
				fmt.Fprint(w, ".")
			}
		}
		fmt.Fprintln(w, "|")
	}
}
