package h5voxel

import (
	"fmt"
	"io"
	"os"

	"github.com/scigolib/h5voxel/internal/core"
	"github.com/scigolib/h5voxel/internal/structures"
)

// File is an HDF5 file opened for reading.
//
// Only datasets that are direct members of the root group are visible.
// Not safe for concurrent use.
type File struct {
	path    string
	osFile  *os.File
	r       io.ReaderAt
	sb      *core.Superblock
	names   []string
	members map[string]uint64 // dataset name -> object header address
}

// Open opens an HDF5 file for reading.
func Open(filename string) (*File, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	sb, base, err := core.ReadSuperblock(f, info.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	file := &File{
		path:    filename,
		osFile:  f,
		r:       io.NewSectionReader(f, base, info.Size()-base),
		sb:      sb,
		members: make(map[string]uint64),
	}
	if err := file.loadRootGroup(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: root group: %w", filename, err)
	}
	return file, nil
}

// loadRootGroup records every hard-linked dataset in the root group.
func (f *File) loadRootGroup() error {
	var links []structures.GroupEntry

	st := f.sb.RootSymbolTable
	var root *core.ObjectHeader
	if st == nil {
		var err error
		root, err = core.ReadObjectHeader(f.r, f.sb.RootGroup, f.sb)
		if err != nil {
			return err
		}
		if msg := root.Find(core.MsgSymbolTable); msg != nil {
			if st, err = core.DecodeSymbolTable(msg.Data, f.sb); err != nil {
				return err
			}
		}
	}

	if st != nil {
		entries, err := structures.ReadSymbolTableGroup(f.r, st, f.sb)
		if err != nil {
			return err
		}
		links = entries
	} else {
		if msg := root.Find(core.MsgLinkInfo); msg != nil {
			li, err := core.DecodeLinkInfo(msg.Data, f.sb)
			if err != nil {
				return err
			}
			if !li.Compact(int(f.sb.OffsetSize)) {
				return fmt.Errorf("%w: dense link storage", ErrUnsupported)
			}
		}
		for _, msg := range root.All(core.MsgLink) {
			l, err := core.DecodeLink(msg.Data, f.sb)
			if err != nil {
				return err
			}
			if l.Type != core.LinkHard {
				continue
			}
			links = append(links, structures.GroupEntry{Name: l.Name, ObjectHeader: l.Address})
		}
	}

	for _, l := range links {
		h, err := core.ReadObjectHeader(f.r, l.ObjectHeader, f.sb)
		if err != nil {
			return fmt.Errorf("member %q: %w", l.Name, err)
		}
		if !h.IsDataset() {
			continue
		}
		f.names = append(f.names, l.Name)
		f.members[l.Name] = l.ObjectHeader
	}
	return nil
}

// Path returns the file name passed to Open.
func (f *File) Path() string {
	return f.path
}

// SuperblockVersion returns the format version of the superblock.
func (f *File) SuperblockVersion() int {
	return int(f.sb.Version)
}

// Datasets returns the names of the datasets in the root group, in link
// order.
func (f *File) Datasets() []string {
	return append([]string(nil), f.names...)
}

// Dataset opens the named dataset. A leading "/" is accepted.
func (f *File) Dataset(name string) (*Dataset, error) {
	if f.osFile == nil {
		return nil, ErrClosed
	}
	trimmed, err := validateDatasetName(name)
	if err != nil {
		return nil, err
	}
	addr, ok := f.members[trimmed]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	h, err := core.ReadObjectHeader(f.r, addr, f.sb)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", trimmed, err)
	}
	return newDataset(f, trimmed, h)
}

// Close closes the file. Closing twice is a no-op.
func (f *File) Close() error {
	if f.osFile == nil {
		return nil
	}
	err := f.osFile.Close()
	f.osFile = nil
	return err
}
