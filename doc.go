// Package h5voxel writes and reads chunked voxel arrays stored in HDF5
// files, without cgo.
//
// It implements the subset of the HDF5 format needed for that job: a
// version 2 superblock, a root group holding datasets through compact
// links, chunked datasets indexed by a version 1 B-tree with an optional
// deflate/shuffle/fletcher32 filter pipeline, and dataset attributes.
// Files written by h5voxel open in h5py, h5dump and libhdf5; the reader
// also understands the version 0 superblocks and symbol-table groups that
// libhdf5 writes by default.
//
// Writing:
//
//	fw, err := h5voxel.Create("test.hdf5", h5voxel.CreateTruncate)
//	if err != nil {
//	    return err
//	}
//	ds, err := fw.CreateDataset("data", h5voxel.Int64, []uint64{16, 16, 16},
//	    h5voxel.WithChunkDims([]uint64{4, 4, 4}))
//	if err != nil {
//	    return err
//	}
//	if err := ds.Write(values); err != nil {
//	    return err
//	}
//	return fw.Close()
//
// Reading single voxels through a chunk-sized window:
//
//	f, _ := h5voxel.Open("test.hdf5")
//	defer f.Close()
//	ds, _ := f.Dataset("data")
//	w, _ := ds.Window()
//	v, _ := w.Value(3, 2, 1)
package h5voxel
