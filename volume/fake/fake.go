// Package fake provides an in-memory simulation of a Windows volume, used to
// exercise the wipe engine's cluster-level logic without a real disk. It
// plays the part of the "fake volume" and "fake bounded-capacity file
// system" called for by the engine's test suite: a cluster arena, a
// allocation bitmap, and a handful of named files whose logical content maps
// onto slices of that arena the same way a real file system's extents do.
package fake

import (
	"errors"
	"io"
	"sync"

	"github.com/boljen/go-bitmap"
	"github.com/noxer/bytewriter"
	"github.com/shredfs/shredfs"
	"github.com/shredfs/shredfs/extent"
	"github.com/shredfs/shredfs/volume"
	"github.com/xaionaro-go/bytesextra"
)

// Volume is an in-memory stand-in for a single Windows volume plus the files
// on it. It implements both volume.Opener (the file-system surface) and
// volume.VolumeHandle (the raw-device surface), since in a test there is no
// need to distinguish the two.
type Volume struct {
	mu          sync.Mutex
	clusterSize int64
	total       int64
	arena       []byte
	// stream is a bytesextra.ReadWriteSeeker over arena; every cluster-level
	// read/write/move goes through it by seeking to the byte offset first,
	// the same seek-then-Read/Write idiom a real block cache uses over a
	// backing stream instead of indexing a slice directly.
	stream     io.ReadWriteSeeker
	alloc      bitmap.Bitmap
	files      map[string]*File
	fileSystem string
}

// New creates a Volume with totalClusters clusters of clusterSize bytes
// each, initially entirely free, reporting fileSystem (e.g. "NTFS", "FAT32")
// from VolumeInfo.
func New(totalClusters int64, clusterSize int64, fileSystem string) *Volume {
	arena := make([]byte, totalClusters*clusterSize)
	return &Volume{
		clusterSize: clusterSize,
		total:       totalClusters,
		arena:       arena,
		stream:      bytesextra.NewReadWriteSeeker(arena),
		alloc:       bitmap.NewSlice(int(totalClusters)),
		files:       make(map[string]*File),
		fileSystem:  fileSystem,
	}
}

// seekStream positions the shared arena stream at byte offset off. Callers
// must hold v.mu.
func (v *Volume) seekStream(off int64) error {
	_, err := v.stream.Seek(off, io.SeekStart)
	return err
}

// Platform always reports PlatformWindowsAdmin: the fake simulates the full
// admin-capable Windows path.
func (v *Volume) Platform() volume.Platform { return volume.PlatformWindowsAdmin }

// VolumeInfo reports the geometry configured at construction time.
func (v *Volume) VolumeInfo(path string) (volume.Info, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return volume.Info{
		DriveName:         "FAKE:",
		FileSystem:        v.fileSystem,
		SectorsPerCluster: 1,
		BytesPerSector:    uint32(v.clusterSize),
		TotalClusters:     v.total,
	}, nil
}

// OpenVolume returns the Volume itself: there's only one in a fake.
func (v *Volume) OpenVolume(path string) (volume.VolumeHandle, error) {
	return v, nil
}

// Close is a no-op; the Volume's lifetime is owned by the test.
func (v *Volume) Close() error { return nil }

// CreateFile registers a file backed by explicit retrieval-pointer runs, the
// way a test builds up a fixture describing exactly which clusters a file
// occupies (including holes, for sparse/compressed scenarios). sizeBytes is
// the file's logical size, which may exceed the clusters actually backing it.
func (v *Volume) CreateFile(path string, sizeBytes int64, attrs volume.Attributes, runs []extent.VCNRun) *File {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, ext := range extent.LogicalRangesToExtents(runs, false) {
		for c := ext.Start; c <= ext.End; c++ {
			v.alloc.Set(int(c), true)
		}
	}

	f := &File{
		vol:       v,
		path:      path,
		attrs:     attrs,
		runs:      append([]extent.VCNRun(nil), runs...),
		sizeBytes: sizeBytes,
	}
	v.files[path] = f
	return f
}

// CreateResidentFile registers a tiny file with no physical extents at all,
// modeling data small enough to live entirely in file-system metadata (e.g.
// an NTFS MFT record).
func (v *Volume) CreateResidentFile(path string, content []byte) *File {
	v.mu.Lock()
	defer v.mu.Unlock()
	f := &File{
		vol:       v,
		path:      path,
		resident:  append([]byte(nil), content...),
		sizeBytes: int64(len(content)),
	}
	v.files[path] = f
	return f
}

// OpenFile looks up a previously created file and returns its handle
// positioned at offset 0, as a freshly opened file would be.
func (v *Volume) OpenFile(path string, writable bool) (volume.FileHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.files[path]
	if !ok {
		return nil, shredfs.ErrPathNotFound
	}
	f.pos = 0
	return f, nil
}

// CreateTempFile creates a new, empty, auto-allocating file: writes to it
// pull fresh clusters from the free-space bitmap the way a real file system
// places a brand-new file, rather than writing into pre-assigned extents.
func (v *Volume) CreateTempFile(path string) (volume.FileHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f := &File{vol: v, path: path, autoAllocate: true}
	v.files[path] = f
	return f, nil
}

// Delete frees any clusters still held by the file and removes it from the
// volume. Deleting a path that doesn't exist is not an error.
func (v *Volume) Delete(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.files[path]
	if !ok {
		return nil
	}
	v.freeRuns(f.runs)
	delete(v.files, path)
	return nil
}

// Rename moves a file entry from oldPath to newPath.
func (v *Volume) Rename(oldPath, newPath string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.files[newPath]; exists {
		return errors.New("fake: destination already exists")
	}
	f, ok := v.files[oldPath]
	if !ok {
		return shredfs.ErrPathNotFound
	}
	f.path = newPath
	delete(v.files, oldPath)
	v.files[newPath] = f
	return nil
}

// ChmodWritable clears the simulated read-only attribute.
func (v *Volume) ChmodWritable(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if f, ok := v.files[path]; ok {
		f.attrs.ReadOnly = false
	}
	return nil
}

// Bitmap returns a copy of the allocation bitmap as it is now; later
// allocations do not show up in it.
func (v *Volume) Bitmap(totalClusters int64) (bitmap.Bitmap, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append(bitmap.Bitmap(nil), v.alloc...), nil
}

// SpikeCluster marks lcn allocated without attaching it to any file,
// simulating another process grabbing a cluster concurrently. This is the
// testing hook spec.md §9 calls for in place of a compile-time concurrency
// flag.
func (v *Volume) SpikeCluster(lcn extent.LCN) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alloc.Set(int(lcn), true)
}

// ReadCluster returns the current bytes backing cluster lcn, for assertions
// in tests.
func (v *Volume) ReadCluster(lcn extent.LCN) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	off := int64(lcn) * v.clusterSize
	out := make([]byte, v.clusterSize)
	if err := v.seekStream(off); err != nil {
		return out
	}
	buf := make([]byte, v.clusterSize)
	if _, err := io.ReadFull(v.stream, buf); err != nil && err != io.ErrUnexpectedEOF {
		return out
	}
	// bytewriter.New bounds the write to len(out), mirroring the fixed
	// destination-buffer pattern a one-shot decompression write uses.
	_, _ = bytewriter.New(out).Write(buf)
	return out
}

// FreeBytes reports the free space on the volume as a byte count.
func (v *Volume) FreeBytes(path string) (int64, error) {
	return v.FreeClusters() * v.clusterSize, nil
}

// SyncFilesystem is a no-op: the fake's arena is already as durable as the
// test process's own memory.
func (v *Volume) SyncFilesystem() error { return nil }

// FreeClusters returns the number of clusters currently unallocated.
func (v *Volume) FreeClusters() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	var free int64
	for i := int64(0); i < v.total; i++ {
		if !v.alloc.Get(int(i)) {
			free++
		}
	}
	return free
}

// MoveFile relocates clusterCount clusters of file, starting at the VCN
// startingVCN within it, onto the volume starting at destinationLCN. It
// fails if any destination cluster is already allocated to something else.
func (v *Volume) MoveFile(fh volume.FileHandle, startingVCN int64, destinationLCN extent.LCN, clusterCount int64) error {
	f, ok := fh.(*File)
	if !ok {
		return errors.New("fake: not a fake file handle")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	srcExtents := extent.LogicalRangesToExtents(f.runs, false)
	srcClusters := flattenClusters(srcExtents)
	if startingVCN < 0 || startingVCN+clusterCount > int64(len(srcClusters)) {
		return errors.New("fake: move range exceeds file extents")
	}
	selected := srcClusters[startingVCN : startingVCN+clusterCount]

	for i := int64(0); i < clusterCount; i++ {
		dest := destinationLCN + extent.LCN(i)
		if v.alloc.Get(int(dest)) && !containsCluster(selected, dest) {
			return errors.New("fake: destination cluster already allocated")
		}
	}

	moveBuf := make([]byte, v.clusterSize)
	for i, src := range selected {
		dest := destinationLCN + extent.LCN(i)
		if src == dest {
			continue
		}
		srcOff := int64(src) * v.clusterSize
		dstOff := int64(dest) * v.clusterSize

		if err := v.seekStream(srcOff); err != nil {
			return err
		}
		if _, err := io.ReadFull(v.stream, moveBuf); err != nil && err != io.ErrUnexpectedEOF {
			return err
		}
		if err := v.seekStream(dstOff); err != nil {
			return err
		}
		if _, err := v.stream.Write(moveBuf); err != nil {
			return err
		}

		v.alloc.Set(int(src), false)
		v.alloc.Set(int(dest), true)
	}

	f.runs = rewriteRuns(f.runs, startingVCN, clusterCount, destinationLCN)
	return nil
}

func containsCluster(clusters []extent.LCN, c extent.LCN) bool {
	for _, x := range clusters {
		if x == c {
			return true
		}
	}
	return false
}

func flattenClusters(extents extent.List) []extent.LCN {
	var out []extent.LCN
	for _, e := range extents {
		for c := e.Start; c <= e.End; c++ {
			out = append(out, c)
		}
	}
	return out
}

// rewriteRuns replaces the physical clusters backing [startVCN,
// startVCN+count) with a single contiguous run starting at destLCN. This
// keeps the retrieval-pointer representation internally consistent after a
// move without having to re-derive it from scratch.
func rewriteRuns(runs []extent.VCNRun, startVCN, count int64, destLCN extent.LCN) []extent.VCNRun {
	extents := extent.LogicalRangesToExtents(runs, false)
	clusters := flattenClusters(extents)
	for i := int64(0); i < count; i++ {
		clusters[startVCN+i] = destLCN + extent.LCN(i)
	}

	var out []extent.VCNRun
	vcn := int64(0)
	for vcn < int64(len(clusters)) {
		runStart := clusters[vcn]
		span := int64(1)
		for vcn+span < int64(len(clusters)) && clusters[vcn+span] == runStart+extent.LCN(span) {
			span++
		}
		out = append(out, extent.VCNRun{NextVCN: vcn + span, LCN: runStart})
		vcn += span
	}
	return out
}

// allocateClusters takes the first count free clusters in LCN order (which
// may be scattered over several runs) and marks them allocated, the way a real
// file system decides where to place new data -- not necessarily where the
// caller wants it.
func (v *Volume) allocateClusters(count int64) (extent.List, error) {
	var out extent.List
	var found int64
	var runStart extent.LCN = -1
	var runLen int64

	flush := func() {
		if runLen > 0 {
			out = append(out, extent.Extent{Start: runStart, End: runStart + extent.LCN(runLen) - 1})
			found += runLen
			runLen = 0
		}
	}

	for i := int64(0); i < v.total && found < count; i++ {
		if v.alloc.Get(int(i)) {
			flush()
			runStart = -1
			continue
		}
		if runLen == 0 {
			runStart = extent.LCN(i)
		}
		runLen++
		if found+runLen >= count {
			break
		}
	}
	flush()

	if found < count {
		return nil, volume.ErrOutOfSpace
	}
	for _, e := range out {
		for c := e.Start; c <= e.End; c++ {
			v.alloc.Set(int(c), true)
		}
	}
	return out, nil
}

func (v *Volume) freeRuns(runs []extent.VCNRun) {
	for _, e := range extent.LogicalRangesToExtents(runs, false) {
		for c := e.Start; c <= e.End; c++ {
			v.alloc.Set(int(c), false)
		}
	}
}

var _ volume.Opener = (*Volume)(nil)
var _ volume.VolumeHandle = (*Volume)(nil)
var _ io.Closer = (*Volume)(nil)
