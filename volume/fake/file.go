package fake

import (
	"errors"
	"io"

	"github.com/shredfs/shredfs/extent"
	"github.com/shredfs/shredfs/volume"
)

// File is an open handle onto a fake file. Non-resident files alias their
// owning Volume's arena directly, so writes through the handle are visible
// to Volume.ReadCluster exactly as they would be on a real device.
type File struct {
	vol   *Volume
	path  string
	attrs volume.Attributes

	// runs is the retrieval-pointer representation of the file's physical
	// layout. Empty for a resident file.
	runs []extent.VCNRun

	// resident holds the file's bytes directly when it has no physical
	// extents at all (data small enough to live in file-system metadata).
	resident []byte

	// autoAllocate is set for temp files created via Volume.CreateTempFile:
	// writing past the current backing pulls fresh clusters from the
	// volume's free-space bitmap, the way a brand-new file is placed by a
	// real file system rather than by the caller.
	autoAllocate bool

	sizeBytes int64
	pos       int64
	closed    bool
}

var _ volume.FileHandle = (*File)(nil)

func (f *File) isResident() bool {
	return len(f.runs) == 0 && !f.autoAllocate
}

// Extents returns the file's retrieval pointers and, unless raw is
// requested, the translated extent list.
func (f *File) Extents(raw bool) ([]extent.VCNRun, extent.List, error) {
	f.vol.mu.Lock()
	defer f.vol.mu.Unlock()
	runs := append([]extent.VCNRun(nil), f.runs...)
	if raw {
		return runs, nil, nil
	}
	return runs, extent.LogicalRangesToExtents(f.runs, false), nil
}

// Size returns the file's logical size in bytes.
func (f *File) Size() (int64, error) {
	f.vol.mu.Lock()
	defer f.vol.mu.Unlock()
	return f.sizeBytes, nil
}

// Attributes returns the file's simulated attribute bits.
func (f *File) Attributes() (volume.Attributes, error) {
	f.vol.mu.Lock()
	defer f.vol.mu.Unlock()
	return f.attrs, nil
}

// SetCompressed marks the file compressed. The fake does not shrink its
// physical footprint as a result; tests that need a compressed file with a
// smaller footprint should build it with CreateFile and an explicit run list.
func (f *File) SetCompressed() error {
	f.vol.mu.Lock()
	defer f.vol.mu.Unlock()
	f.attrs.Compressed = true
	return nil
}

// SetSparse marks the file sparse.
func (f *File) SetSparse() error {
	f.vol.mu.Lock()
	defer f.vol.mu.Unlock()
	f.attrs.Sparse = true
	return nil
}

// SetZeroData marks [byteStart, byteEnd) as a hole by writing zero bytes
// into the region; it does not deallocate clusters. Real sparse files punch
// a hole here, but for the wipe engine's purposes the observable effect --
// the bytes read back as zero -- is the same.
func (f *File) SetZeroData(byteStart, byteEnd int64) error {
	f.vol.mu.Lock()
	defer f.vol.mu.Unlock()
	if f.isResident() {
		for i := byteStart; i < byteEnd && i < int64(len(f.resident)); i++ {
			f.resident[i] = 0
		}
		return nil
	}
	return f.writeLocked(byteStart, make([]byte, byteEnd-byteStart))
}

// SetEndOfFile truncates (or, for the fake, only ever shrinks) the file to
// offset bytes, releasing any clusters no longer needed.
func (f *File) SetEndOfFile(offset int64) error {
	f.vol.mu.Lock()
	defer f.vol.mu.Unlock()

	if f.isResident() {
		if offset <= int64(len(f.resident)) {
			f.resident = f.resident[:offset]
		}
		f.sizeBytes = offset
		return nil
	}

	clusterSize := f.vol.clusterSize
	keepClusters := (offset + clusterSize - 1) / clusterSize
	extents := extent.LogicalRangesToExtents(f.runs, false)
	clusters := flattenClusters(extents)

	if keepClusters < int64(len(clusters)) {
		released := clusters[keepClusters:]
		for _, c := range released {
			f.vol.alloc.Set(int(c), false)
		}
		clusters = clusters[:keepClusters]
	}

	f.runs = clustersToRuns(clusters)
	f.sizeBytes = offset
	return nil
}

// LockRange is a no-op in the fake: there is no second process to contend
// with.
func (f *File) LockRange(offset, length int64) error { return nil }

// Flush is a no-op: writes are applied synchronously to the arena.
func (f *File) Flush() error { return nil }

// Close marks the handle unusable. The Volume keeps the file registered
// under its path regardless.
func (f *File) Close() error {
	f.vol.mu.Lock()
	defer f.vol.mu.Unlock()
	f.closed = true
	return nil
}

// Seek repositions the handle the way os.File.Seek does.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.vol.mu.Lock()
	defer f.vol.mu.Unlock()
	switch whence {
	case io.SeekStart:
		f.pos = offset
	case io.SeekCurrent:
		f.pos += offset
	case io.SeekEnd:
		f.pos = f.sizeBytes + offset
	default:
		return 0, errors.New("fake: invalid whence")
	}
	return f.pos, nil
}

// Read copies from the file's current backing (arena-aliased clusters, or
// the resident buffer) at the handle's position. Reads that fall within a
// hole (LCN < 0, for sparse/compressed fixtures) come back zeroed.
func (f *File) Read(p []byte) (int, error) {
	f.vol.mu.Lock()
	defer f.vol.mu.Unlock()

	if f.isResident() {
		if f.pos >= int64(len(f.resident)) {
			return 0, io.EOF
		}
		n := copy(p, f.resident[f.pos:])
		f.pos += int64(n)
		return n, nil
	}

	if f.pos >= f.sizeBytes {
		return 0, io.EOF
	}
	n := f.readLocked(f.pos, p)
	f.pos += int64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f *File) readLocked(offset int64, p []byte) int {
	clusterSize := f.vol.clusterSize
	extents := extent.LogicalRangesToExtents(f.runs, false)
	clusters := flattenClusters(extents)

	total := 0
	for total < len(p) && offset < f.sizeBytes {
		clusterIdx := offset / clusterSize
		within := offset % clusterSize
		remainInCluster := clusterSize - within
		n := int64(len(p) - total)
		if n > remainInCluster {
			n = remainInCluster
		}
		if clusterIdx >= int64(len(clusters)) {
			// Past the file's physical backing: logical zero tail.
			for i := int64(0); i < n; i++ {
				p[total+int(i)] = 0
			}
		} else {
			lcn := clusters[clusterIdx]
			arenaOff := int64(lcn)*clusterSize + within
			if err := f.vol.seekStream(arenaOff); err == nil {
				_, _ = io.ReadFull(f.vol.stream, p[total:total+int(n)])
			}
		}
		total += int(n)
		offset += n
	}
	return total
}

// Write overwrites the file's physical clusters in place at the handle's
// current position, growing the backing via allocateClusters first if the
// handle is an auto-allocating temp file.
func (f *File) Write(p []byte) (int, error) {
	f.vol.mu.Lock()
	defer f.vol.mu.Unlock()

	if f.isResident() {
		end := f.pos + int64(len(p))
		if end > int64(len(f.resident)) {
			grown := make([]byte, end)
			copy(grown, f.resident)
			f.resident = grown
			f.sizeBytes = end
		}
		copy(f.resident[f.pos:], p)
		f.pos += int64(len(p))
		return len(p), nil
	}

	if err := f.writeLocked(f.pos, p); err != nil {
		return 0, err
	}
	f.pos += int64(len(p))
	if f.pos > f.sizeBytes {
		f.sizeBytes = f.pos
	}
	return len(p), nil
}

func (f *File) writeLocked(offset int64, p []byte) error {
	clusterSize := f.vol.clusterSize
	needClusters := (offset + int64(len(p)) + clusterSize - 1) / clusterSize
	extents := extent.LogicalRangesToExtents(f.runs, false)
	clusters := flattenClusters(extents)

	if int64(len(clusters)) < needClusters {
		if !f.autoAllocate {
			return errors.New("fake: write exceeds file's existing extents")
		}
		grow := needClusters - int64(len(clusters))
		newExtents, err := f.vol.allocateClusters(grow)
		if err != nil {
			return err
		}
		clusters = append(clusters, flattenClusters(newExtents)...)
		f.runs = clustersToRuns(clusters)
	}

	total := 0
	for total < len(p) {
		clusterIdx := offset / clusterSize
		within := offset % clusterSize
		remainInCluster := clusterSize - within
		n := int64(len(p) - total)
		if n > remainInCluster {
			n = remainInCluster
		}
		lcn := clusters[clusterIdx]
		arenaOff := int64(lcn)*clusterSize + within
		if err := f.vol.seekStream(arenaOff); err != nil {
			return err
		}
		if _, err := f.vol.stream.Write(p[total : total+int(n)]); err != nil {
			return err
		}
		total += int(n)
		offset += n
	}
	return nil
}

func clustersToRuns(clusters []extent.LCN) []extent.VCNRun {
	var out []extent.VCNRun
	vcn := int64(0)
	for vcn < int64(len(clusters)) {
		start := clusters[vcn]
		span := int64(1)
		for vcn+span < int64(len(clusters)) && clusters[vcn+span] == start+extent.LCN(span) {
			span++
		}
		out = append(out, extent.VCNRun{NextVCN: vcn + span, LCN: start})
		vcn += span
	}
	return out
}
