// Package volume defines the typed interface the wipe engine uses to talk to
// a volume and the files on it. It is the only layer that is meant to touch
// the operating system; [FileHandle] and [VolumeHandle] are implemented for
// real by volume/winvol on Windows, by an in-memory simulation in
// volume/fake for tests, and by a stub in volume/posix everywhere else.
package volume

import (
	"errors"
	"io"
	"time"

	"github.com/boljen/go-bitmap"
	"github.com/shredfs/shredfs/extent"
)

// ErrOutOfSpace is returned by FileHandle.Write (or CreateTempFile) when a
// volume has no more free clusters to hand out. Callers that are filling
// free space deliberately treat this as the expected end of the job, the
// same way the original implementation treats ENOSPC.
var ErrOutOfSpace = errors.New("volume: insufficient free space")

// Platform tags which concrete adapter a caller should dispatch to. The
// wipe driver decides at startup which one applies and never branches on it
// again afterward.
type Platform int

const (
	// PlatformWindowsAdmin can open a volume for raw read/write and issue
	// defrag IOCTLs: the full cluster-level wipe is available.
	PlatformWindowsAdmin Platform = iota
	// PlatformWindowsUser lacks the rights to open the volume directly;
	// only the content-wipe fallback is available.
	PlatformWindowsUser
	// PlatformPOSIX has no retrieval-pointers/defrag concept at all.
	PlatformPOSIX
)

// Attributes describes the subset of file attributes the wipe engine cares
// about.
type Attributes struct {
	Compressed bool
	Encrypted  bool
	Sparse     bool
	ReadOnly   bool
}

// IsSpecial reports whether the file's logical content can't be reliably
// overwritten in place by a direct write.
func (a Attributes) IsSpecial() bool {
	return a.Compressed || a.Encrypted || a.Sparse
}

// Info is everything the wipe driver needs to know about a volume before it
// starts working: its cluster geometry and file system type.
type Info struct {
	DriveName         string
	FileSystem        string
	SectorsPerCluster uint32
	BytesPerSector    uint32
	TotalClusters     int64
}

// ClusterSize is the size in bytes of a single allocation unit on the
// volume.
func (i Info) ClusterSize() int64 {
	return int64(i.SectorsPerCluster) * int64(i.BytesPerSector)
}

// supportedFileSystemPrefixes lists the file system families the wipe engine is
// willing to operate on. Anything else (UDF, network shares, CD-ROM, or an
// unrecognized type) is rejected before any destructive work begins.
var supportedFileSystemPrefixes = []string{"NTFS", "FAT"}

// Supported reports whether fileSystem is one the wipe engine knows how to
// reason about.
func Supported(fileSystem string) bool {
	for _, prefix := range supportedFileSystemPrefixes {
		if hasPrefixFold(fileSystem, prefix) {
			return true
		}
	}
	return false
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := range prefix {
		c1, c2 := s[i], prefix[i]
		if 'a' <= c1 && c1 <= 'z' {
			c1 -= 'a' - 'A'
		}
		if 'a' <= c2 && c2 <= 'z' {
			c2 -= 'a' - 'A'
		}
		if c1 != c2 {
			return false
		}
	}
	return true
}

// FileHandle is an open file, positioned like an [*os.File], with the extra
// operations the wipe engine needs: querying/moving its physical extents,
// flipping its sparse/compressed attributes, locking, and truncating.
type FileHandle interface {
	io.ReadWriteCloser
	io.Seeker

	// Extents returns the file's physical extents. If raw is true, the
	// result is the unmodified VCN/LCN run list as returned by the
	// retrieval-pointers query; otherwise it has already been translated
	// via extent.LogicalRangesToExtents(..., false).
	Extents(raw bool) ([]extent.VCNRun, extent.List, error)

	Size() (int64, error)
	Attributes() (Attributes, error)
	SetCompressed() error
	SetSparse() error
	SetZeroData(byteStart, byteEnd int64) error
	SetEndOfFile(offset int64) error
	LockRange(offset, length int64) error
	Flush() error
}

// VolumeHandle is a raw, shared read/write handle onto an entire volume,
// used to issue the defrag-family IOCTLs.
type VolumeHandle interface {
	io.Closer

	// Bitmap returns a snapshot of the volume's cluster allocation bitmap.
	// It is the caller's responsibility to re-acquire it to observe
	// changes; the returned value never mutates in place.
	Bitmap(totalClusters int64) (bitmap.Bitmap, error)

	// MoveFile relocates cluster_count clusters of file, starting at
	// startingVCN within the file, onto the volume starting at
	// destinationLCN.
	MoveFile(file FileHandle, startingVCN int64, destinationLCN extent.LCN, clusterCount int64) error
}

// Opener opens files and volumes for a given platform. Implementations live
// in volume/winvol (real), volume/fake (in-memory, for tests), and
// volume/posix (stub).
type Opener interface {
	Platform() Platform

	// OpenFile opens path for at least reading; writable additionally
	// requests write access.
	OpenFile(path string, writable bool) (FileHandle, error)

	// OpenVolume opens the volume containing path for raw read/write. Only
	// meaningful under PlatformWindowsAdmin.
	OpenVolume(path string) (VolumeHandle, error)

	// VolumeInfo reports the geometry and file system of the volume
	// containing path.
	VolumeInfo(path string) (Info, error)

	// CreateTempFile creates a hidden, zero-length file at path, for the
	// defrag strategy to use as a donor of clusters.
	CreateTempFile(path string) (FileHandle, error)

	// Delete removes the file at path, tolerating ENOENT.
	Delete(path string) error

	// Rename moves the entry at oldPath to newPath, both within the same
	// directory, failing if newPath already exists.
	Rename(oldPath, newPath string) error

	// ChmodWritable strips the read-only attribute, if present.
	ChmodWritable(path string) error

	// FreeBytes reports the number of free bytes on the volume containing
	// path, for the free-space filler's progress estimate.
	FreeBytes(path string) (int64, error)

	// SyncFilesystem flushes buffered writes for every mounted file system,
	// the volume-wide counterpart to FileHandle.Flush's single-file fsync.
	// The free-space filler calls this after rotating to a new fill file.
	SyncFilesystem() error
}

// Write block sizes named in spec §6.
const (
	// DirectWipeBlockSize is the chunk size used when overwriting a file's
	// clusters in place.
	DirectWipeBlockSize = 512 * 1024
	// DirectWipeSplitThreshold is the largest extent the defrag strategy
	// will attempt to wipe in one piece before subdividing.
	DirectWipeSplitThreshold = 4 * DirectWipeBlockSize
	// BridgePenalty is the per-extra-allocated-cluster cost charged against
	// bridging compressed extents together (spec §4.5, §9 open question:
	// preserved as a named, tunable constant).
	BridgePenalty = 10
	// PollInterval is how often wipe.PollClustersFreed re-checks the bitmap.
	PollInterval = 100 * time.Millisecond
	// PollTimeout is the hard ceiling on wipe.PollClustersFreed.
	PollTimeout = 7 * time.Second
)
