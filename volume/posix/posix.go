//go:build !windows

// Package posix is the fallback volume.Opener for systems with no
// retrieval-pointers/defrag concept at all. It satisfies the interface with
// plain file I/O so the content-wipe fallback and the free-space filler keep
// working; every cluster-level operation reports shredfs.ErrUnsupportedFileSystem.
package posix

import (
	"errors"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/shredfs/shredfs"
	"github.com/shredfs/shredfs/extent"
	"github.com/shredfs/shredfs/volume"
)

// Adapter implements volume.Opener using plain POSIX file calls.
type Adapter struct{}

// New returns a posix Adapter.
func New() *Adapter { return &Adapter{} }

var _ volume.Opener = (*Adapter)(nil)

// Platform always reports PlatformPOSIX: there is no volume-handle concept
// to be an admin of here.
func (a *Adapter) Platform() volume.Platform { return volume.PlatformPOSIX }

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return shredfs.ErrPathNotFound
	}
	if os.IsPermission(err) {
		return shredfs.ErrAccessDenied
	}
	var errno syscall.Errno
	if pe, ok := err.(*os.PathError); ok {
		if e, ok := pe.Err.(syscall.Errno); ok {
			errno = e
		}
	}
	if errno != 0 {
		return shredfs.NewDriverError(errno)
	}
	return err
}

// OpenFile opens path for reading, and additionally for writing when
// writable is true.
func (a *Adapter) OpenFile(path string, writable bool) (volume.FileHandle, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, translateErr(err)
	}
	return &File{f: f}, nil
}

// OpenVolume never succeeds: POSIX has no analog of a raw volume handle with
// a defrag-family IOCTL interface.
func (a *Adapter) OpenVolume(path string) (volume.VolumeHandle, error) {
	return nil, shredfs.ErrUnsupportedFileSystem
}

// VolumeInfo reports the file system backing path via statfs, translated to
// the subset volume.Supported understands. Cluster geometry doesn't apply on
// POSIX, so ClusterSize reports a synthetic 1-byte unit: the driver always
// takes the content-wipe fallback path here regardless.
func (a *Adapter) VolumeInfo(path string) (volume.Info, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return volume.Info{}, translateErr(err)
	}
	return volume.Info{
		DriveName:         path,
		FileSystem:        "posix",
		SectorsPerCluster: 1,
		BytesPerSector:    1,
		TotalClusters:     int64(stat.Blocks),
	}, nil
}

// FreeBytes reports free space on the file system backing path.
func (a *Adapter) FreeBytes(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, translateErr(err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

// SyncFilesystem flushes kernel buffers for every mounted file system,
// mirroring the original's platform-specific sync() after fsync-ing a
// rotated fill file.
func (a *Adapter) SyncFilesystem() error {
	unix.Sync()
	return nil
}

// CreateTempFile creates a new, zero-length file at path.
func (a *Adapter) CreateTempFile(path string) (volume.FileHandle, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, translateErr(err)
	}
	return &File{f: f}, nil
}

// Delete removes path, tolerating ENOENT.
func (a *Adapter) Delete(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return translateErr(err)
}

// Rename moves oldPath to newPath, failing if newPath already exists.
func (a *Adapter) Rename(oldPath, newPath string) error {
	if _, err := os.Lstat(newPath); err == nil {
		return shredfs.WipeError("destination already exists").WithMessage(newPath)
	}
	return translateErr(os.Rename(oldPath, newPath))
}

// ChmodWritable adds the owner-write bit, if it's missing.
func (a *Adapter) ChmodWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return translateErr(err)
	}
	mode := info.Mode()
	if mode&0o200 != 0 {
		return nil
	}
	return translateErr(os.Chmod(path, mode|0o600))
}

// File wraps an *os.File to satisfy volume.FileHandle. Every cluster-level
// operation reports shredfs.ErrUnsupportedFileSystem: POSIX has no retrieval-
// pointers or defrag IOCTL equivalent, so the driver is expected to check
// volume.Supported and never reach these on this platform.
type File struct {
	f *os.File
}

var _ volume.FileHandle = (*File)(nil)

func (f *File) Read(p []byte) (int, error) { n, err := f.f.Read(p); return n, translateErr(err) }
func (f *File) Close() error               { return translateErr(f.f.Close()) }

// Write reports a full file system (ENOSPC) or an over-size file (EFBIG) as
// volume.ErrOutOfSpace.
func (f *File) Write(p []byte) (int, error) {
	n, err := f.f.Write(p)
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EFBIG) {
		return n, volume.ErrOutOfSpace
	}
	return n, translateErr(err)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	n, err := f.f.Seek(offset, whence)
	return n, translateErr(err)
}

// Extents always fails: there is no concept of a physical cluster layout to
// report.
func (f *File) Extents(raw bool) ([]extent.VCNRun, extent.List, error) {
	return nil, nil, shredfs.ErrUnsupportedFileSystem
}

func (f *File) Size() (int64, error) {
	info, err := f.f.Stat()
	if err != nil {
		return 0, translateErr(err)
	}
	return info.Size(), nil
}

func (f *File) Attributes() (volume.Attributes, error) {
	info, err := f.f.Stat()
	if err != nil {
		return volume.Attributes{}, translateErr(err)
	}
	return volume.Attributes{ReadOnly: info.Mode()&0o200 == 0}, nil
}

func (f *File) SetCompressed() error                       { return shredfs.ErrUnsupportedFileSystem }
func (f *File) SetSparse() error                           { return shredfs.ErrUnsupportedFileSystem }
func (f *File) SetZeroData(byteStart, byteEnd int64) error { return shredfs.ErrUnsupportedFileSystem }

func (f *File) SetEndOfFile(offset int64) error {
	return translateErr(f.f.Truncate(offset))
}

// LockRange takes an advisory exclusive lock via flock, the closest POSIX
// equivalent to the Windows byte-range lock the direct-wipe strategy holds.
func (f *File) LockRange(offset, length int64) error {
	return translateErr(unix.Flock(int(f.f.Fd()), unix.LOCK_EX))
}

func (f *File) Flush() error {
	return translateErr(f.f.Sync())
}

var _ io.ReadWriteCloser = (*File)(nil)
