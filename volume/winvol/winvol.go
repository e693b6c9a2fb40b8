//go:build windows

// Package winvol is the real Windows implementation of the volume package's
// interfaces: it opens files and volumes with CreateFile, and drives the
// defrag API (FSCTL_GET_RETRIEVAL_POINTERS, FSCTL_GET_VOLUME_BITMAP,
// FSCTL_MOVE_FILE) directly through DeviceIoControl.
package winvol

import (
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/shredfs/shredfs"
	"github.com/shredfs/shredfs/volume"
)

// FSCTL codes from winioctl.h. golang.org/x/sys/windows doesn't expose the
// defrag-API subset, so they're named here directly.
const (
	fsctlGetRetrievalPointers = 0x90073
	fsctlGetVolumeBitmap      = 0x9006F
	fsctlMoveFile             = 0x90074
	fsctlSetCompression       = 0x9C040
	fsctlSetSparse            = 0x900C4
	fsctlSetZeroData          = 0x980C8
)

// compressionFormatDefault is COMPRESSION_FORMAT_DEFAULT, the value
// FSCTL_SET_COMPRESSION expects to turn NTFS compression on.
const compressionFormatDefault uint16 = 1

// Adapter implements volume.Opener against the live Windows file system.
type Adapter struct{}

// New returns a winvol Adapter.
func New() *Adapter { return &Adapter{} }

var _ volume.Opener = (*Adapter)(nil)

// Platform reports PlatformWindowsAdmin when the current process token is
// elevated, and PlatformWindowsUser otherwise: only an elevated process can
// open a volume for raw read/write.
func (a *Adapter) Platform() volume.Platform {
	token := windows.GetCurrentProcessToken()
	if token.IsElevated() {
		return volume.PlatformWindowsAdmin
	}
	return volume.PlatformWindowsUser
}

// translateErr maps the handful of Windows error codes the wipe engine cares
// about onto the portable sentinels in the shredfs package, and otherwise
// wraps the raw errno.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	errno, ok := err.(syscall.Errno)
	if !ok {
		return err
	}
	switch errno {
	case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND:
		return shredfs.ErrPathNotFound
	case windows.ERROR_ACCESS_DENIED:
		return shredfs.ErrAccessDenied
	case 32, 33:
		return shredfs.ErrLocked
	case windows.ERROR_DISK_FULL, 39: // 39: ERROR_HANDLE_DISK_FULL
		return volume.ErrOutOfSpace
	default:
		return shredfs.NewDriverError(errno)
	}
}

// OpenFile opens path, requesting write access in addition to read when
// writable is true.
func (a *Adapter) OpenFile(path string, writable bool) (volume.FileHandle, error) {
	access := uint32(windows.GENERIC_READ)
	if writable {
		access |= windows.GENERIC_WRITE
	}
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(pathPtr, access, 0, nil,
		windows.OPEN_EXISTING, windows.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return nil, translateErr(err)
	}
	return &File{handle: h, path: path}, nil
}

// OpenVolume opens the volume containing path for raw, shared read/write,
// the access level the defrag API requires.
func (a *Adapter) OpenVolume(path string) (volume.VolumeHandle, error) {
	root := strings.TrimSuffix(filepath.VolumeName(path), `\`)
	volPath := `\\.\` + root
	pathPtr, err := windows.UTF16PtrFromString(volPath)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(pathPtr, windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, nil,
		windows.OPEN_EXISTING, windows.FILE_FLAG_RANDOM_ACCESS, 0)
	if err != nil {
		return nil, translateErr(err)
	}
	return &Volume{handle: h}, nil
}

// VolumeInfo reports the file system and cluster geometry of the volume
// containing path, rejecting remote, CD-ROM, and otherwise unrecognized
// drive types the way the original implementation's get_volume_information
// does.
func (a *Adapter) VolumeInfo(path string) (volume.Info, error) {
	root := filepath.VolumeName(path) + `\`
	rootPtr, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return volume.Info{}, err
	}

	driveType := windows.GetDriveType(rootPtr)
	switch driveType {
	case windows.DRIVE_REMOTE, windows.DRIVE_CDROM, windows.DRIVE_UNKNOWN, windows.DRIVE_NO_ROOT_DIR:
		return volume.Info{}, shredfs.ErrUnsupportedFileSystem
	}

	var driveNameBuf [windows.MAX_PATH]uint16
	var fsNameBuf [windows.MAX_PATH]uint16
	if err := windows.GetVolumeInformation(rootPtr, &driveNameBuf[0], uint32(len(driveNameBuf)),
		nil, nil, nil, &fsNameBuf[0], uint32(len(fsNameBuf))); err != nil {
		return volume.Info{}, translateErr(err)
	}

	var sectorsPerCluster, bytesPerSector, freeClusters, totalClusters uint32
	if err := windows.GetDiskFreeSpace(rootPtr, &sectorsPerCluster, &bytesPerSector,
		&freeClusters, &totalClusters); err != nil {
		return volume.Info{}, translateErr(err)
	}

	fileSystem := windows.UTF16ToString(fsNameBuf[:])
	if !volume.Supported(fileSystem) {
		return volume.Info{}, shredfs.ErrUnsupportedFileSystem
	}

	return volume.Info{
		DriveName:         windows.UTF16ToString(driveNameBuf[:]),
		FileSystem:        fileSystem,
		SectorsPerCluster: sectorsPerCluster,
		BytesPerSector:    bytesPerSector,
		TotalClusters:     int64(totalClusters),
	}, nil
}

// FreeBytes reports free space on the volume containing path.
func (a *Adapter) FreeBytes(path string) (int64, error) {
	root := filepath.VolumeName(path) + `\`
	rootPtr, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return 0, err
	}
	var freeAvail, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(rootPtr, &freeAvail, &total, &totalFree); err != nil {
		return 0, translateErr(err)
	}
	return int64(freeAvail), nil
}

// SyncFilesystem is a best-effort no-op on Windows: unlike POSIX's sync(2),
// there is no single call that flushes every mounted volume's buffers, and
// FlushFileBuffers operates per-handle, which FileHandle.Flush already
// covers for the file currently being written.
func (a *Adapter) SyncFilesystem() error { return nil }

// CreateTempFile creates a new, hidden, zero-length file at path.
func (a *Adapter) CreateTempFile(path string) (volume.FileHandle, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(pathPtr, windows.GENERIC_READ|windows.GENERIC_WRITE, 0, nil,
		windows.CREATE_ALWAYS, windows.FILE_ATTRIBUTE_HIDDEN, 0)
	if err != nil {
		return nil, translateErr(err)
	}
	return &File{handle: h, path: path}, nil
}

// Delete removes path, tolerating ENOENT.
func (a *Adapter) Delete(path string) error {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	err = windows.DeleteFile(pathPtr)
	if err != nil {
		translated := translateErr(err)
		if translated == shredfs.ErrPathNotFound {
			return nil
		}
		return translated
	}
	return nil
}

// Rename moves oldPath to newPath without replacing an existing file at
// newPath.
func (a *Adapter) Rename(oldPath, newPath string) error {
	oldPtr, err := windows.UTF16PtrFromString(oldPath)
	if err != nil {
		return err
	}
	newPtr, err := windows.UTF16PtrFromString(newPath)
	if err != nil {
		return err
	}
	return translateErr(windows.MoveFileEx(oldPtr, newPtr, 0))
}

// ChmodWritable clears FILE_ATTRIBUTE_READONLY on path, if set.
func (a *Adapter) ChmodWritable(path string) error {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	attrs, err := windows.GetFileAttributes(pathPtr)
	if err != nil {
		return translateErr(err)
	}
	if attrs&windows.FILE_ATTRIBUTE_READONLY == 0 {
		return nil
	}
	return translateErr(windows.SetFileAttributes(pathPtr, attrs&^windows.FILE_ATTRIBUTE_READONLY))
}

// deviceIoControl is a thin wrapper that allocates the output buffer and
// returns only the bytes the driver actually filled in, also when the call
// fails with ERROR_MORE_DATA after filling part of it.
func deviceIoControl(h windows.Handle, code uint32, in []byte, outSize int) ([]byte, error) {
	out := make([]byte, outSize)
	var returned uint32
	var inPtr *byte
	if len(in) > 0 {
		inPtr = &in[0]
	}
	var outPtr *byte
	if outSize > 0 {
		outPtr = &out[0]
	}
	err := windows.DeviceIoControl(h, code, inPtr, uint32(len(in)), outPtr, uint32(outSize), &returned, nil)
	if err != nil {
		return out[:returned], err
	}
	return out[:returned], nil
}
