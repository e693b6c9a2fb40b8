//go:build windows

package winvol

import (
	"encoding/binary"
	"io"
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/shredfs/shredfs/extent"
	"github.com/shredfs/shredfs/volume"
)

// retrievalPointersChunkExtents caps how many VCN/LCN runs are requested per
// FSCTL_GET_RETRIEVAL_POINTERS call. A file with more runs than this drives a
// follow-up call, on ERROR_MORE_DATA, starting from the last run's VCN.
const retrievalPointersChunkExtents = 4096

// File is an open handle onto a file, backed by a Windows HANDLE.
type File struct {
	handle windows.Handle
	path   string
}

var _ volume.FileHandle = (*File)(nil)

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) {
	var n uint32
	err := windows.ReadFile(f.handle, p, &n, nil)
	if err != nil {
		return int(n), translateErr(err)
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return int(n), nil
}

// Write implements io.Writer.
func (f *File) Write(p []byte) (int, error) {
	var n uint32
	err := windows.WriteFile(f.handle, p, &n, nil)
	if err != nil {
		return int(n), translateErr(err)
	}
	return int(n), nil
}

// Close implements io.Closer.
func (f *File) Close() error {
	return translateErr(windows.CloseHandle(f.handle))
}

// Seek implements io.Seeker.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	n, err := windows.Seek(f.handle, offset, whence)
	return n, translateErr(err)
}

// Size returns the file's current logical size.
func (f *File) Size() (int64, error) {
	var size int64
	if err := windows.GetFileSizeEx(f.handle, &size); err != nil {
		return 0, translateErr(err)
	}
	return size, nil
}

// Attributes reports the file's sparse/compressed/encrypted/read-only bits.
func (f *File) Attributes() (volume.Attributes, error) {
	pathPtr, err := windows.UTF16PtrFromString(f.path)
	if err != nil {
		return volume.Attributes{}, err
	}
	attrs, err := windows.GetFileAttributes(pathPtr)
	if err != nil {
		return volume.Attributes{}, translateErr(err)
	}
	return volume.Attributes{
		Compressed: attrs&windows.FILE_ATTRIBUTE_COMPRESSED != 0,
		Encrypted:  attrs&windows.FILE_ATTRIBUTE_ENCRYPTED != 0,
		Sparse:     attrs&windows.FILE_ATTRIBUTE_SPARSE_FILE != 0,
		ReadOnly:   attrs&windows.FILE_ATTRIBUTE_READONLY != 0,
	}, nil
}

// SetCompressed turns on NTFS compression via FSCTL_SET_COMPRESSION.
func (f *File) SetCompressed() error {
	in := make([]byte, 2)
	binary.LittleEndian.PutUint16(in, compressionFormatDefault)
	_, err := deviceIoControl(f.handle, fsctlSetCompression, in, 0)
	return translateErr(err)
}

// SetSparse marks the file sparse via FSCTL_SET_SPARSE, a prerequisite for
// SetZeroData to actually deallocate clusters rather than just zero-fill
// them.
func (f *File) SetSparse() error {
	_, err := deviceIoControl(f.handle, fsctlSetSparse, nil, 0)
	return translateErr(err)
}

// SetZeroData punches a hole in [byteStart, byteEnd) via FSCTL_SET_ZERO_DATA.
func (f *File) SetZeroData(byteStart, byteEnd int64) error {
	in := make([]byte, 16)
	binary.LittleEndian.PutUint64(in[0:8], uint64(byteStart))
	binary.LittleEndian.PutUint64(in[8:16], uint64(byteEnd))
	_, err := deviceIoControl(f.handle, fsctlSetZeroData, in, 0)
	return translateErr(err)
}

// SetEndOfFile truncates (or extends) the file to offset bytes.
func (f *File) SetEndOfFile(offset int64) error {
	if _, err := windows.Seek(f.handle, offset, io.SeekStart); err != nil {
		return translateErr(err)
	}
	return translateErr(windows.SetEndOfFile(f.handle))
}

// LockRange takes an exclusive lock on [offset, offset+length), the same
// range the direct-wipe strategy holds for the duration of its overwrite.
func (f *File) LockRange(offset, length int64) error {
	ol := new(windows.Overlapped)
	ol.Offset = uint32(uint64(offset) & 0xFFFFFFFF)
	ol.OffsetHigh = uint32(uint64(offset) >> 32)
	lengthLow := uint32(uint64(length) & 0xFFFFFFFF)
	lengthHigh := uint32(uint64(length) >> 32)
	return translateErr(windows.LockFileEx(f.handle, windows.LOCKFILE_EXCLUSIVE_LOCK, 0, lengthLow, lengthHigh, ol))
}

// Flush forces buffered writes to disk.
func (f *File) Flush() error {
	return translateErr(windows.FlushFileBuffers(f.handle))
}

// Extents issues FSCTL_GET_RETRIEVAL_POINTERS, looping on ERROR_MORE_DATA
// until the whole run list has been read.
func (f *File) Extents(raw bool) ([]extent.VCNRun, extent.List, error) {
	var runs []extent.VCNRun
	var startVCN int64

	for {
		in := make([]byte, 8)
		binary.LittleEndian.PutUint64(in, uint64(startVCN))
		outSize := 16 + retrievalPointersChunkExtents*16

		out, ioErr := deviceIoControl(f.handle, fsctlGetRetrievalPointers, in, outSize)
		moreData := false
		if ioErr != nil {
			errno, ok := ioErr.(syscall.Errno)
			switch {
			case ok && errno == windows.ERROR_MORE_DATA:
				moreData = true
			case ok && errno == windows.ERROR_HANDLE_EOF:
				// No runs at all: a zero-length or fully sparse file.
			default:
				return nil, nil, translateErr(ioErr)
			}
		}
		if len(out) < 16 {
			break
		}

		count := binary.LittleEndian.Uint32(out[0:4])
		available := uint32((len(out) - 16) / 16)
		if count > available {
			count = available
		}

		var lastVCN int64
		for i := uint32(0); i < count; i++ {
			off := 16 + int(i)*16
			nextVCN := int64(binary.LittleEndian.Uint64(out[off : off+8]))
			lcn := int64(binary.LittleEndian.Uint64(out[off+8 : off+16]))
			runs = append(runs, extent.VCNRun{NextVCN: nextVCN, LCN: extent.LCN(lcn)})
			lastVCN = nextVCN
		}

		if !moreData || count == 0 {
			break
		}
		startVCN = lastVCN
	}

	if raw {
		return runs, nil, nil
	}
	return runs, extent.LogicalRangesToExtents(runs, false), nil
}
