//go:build windows

package winvol

import (
	"encoding/binary"
	"fmt"
	"syscall"

	"github.com/boljen/go-bitmap"
	"golang.org/x/sys/windows"

	"github.com/shredfs/shredfs/extent"
	"github.com/shredfs/shredfs/volume"
)

// bitmapChunkClusters caps how many clusters' worth of bits are requested
// per FSCTL_GET_VOLUME_BITMAP call; a volume with more clusters than this
// drives a follow-up call starting at the last cluster the previous call
// covered.
const bitmapChunkClusters = 8 * 1024 * 1024 // 1 MiB of bitmap bytes

// Volume is a raw, shared read/write handle onto a whole volume.
type Volume struct {
	handle windows.Handle
}

var _ volume.VolumeHandle = (*Volume)(nil)

// Close releases the volume handle.
func (v *Volume) Close() error {
	return translateErr(windows.CloseHandle(v.handle))
}

// Bitmap reads the volume's full cluster allocation bitmap via repeated
// FSCTL_GET_VOLUME_BITMAP calls.
func (v *Volume) Bitmap(totalClusters int64) (bitmap.Bitmap, error) {
	bm := bitmap.NewSlice(int(totalClusters))
	var startLCN int64

	for startLCN < totalClusters {
		in := make([]byte, 8)
		binary.LittleEndian.PutUint64(in, uint64(startLCN))
		outSize := 16 + bitmapChunkClusters/8

		out, ioErr := deviceIoControl(v.handle, fsctlGetVolumeBitmap, in, outSize)
		moreData := false
		if ioErr != nil {
			errno, ok := ioErr.(syscall.Errno)
			if ok && errno == windows.ERROR_MORE_DATA {
				moreData = true
			} else {
				return nil, translateErr(ioErr)
			}
		}
		if len(out) < 16 {
			break
		}

		chunkStartLCN := int64(binary.LittleEndian.Uint64(out[0:8]))
		bitCount := int64(binary.LittleEndian.Uint64(out[8:16]))
		bitBytes := out[16:]

		for i := int64(0); i < bitCount; i++ {
			lcn := chunkStartLCN + i
			if lcn >= totalClusters {
				break
			}
			byteIndex := i / 8
			if int(byteIndex) >= len(bitBytes) {
				break
			}
			bit := bitBytes[byteIndex]&(1<<uint(i%8)) != 0
			bm.Set(int(lcn), bit)
		}

		// bitCount is the number of clusters from chunkStartLCN to the end of
		// the volume; this call only covered as many as bitBytes holds.
		covered := int64(len(bitBytes)) * 8
		if covered > bitCount {
			covered = bitCount
		}
		nextStart := chunkStartLCN + covered
		if !moreData || nextStart <= startLCN {
			break
		}
		startLCN = nextStart
	}

	return bm, nil
}

// MoveFile relocates clusterCount clusters of file, starting at startingVCN
// within it, onto destinationLCN via FSCTL_MOVE_FILE.
func (v *Volume) MoveFile(file volume.FileHandle, startingVCN int64, destinationLCN extent.LCN, clusterCount int64) error {
	f, ok := file.(*File)
	if !ok {
		return fmt.Errorf("winvol: MoveFile requires a file opened through winvol, got %T", file)
	}

	// MOVE_FILE_DATA: HANDLE FileHandle; LARGE_INTEGER StartingVcn;
	// LARGE_INTEGER StartingLcn; DWORD ClusterCount; with trailing padding
	// to the next 8-byte boundary on 64-bit Windows.
	in := make([]byte, 32)
	binary.LittleEndian.PutUint64(in[0:8], uint64(f.handle))
	binary.LittleEndian.PutUint64(in[8:16], uint64(startingVCN))
	binary.LittleEndian.PutUint64(in[16:24], uint64(int64(destinationLCN)))
	binary.LittleEndian.PutUint32(in[24:28], uint32(clusterCount))

	_, err := deviceIoControl(v.handle, fsctlMoveFile, in, 0)
	return translateErr(err)
}
