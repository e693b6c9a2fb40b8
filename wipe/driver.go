package wipe

import (
	"path/filepath"
	"time"

	"github.com/shredfs/shredfs"
	"github.com/shredfs/shredfs/extent"
	"github.com/shredfs/shredfs/volume"
)

// tmpFileName is the name given to the zero-filled donor file the defrag
// strategy creates alongside the target, so it ends up on the same volume.
const tmpFileName = ".shredfs-tmp"

// FileWipe overwrites path's on-disk content so it can't be recovered by
// inspecting the raw volume, then chases down any clusters the file
// previously occupied but no longer does (because it was compressed,
// encrypted, sparse, or simply grew/shrank) and overwrites those too. It
// does not remove the directory entry; see namewipe for that.
func FileWipe(opener volume.Opener, path string) error {
	if opener.Platform() != volume.PlatformWindowsAdmin {
		return shredfs.ErrAccessDenied
	}

	info, err := opener.VolumeInfo(path)
	if err != nil {
		return err
	}
	if !volume.Supported(info.FileSystem) {
		return shredfs.ErrUnsupportedFileSystem
	}
	clusterSize := info.ClusterSize()

	fh, err := opener.OpenFile(path, false)
	if err != nil {
		return err
	}
	size, err := fh.Size()
	if err != nil {
		fh.Close()
		return err
	}
	attrs, err := fh.Attributes()
	if err != nil {
		fh.Close()
		return err
	}
	_, origExtents, err := fh.Extents(false)
	if err != nil {
		fh.Close()
		return err
	}

	var bridgedExtents extent.List
	if attrs.IsSpecial() {
		rawRuns, _, err := fh.Extents(true)
		if err != nil {
			fh.Close()
			return err
		}
		bridgedExtents = extent.LogicalRangesToExtents(rawRuns, true)
	}
	fh.Close()

	if attrs.ReadOnly {
		if err := opener.ChmodWritable(path); err != nil {
			return err
		}
	}

	vol, err := opener.OpenVolume(path)
	if err != nil {
		return err
	}
	defer vol.Close()

	fh, err = opener.OpenFile(path, true)
	if err != nil {
		return err
	}

	if !attrs.IsSpecial() {
		if err := DirectWipe(fh, origExtents, clusterSize, size); err != nil {
			fh.Close()
			return err
		}
		_, newExtents, err := fh.Extents(false)
		fh.Close()
		if err != nil {
			return err
		}
		if extent.Equal(origExtents, newExtents) {
			return nil
		}
		// The clusters that are still in newExtents have already been
		// wiped; only chase down the ones the OS didn't write back to.
		origExtents = extent.AMinusB(origExtents, newExtents)
	} else {
		if err := fh.SetEndOfFile(0); err != nil {
			fh.Close()
			return err
		}
		fh.Close()
	}

	PollClustersFreed(vol, info.TotalClusters, origExtents)

	if attrs.IsSpecial() {
		origExtents = ChooseIfBridged(vol, info.TotalClusters, origExtents, bridgedExtents)
	}

	tmpFilePath := filepath.Join(filepath.Dir(path), tmpFileName)
	for _, ext := range origExtents {
		if _, err := DefragWipe(vol, opener, tmpFilePath, ext.Start, ext.End, clusterSize, info.TotalClusters); err != nil {
			return err
		}
	}
	return nil
}

// PollClustersFreed re-checks the volume bitmap until origExtents show up
// more free than allocated, or volume.PollTimeout elapses. NTFS may not release a
// truncated file's clusters back to the bitmap immediately; this gives it a
// chance to catch up before the defrag pass starts chasing them.
func PollClustersFreed(vol volume.VolumeHandle, totalClusters int64, origExtents extent.List) bool {
	if len(origExtents) == 0 {
		return true
	}

	deadline := time.Now().Add(volume.PollTimeout)
	for time.Now().Before(deadline) {
		bm, err := vol.Bitmap(totalClusters)
		if err != nil {
			return false
		}
		countFree, countAllocated := extent.CheckExtents(origExtents, bm, nil)
		if countFree > countAllocated {
			return true
		}
		time.Sleep(volume.PollInterval)
	}
	return false
}

// ChooseIfBridged decides whether it's cheaper to wipe a slightly larger,
// bridged extent list (fewer, larger pieces, some of which weren't strictly
// part of the file) versus the original, precise extents. See
// volume.BridgePenalty for the cost model.
func ChooseIfBridged(vol volume.VolumeHandle, totalClusters int64, origExtents, bridgedExtents extent.List) extent.List {
	bm, err := vol.Bitmap(totalClusters)
	if err != nil {
		return origExtents
	}

	_, countOAllocated := extent.CheckExtents(origExtents, bm, nil)

	var allocated extent.List
	_, countBAllocated := extent.CheckExtents(bridgedExtents, bm, &allocated)
	bridgedExtents = extent.AMinusB(bridgedExtents, allocated)

	extraAllocatedClusters := countBAllocated - countOAllocated
	savingInExtents := int64(len(origExtents) - len(bridgedExtents))

	tradeoff := savingInExtents - extraAllocatedClusters*volume.BridgePenalty
	if tradeoff > 0 {
		return bridgedExtents
	}
	return origExtents
}
