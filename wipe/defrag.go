package wipe

import (
	"github.com/shredfs/shredfs/extent"
	"github.com/shredfs/shredfs/volume"
)

// DefragWipe overwrites the clusters [lcnStart, lcnEnd] by creating a
// zero-filled temporary file and using the volume's move-file (defrag) API
// to relocate its clusters onto that exact range. If any cluster in the
// range is already allocated, or the range is large, it recurses on smaller
// sub-extents instead of failing outright -- the same progressively finer
// splitting the direct strategy can't do, since there's no file open on
// those clusters to write through.
//
// It returns false (with a nil error) when the range could not be wiped at
// all, for instance because every cluster in it is occupied and none are
// free for a temp file to land on.
func DefragWipe(vol volume.VolumeHandle, opener volume.Opener, tmpFilePath string, lcnStart, lcnEnd extent.LCN, clusterSize int64, totalClusters int64) (bool, error) {
	writeLength := (int64(lcnEnd-lcnStart) + 1) * clusterSize

	bm, err := vol.Bitmap(totalClusters)
	if err != nil {
		return false, err
	}
	countFree, countAllocated := extent.CheckExtents(extent.List{{Start: lcnStart, End: lcnEnd}}, bm, nil)

	if countAllocated > 0 && countFree == 0 {
		return false, nil
	}
	if countAllocated > 0 || writeLength > volume.DirectWipeSplitThreshold {
		if lcnStart >= lcnEnd {
			return false, nil
		}
		for _, sub := range extent.SplitExtent(lcnStart, lcnEnd) {
			if _, err := DefragWipe(vol, opener, tmpFilePath, sub.Start, sub.End, clusterSize, totalClusters); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	tmpFile, err := opener.CreateTempFile(tmpFilePath)
	if err != nil {
		return false, err
	}
	if err := writeZeroFill(tmpFile, writeLength); err != nil {
		tmpFile.Close()
		return false, err
	}
	_, newExtents, err := tmpFile.Extents(false)
	if err != nil {
		tmpFile.Close()
		return false, err
	}

	var newVCN int64
	for _, ext := range newExtents {
		clusterCount := int64(ext.End-ext.Start) + 1
		dest := lcnStart + extent.LCN(newVCN)

		if ext.Start != dest {
			if moveErr := vol.MoveFile(tmpFile, newVCN, dest, clusterCount); moveErr != nil {
				tmpFile.Close()
				if lcnStart >= lcnEnd {
					return false, nil
				}
				for _, sub := range extent.SplitExtent(lcnStart, lcnEnd) {
					if _, err := DefragWipe(vol, opener, tmpFilePath, sub.Start, sub.End, clusterSize, totalClusters); err != nil {
						return false, err
					}
				}
				return true, nil
			}
		}
		newVCN += clusterCount
	}

	tmpFile.Close()
	_ = opener.Delete(tmpFilePath)
	return true, nil
}
