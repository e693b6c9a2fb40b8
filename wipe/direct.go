// Package wipe implements the cluster-level strategies that overwrite a
// file's data so it cannot be recovered: a direct in-place overwrite for
// ordinary files, and a defrag-API overwrite for the clusters a special
// (compressed/encrypted/sparse) file leaves behind once it has been
// truncated.
package wipe

import (
	"github.com/shredfs/shredfs/extent"
	"github.com/shredfs/shredfs/volume"
)

// zeroFillChunk is reused across calls to avoid re-zeroing a fresh buffer on
// every write.
var zeroFillChunk = make([]byte, volume.DirectWipeBlockSize)

// writeZeroFill writes length zero bytes to fh starting at its current
// position, in chunks of at most len(zeroFillChunk) bytes, then flushes.
// On a handle to an existing file the writes land on the clusters already
// backing it; on a freshly created temp file (as DefragWipe uses) the file
// system allocates new clusters for them.
func writeZeroFill(fh volume.FileHandle, length int64) error {
	for length > 0 {
		n := int64(len(zeroFillChunk))
		if length < n {
			n = length
		}
		if _, err := fh.Write(zeroFillChunk[:n]); err != nil {
			return err
		}
		length -= n
	}
	return fh.Flush()
}

// DirectWipe overwrites a regular file's clusters in place by writing zeros
// from offset 0 through its on-disk footprint. If extents is empty, the
// file's content is small enough to live resident in file-system metadata,
// and the full logical fileSize is written instead.
//
// If the last extent wasn't originally full, the file's size grows to a
// multiple of the cluster size; the caller is expected to have already
// decided that's acceptable (it matches spec behavior for regular files).
func DirectWipe(fh volume.FileHandle, extents extent.List, clusterSize int64, fileSize int64) error {
	_ = fh.LockRange(0, fileSize)

	if _, err := fh.Seek(0, 0); err != nil {
		return err
	}

	var writeLength int64
	if len(extents) > 0 {
		writeLength = extent.SumLengths(extents) * clusterSize
	} else {
		writeLength = fileSize
	}

	return writeZeroFill(fh, writeLength)
}
