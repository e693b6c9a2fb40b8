package namewipe

import (
	"errors"

	"github.com/shredfs/shredfs"
	"github.com/shredfs/shredfs/volume"
	"github.com/shredfs/shredfs/wipe"
)

// basicWipeBlockSize is the chunk size used by the content-wipe fallback,
// which has no notion of clusters or extents to align to.
const basicWipeBlockSize = 4096

// WipeContents overwrites path's data. Where the platform supports it
// (admin rights on a recognized Windows file system), it uses the
// cluster-level wipe in package wipe; everywhere else -- a non-admin
// Windows session, or POSIX -- it falls back to a single in-place
// zero-fill pass through an ordinary file handle. Either way, the file is
// left truncated to zero bytes afterward.
func WipeContents(opener volume.Opener, path string) error {
	if opener.Platform() == volume.PlatformWindowsAdmin {
		info, err := opener.VolumeInfo(path)
		if err == nil && volume.Supported(info.FileSystem) {
			err := wipe.FileWipe(opener, path)
			if err == nil {
				return truncate(opener, path)
			}
			if !errors.Is(err, shredfs.ErrLocked) {
				return err
			}
			// Another process has the file open or locked; fall through to
			// the basic content wipe, the same as a non-admin session would
			// get.
		}
	}

	if err := basicWipeContents(opener, path); err != nil {
		return err
	}
	return truncate(opener, path)
}

// basicWipeContents overwrites path's entire logical size with zeros
// through a plain file handle, with no attempt to reason about clusters,
// extents, or where the file system chooses to place the write.
func basicWipeContents(opener volume.Opener, path string) error {
	fh, err := opener.OpenFile(path, true)
	if errors.Is(err, shredfs.ErrAccessDenied) {
		if chmodErr := opener.ChmodWritable(path); chmodErr != nil {
			return chmodErr
		}
		fh, err = opener.OpenFile(path, true)
	}
	if err != nil {
		return err
	}
	defer fh.Close()

	size, err := fh.Size()
	if err != nil {
		return err
	}

	blanks := make([]byte, basicWipeBlockSize)
	for size > 0 {
		n := int64(len(blanks))
		if size < n {
			n = size
		}
		if _, err := fh.Write(blanks[:n]); err != nil {
			return err
		}
		size -= n
	}
	return fh.Flush()
}

func truncate(opener volume.Opener, path string) error {
	fh, err := opener.OpenFile(path, true)
	if err != nil {
		return err
	}
	defer fh.Close()
	return fh.SetEndOfFile(0)
}
