package namewipe

import (
	"errors"

	"github.com/shredfs/shredfs"
	"github.com/shredfs/shredfs/volume"
)

// Delete removes the file at path. When shred is true, it first overwrites
// the file's content (via WipeContents) and obscures its name (via
// WipeName) before unlinking it; otherwise it's a plain delete.
//
// ignoreMissing suppresses the shredfs.ErrPathNotFound that the shred path
// reports when path doesn't exist, for callers cleaning up a batch of paths
// that may have already been removed by something else. A plain delete of a
// missing path succeeds either way, since opener.Delete tolerates ENOENT.
func Delete(opener volume.Opener, path string, shred bool, ignoreMissing bool) error {
	if !shred {
		err := opener.Delete(path)
		if ignoreMissing && errors.Is(err, shredfs.ErrPathNotFound) {
			return nil
		}
		return err
	}

	if err := WipeContents(opener, path); err != nil {
		if errors.Is(err, shredfs.ErrPathNotFound) {
			if ignoreMissing {
				return nil
			}
			return err
		}
		if !errors.Is(err, shredfs.ErrBrokenSymlink) {
			return err
		}
		// A broken symlink has no content to wipe; fall through and remove
		// the link itself.
	}

	wipedPath, err := WipeName(opener, path)
	if err != nil {
		return err
	}

	err = opener.Delete(wipedPath)
	if ignoreMissing && errors.Is(err, shredfs.ErrPathNotFound) {
		return nil
	}
	return err
}
