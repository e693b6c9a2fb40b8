// Package namewipe destroys the metadata a wiped file leaves behind even
// after its content has been overwritten: the directory entry that still
// carries its original name, and (on platforms where the cluster-level
// wipe in package wipe isn't available) its content too.
package namewipe

import (
	"crypto/rand"
	"path"
	"strconv"
	"strings"

	"github.com/shredfs/shredfs/volume"
)

// randomNameCharset mirrors the printable-but-unremarkable character set a
// renamed file ends up with: no characters a file system would reject.
const randomNameCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// longNameLength is the name length WipeName starts with, chosen to push
// the original name out of whatever fixed-size directory-entry slot a file
// system used to hold it.
const longNameLength = 226

func randomName(length int) string {
	raw := make([]byte, length)
	_, _ = rand.Read(raw)
	var b strings.Builder
	b.Grow(length)
	for _, c := range raw {
		b.WriteByte(randomNameCharset[int(c)%len(randomNameCharset)])
	}
	return b.String()
}

// WipeName renames pathname to a long random name and then to a short one,
// so neither the original name nor its length survive in the directory
// entry. It returns the file's new path.
//
// Renaming can fail on a file system with its own length limits or name
// collisions; WipeName retries with shorter or different names rather than
// giving up, the same way the underlying directory-entry overwrite would
// have to.
func WipeName(opener volume.Opener, pathname string) (string, error) {
	dir := path.Dir(pathname)

	current := pathname
	maxLen := longNameLength
	for attempt := 0; attempt < 100; attempt++ {
		candidate := path.Join(dir, randomName(maxLen))
		if err := opener.Rename(current, candidate); err == nil {
			current = candidate
			break
		}
		if maxLen > 10 {
			maxLen -= 10
		}
	}

	for length := 1; length <= 100; length++ {
		candidate := path.Join(dir, randomName(length)+strconv.Itoa(length%10))
		if err := opener.Rename(current, candidate); err == nil {
			return candidate, nil
		}
	}

	return current, nil
}
