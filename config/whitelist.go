package config

import (
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// WhitelistKind distinguishes an exact-path entry from a directory prefix.
type WhitelistKind string

const (
	WhitelistKindFile WhitelistKind = "file"
	WhitelistKindDir  WhitelistKind = "folder"
)

// WhitelistEntry is one row of a user-supplied whitelist file: a path that
// must never be wiped, no matter what the caller asks for.
type WhitelistEntry struct {
	Kind WhitelistKind `csv:"kind"`
	Path string        `csv:"path"`
}

// Whitelist is a loaded, queryable set of protected paths.
type Whitelist struct {
	entries []WhitelistEntry
}

// LoadWhitelist parses a CSV whitelist with "kind" and "path" columns from
// r. A row that repeats an earlier row's kind and path is silently skipped;
// duplicates are not an error.
func LoadWhitelist(r io.Reader) (*Whitelist, error) {
	seen := make(map[string]bool)
	w := &Whitelist{}

	err := gocsv.UnmarshalToCallback(r, func(row WhitelistEntry) error {
		key := string(row.Kind) + ":" + row.Path
		if seen[key] {
			return nil
		}
		seen[key] = true
		w.entries = append(w.entries, row)
		return nil
	})
	if err != nil && err != io.EOF {
		return nil, err
	}
	return w, nil
}

// IsWhitelisted reports whether path is protected: either listed verbatim
// as a file entry, or contained within a listed directory entry.
func (w *Whitelist) IsWhitelisted(path string) bool {
	if w == nil {
		return false
	}
	for _, e := range w.entries {
		switch e.Kind {
		case WhitelistKindFile:
			if e.Path == path {
				return true
			}
		case WhitelistKindDir:
			if path == e.Path || strings.HasPrefix(path, strings.TrimRight(e.Path, "/")+"/") {
				return true
			}
		}
	}
	return false
}
