//go:build !windows

package main

import (
	"github.com/shredfs/shredfs/volume"
	"github.com/shredfs/shredfs/volume/posix"
)

func defaultOpener() volume.Opener {
	return posix.New()
}
