//go:build windows

package main

import (
	"github.com/shredfs/shredfs/volume"
	"github.com/shredfs/shredfs/volume/winvol"
)

func defaultOpener() volume.Opener {
	return winvol.New()
}
