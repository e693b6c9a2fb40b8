package config_test

import (
	"strings"
	"testing"

	"github.com/shredfs/shredfs/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBytes_IEC(t *testing.T) {
	assert.Equal(t, "0 B", config.FormatBytes(0, true))
	assert.Equal(t, "1.0 KiB", config.FormatBytes(1024, true))
	assert.Equal(t, "1.5 MiB", config.FormatBytes(1024*1024+512*1024, true))
}

func TestFormatBytes_Decimal(t *testing.T) {
	assert.Equal(t, "1.0 KB", config.FormatBytes(1000, false))
	assert.Equal(t, "1.0 MB", config.FormatBytes(1000*1000, false))
}

func TestLoadWhitelist_FileAndDirEntries(t *testing.T) {
	csv := "kind,path\n" +
		"file,/etc/shadow\n" +
		"folder,/var/lib/important\n"

	wl, err := config.LoadWhitelist(strings.NewReader(csv))
	require.NoError(t, err)

	assert.True(t, wl.IsWhitelisted("/etc/shadow"))
	assert.False(t, wl.IsWhitelisted("/etc/passwd"))
	assert.True(t, wl.IsWhitelisted("/var/lib/important/db.sqlite"))
	assert.False(t, wl.IsWhitelisted("/var/lib/important-other/db.sqlite"))
}

func TestLoadWhitelist_DeduplicatesRows(t *testing.T) {
	csv := "kind,path\n" +
		"file,/etc/shadow\n" +
		"file,/etc/shadow\n"

	wl, err := config.LoadWhitelist(strings.NewReader(csv))
	require.NoError(t, err)
	assert.True(t, wl.IsWhitelisted("/etc/shadow"))
}

func TestNilWhitelist_NothingProtected(t *testing.T) {
	var wl *config.Whitelist
	assert.False(t, wl.IsWhitelisted("/anything"))
}
