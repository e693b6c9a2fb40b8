package freespace

import (
	"syscall"
	"testing"

	"github.com/shredfs/shredfs"
	"github.com/stretchr/testify/assert"
)

func TestRandomFillSuffix_RespectsRequestedLength(t *testing.T) {
	s := randomFillSuffix(FreeSpaceNameMaxLen)
	assert.Len(t, s, FreeSpaceNameMaxLen)
	for _, c := range s {
		assert.Contains(t, fillNameCharset, string(c))
	}
}

func TestIsNameLengthSensitive_MatchesDocumentedErrnos(t *testing.T) {
	assert.True(t, isNameLengthSensitive(syscall.ENAMETOOLONG))
	assert.True(t, isNameLengthSensitive(syscall.ENOSPC))
	assert.True(t, isNameLengthSensitive(syscall.ENOENT))
	assert.True(t, isNameLengthSensitive(syscall.EINVAL))
	assert.True(t, isNameLengthSensitive(shredfs.ErrPathNotFound))
	assert.False(t, isNameLengthSensitive(syscall.EACCES))
}
