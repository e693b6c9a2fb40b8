package shredfs_test

import (
	"errors"
	"syscall"
	"testing"

	"github.com/shredfs/shredfs"
	"github.com/stretchr/testify/assert"
)

func TestDriverError_UnwrapsToErrno(t *testing.T) {
	err := shredfs.NewDriverError(syscall.ENOSPC)
	assert.True(t, errors.Is(err, syscall.ENOSPC))
	assert.False(t, errors.Is(err, syscall.EACCES))
}

func TestDriverError_CustomMessageOverridesErrnoText(t *testing.T) {
	err := shredfs.NewDriverErrorWithMessage(syscall.EACCES, "opening volume handle")
	assert.Contains(t, err.Error(), "opening volume handle")
	assert.True(t, errors.Is(err, syscall.EACCES))
}

func TestWipeError_IsSentinelComparable(t *testing.T) {
	assert.True(t, errors.Is(shredfs.ErrPathNotFound, shredfs.ErrPathNotFound))
	assert.False(t, errors.Is(shredfs.ErrPathNotFound, shredfs.ErrAccessDenied))
}

func TestWipeError_WithMessagePreservesSentinel(t *testing.T) {
	wrapped := shredfs.ErrPathNotFound.WithMessage("/tmp/gone.txt")
	assert.True(t, errors.Is(wrapped, shredfs.ErrPathNotFound))
	assert.Contains(t, wrapped.Error(), "/tmp/gone.txt")
}

func TestWipeError_WrapErrorPreservesSentinel(t *testing.T) {
	cause := errors.New("device offline")
	wrapped := shredfs.ErrLocked.WrapError(cause)
	assert.True(t, errors.Is(wrapped, shredfs.ErrLocked))
	assert.Contains(t, wrapped.Error(), "device offline")
}
