// Package shredfs implements a secure, cluster-level file-erasure engine for
// NTFS/FAT volumes on Windows, with a portable fallback for POSIX systems.
package shredfs

import (
	"fmt"
	"syscall"
)

// DriverError is a wrapper around a system errno code, with a customizable
// error message. The platform adapters return it for OS call failures that
// do not map onto one of the named WipeError sentinels below.
type DriverError struct {
	ErrnoCode syscall.Errno
	message   string
}

// Error implements the `error` interface.
func (e *DriverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.ErrnoCode.Error()
}

// Unwrap lets callers use errors.Is(err, syscall.ENOSPC) and similar.
func (e *DriverError) Unwrap() error {
	return e.ErrnoCode
}

// NewDriverError creates a new DriverError with a default message derived
// from the system's error code.
func NewDriverError(errnoCode syscall.Errno) *DriverError {
	return &DriverError{ErrnoCode: errnoCode, message: errnoCode.Error()}
}

// NewDriverErrorWithMessage creates a new DriverError from a system error
// code with a custom message.
func NewDriverErrorWithMessage(errnoCode syscall.Errno, message string) *DriverError {
	return &DriverError{
		ErrnoCode: errnoCode,
		message:   fmt.Sprintf("%s: %s", errnoCode.Error(), message),
	}
}

// WipeError is a sentinel condition specific to the wipe engine, distinct
// from the generic errno wrapping in DriverError. Use errors.Is to test for
// one of these.
type WipeError string

// Error implements the `error` interface.
func (e WipeError) Error() string {
	return string(e)
}

// WithMessage returns a new error that reports as "<e>: <message>" while
// still satisfying errors.Is(err, e) via Unwrap.
func (e WipeError) WithMessage(message string) error {
	return &wrappedWipeError{message: message, cause: e}
}

// WrapError returns a new error that reports as "<e>: <err>" while still
// satisfying errors.Is(err, e) via Unwrap.
func (e WipeError) WrapError(err error) error {
	return &wrappedWipeError{message: err.Error(), cause: e}
}

type wrappedWipeError struct {
	message string
	cause   error
}

func (e *wrappedWipeError) Error() string {
	return fmt.Sprintf("%s: %s", e.cause.Error(), e.message)
}

func (e *wrappedWipeError) Unwrap() error {
	return e.cause
}

// Sentinel wipe conditions named in spec: a file on an unsupported file
// system, insufficient rights to open the volume for raw read/write, and a
// path that no longer exists.
const (
	ErrUnsupportedFileSystem = WipeError("unsupported file system")
	ErrAccessDenied          = WipeError("access denied")
	ErrPathNotFound          = WipeError("path not found")
	// ErrLocked corresponds to Windows error codes 32/33: another process has
	// the file open or has locked a byte range of it.
	ErrLocked = WipeError("file is locked by another process")
	// ErrBrokenSymlink corresponds to Windows error code 2 surfacing while
	// wiping the contents of what turned out to be a dangling symlink.
	ErrBrokenSymlink = WipeError("symlink target does not exist")
)
