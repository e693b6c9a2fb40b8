// Package freespace fills a volume's free space with zeros, so that data
// from previously deleted files that the file system hasn't reused yet
// can no longer be recovered by reading raw clusters.
package freespace

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shredfs/shredfs"
	"github.com/shredfs/shredfs/volume"
)

// writeBlockSize is the chunk size used to fill each temporary file; it
// shrinks when the volume returns ErrOutOfSpace mid-write.
const writeBlockSize = 64 * 1024

// fat32MaxFileBytes is the largest file FAT32 can hold, rounded down by one
// write block so a final partial write never straddles the real 4 GiB-1
// limit.
const fat32MaxFileBytes = 4*1024*1024*1024 - writeBlockSize

// FreeSpaceNameMaxLen is the fill file's starting random-suffix length,
// chosen (per the original) to sit past documented per-file-system name
// limits so the fill file's name can't itself leak information about the
// volume it's hiding data on.
const FreeSpaceNameMaxLen = 185

// freeSpaceNameMinLen is the floor the suffix shrinks to before the
// creation error is finally surfaced instead of retried.
const freeSpaceNameMinLen = 5

// freeSpaceNameShrinkStep is how much shorter the suffix gets on each retry.
const freeSpaceNameShrinkStep = 5

// defaultIdleInterval is the throttle used when the caller passes a
// non-positive idleInterval to WipePath.
const defaultIdleInterval = 2 * time.Second

const fillNameCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomFillSuffix(length int) string {
	raw := make([]byte, length)
	_, _ = rand.Read(raw)
	var b strings.Builder
	b.Grow(length)
	for _, c := range raw {
		b.WriteByte(fillNameCharset[int(c)%len(fillNameCharset)])
	}
	return b.String()
}

// isNameLengthSensitive reports whether err is one of the errors after
// which createFillFile retries with a shorter random suffix: ENAMETOOLONG,
// ENOSPC, ENOENT, EINVAL, or shredfs.ErrPathNotFound. Any other error, such
// as a permission failure, is not retried.
func isNameLengthSensitive(err error) bool {
	return errors.Is(err, syscall.ENAMETOOLONG) ||
		errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, shredfs.ErrPathNotFound)
}

// createFillFile creates a temp file under dir named with a random suffix
// of up to FreeSpaceNameMaxLen characters, shrinking the suffix and
// retrying when the creation error looks name-length-related instead of
// giving up on the first failure.
func createFillFile(opener volume.Opener, dir string) (string, volume.FileHandle, error) {
	length := FreeSpaceNameMaxLen
	for {
		tmpPath := fmt.Sprintf("%s/.shredfs-fill-%s", dir, randomFillSuffix(length))
		fh, err := opener.CreateTempFile(tmpPath)
		if err == nil {
			return tmpPath, fh, nil
		}
		if isNameLengthSensitive(err) && length > freeSpaceNameMinLen {
			length -= freeSpaceNameShrinkStep
			if length < freeSpaceNameMinLen {
				length = freeSpaceNameMinLen
			}
			continue
		}
		return "", nil, err
	}
}

// Progress reports how far a WipePath run has gotten, for a caller driving a
// progress bar or ETA display.
type Progress struct {
	DoneFraction float64
	ETASeconds   int64
	FilesWritten int
	BytesWritten int64
}

// WipePath fills path's volume with zero-filled temporary files until it
// runs out of space (or ctx is canceled), then truncates and deletes every
// file it created. fatVolume should be true when path lives on a FAT32
// volume, which caps each fill file at one write block under 4 GiB. Progress is
// sent no more often than once per idleInterval of wall time; a
// non-positive idleInterval falls back to a 2-second default.
//
// It returns a channel of progress updates and a function the caller must
// call exactly once to learn the final error (nil on success), after the
// channel has been drained. This mirrors the producer/consumer shape of a
// progress-reporting iterator without blocking the caller on every write.
func WipePath(ctx context.Context, opener volume.Opener, path string, fatVolume bool, idleInterval time.Duration) (<-chan Progress, func() error) {
	if idleInterval <= 0 {
		idleInterval = defaultIdleInterval
	}

	ch := make(chan Progress)
	var finalErr error

	go func() {
		defer close(ch)
		finalErr = runWipePath(ctx, opener, path, fatVolume, idleInterval, ch)
	}()

	return ch, func() error { return finalErr }
}

type tempFile struct {
	path   string
	handle volume.FileHandle
}

func runWipePath(ctx context.Context, opener volume.Opener, path string, fatVolume bool, idleInterval time.Duration, progress chan<- Progress) (runErr error) {
	startFree, err := opener.FreeBytes(path)
	if err != nil {
		return err
	}

	var files []tempFile
	var totalBytes int64
	doneWiping := false
	startTime := time.Now()
	lastIdle := startTime

	blanks := make([]byte, writeBlockSize)

	// However the loop below exits -- normally, on cancellation, or on an
	// unexpected error -- every temp file it managed to create gets
	// truncated (when the run completed cleanly) and always closed and
	// removed, with every failure along the way folded into one error.
	defer func() {
		var result *multierror.Error
		if runErr != nil {
			result = multierror.Append(result, runErr)
		}
		for _, f := range files {
			if doneWiping {
				if err := f.handle.SetEndOfFile(0); err != nil {
					result = multierror.Append(result, fmt.Errorf("truncate %s: %w", f.path, err))
				}
			}
			if err := f.handle.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close %s: %w", f.path, err))
			}
			if err := opener.Delete(f.path); err != nil {
				result = multierror.Append(result, fmt.Errorf("delete %s: %w", f.path, err))
			}
		}
		runErr = result.ErrorOrNil()
	}()

outer:
	for {
		select {
		case <-ctx.Done():
			break outer
		default:
		}

		tmpPath, fh, err := createFillFile(opener, path)
		if err != nil {
			if errors.Is(err, volume.ErrOutOfSpace) {
				break outer
			}
			return err
		}
		files = append(files, tempFile{path: tmpPath, handle: fh})

		blockSize := len(blanks)
		var writtenThisFile int64

		for {
			select {
			case <-ctx.Done():
				break outer
			default:
			}

			if fatVolume && writtenThisFile+int64(blockSize) > fat32MaxFileBytes {
				break
			}

			n, err := fh.Write(blanks[:blockSize])
			if err != nil {
				if errors.Is(err, volume.ErrOutOfSpace) {
					if blockSize > 1 {
						blockSize /= 2
						continue
					}
					break
				}
				return err
			}
			writtenThisFile += int64(n)

			if time.Since(lastIdle) > idleInterval {
				p := estimateCompletion(startFree, totalBytes+writtenThisFile, startTime)
				p.FilesWritten = len(files)
				select {
				case progress <- p:
				default:
				}
				lastIdle = time.Now()
			}
		}

		// Push the written blocks out of the OS buffer cache and fsync the
		// file itself, then flush every other mounted file system's
		// buffers too -- the original does both a per-file fsync and a
		// volume-wide sync() on each rotation, not just a buffered flush.
		if err := fh.Flush(); err != nil {
			return err
		}
		if err := opener.SyncFilesystem(); err != nil {
			return err
		}
		totalBytes += writtenThisFile

		estimatedFree := startFree - totalBytes
		if estimatedFree < 2 {
			break outer
		}
		if writtenThisFile == 0 {
			break outer
		}
	}
	doneWiping = true
	return nil
}

// estimateCompletion reports fractional progress and a rough ETA, the way
// the original free-space filler's GUI hook does.
func estimateCompletion(startFreeBytes, doneBytes int64, start time.Time) Progress {
	if doneBytes < 0 {
		doneBytes = 0
	}
	remaining := startFreeBytes - doneBytes
	if remaining < 0 {
		remaining = 0
	}

	var doneFraction float64
	if startFreeBytes > 0 {
		doneFraction = float64(doneBytes) / float64(startFreeBytes+1)
	}

	elapsed := time.Since(start).Seconds()
	rate := float64(doneBytes) / (elapsed + 0.0001)
	etaSeconds := int64(float64(remaining) / (rate + 0.0001))

	return Progress{
		DoneFraction: doneFraction,
		ETASeconds:   etaSeconds,
		BytesWritten: doneBytes,
	}
}
