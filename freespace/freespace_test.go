package freespace_test

import (
	"context"
	"testing"

	"github.com/shredfs/shredfs/freespace"
	"github.com/shredfs/shredfs/volume/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan freespace.Progress) []freespace.Progress {
	var out []freespace.Progress
	for p := range ch {
		out = append(out, p)
	}
	return out
}

func TestWipePath_FillsUntilOutOfSpaceThenCleansUp(t *testing.T) {
	v := fake.New(16, 4096, "NTFS")

	ch, wait := freespace.WipePath(context.Background(), v, "/", false, 0)
	drain(ch)
	require.NoError(t, wait())

	assert.EqualValues(t, 16, v.FreeClusters(), "all temp files must be deleted, freeing every cluster back")
}

func TestWipePath_RespectsCancellation(t *testing.T) {
	v := fake.New(100000, 4096, "NTFS")
	ctx, cancel := context.WithCancel(context.Background())

	ch, wait := freespace.WipePath(ctx, v, "/", false, 0)
	// Cancel almost immediately; the run should still clean up whatever it
	// managed to create before noticing.
	cancel()
	drain(ch)
	require.NoError(t, wait())

	assert.EqualValues(t, 100000, v.FreeClusters())
}

func TestWipePath_FAT32ModeCleansUp(t *testing.T) {
	v := fake.New(64, 4096, "FAT32")

	ch, wait := freespace.WipePath(context.Background(), v, "/", true, 0)
	drain(ch)
	require.NoError(t, wait())

	assert.EqualValues(t, 64, v.FreeClusters())
}
