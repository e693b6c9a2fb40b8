package wipe_test

import (
	"testing"

	"github.com/shredfs/shredfs/extent"
	"github.com/shredfs/shredfs/volume"
	"github.com/shredfs/shredfs/volume/fake"
	"github.com/shredfs/shredfs/wipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func TestFileWipe_RegularFile_WipesInPlace(t *testing.T) {
	v := fake.New(50, 4096, "NTFS")
	f := v.CreateFile("/doc.txt", 2*4096, volume.Attributes{}, []extent.VCNRun{
		{NextVCN: 2, LCN: 10},
	})
	fh, err := v.OpenFile("/doc.txt", true)
	require.NoError(t, err)
	payload := make([]byte, 2*4096)
	for i := range payload {
		payload[i] = 0x7A
	}
	_, err = fh.Write(payload)
	require.NoError(t, err)
	fh.Close()
	_ = f

	require.NoError(t, wipe.FileWipe(v, "/doc.txt"))

	assert.True(t, allZero(v.ReadCluster(10)))
	assert.True(t, allZero(v.ReadCluster(11)))
}

func TestFileWipe_SpecialFile_ChasesFreedClusters(t *testing.T) {
	v := fake.New(50, 4096, "NTFS")
	v.CreateFile("/doc.bin", 4*4096, volume.Attributes{Compressed: true}, []extent.VCNRun{
		{NextVCN: 2, LCN: 5},
		{NextVCN: 4, LCN: -1},
	})
	fh, err := v.OpenFile("/doc.bin", true)
	require.NoError(t, err)
	payload := make([]byte, 2*4096)
	for i := range payload {
		payload[i] = 0x99
	}
	_, err = fh.Write(payload)
	require.NoError(t, err)
	fh.Close()

	require.NoError(t, wipe.FileWipe(v, "/doc.bin"))

	assert.True(t, allZero(v.ReadCluster(5)))
	assert.True(t, allZero(v.ReadCluster(6)))

	bm, _ := v.Bitmap(50)
	assert.False(t, bm.Get(0))
	assert.False(t, bm.Get(1))
}

func TestFileWipe_UnsupportedFileSystem_Rejected(t *testing.T) {
	v := fake.New(10, 4096, "exFAT")
	v.CreateFile("/doc.txt", 4096, volume.Attributes{}, []extent.VCNRun{{NextVCN: 1, LCN: 0}})

	err := wipe.FileWipe(v, "/doc.txt")
	assert.Error(t, err)
}
