package fake

import (
	"io"
	"testing"

	"github.com/shredfs/shredfs/extent"
	"github.com/shredfs/shredfs/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFile_MarksExtentsAllocated(t *testing.T) {
	v := New(1000, 4096, "NTFS")
	v.CreateFile("/doc.txt", 3*4096, volume.Attributes{}, []extent.VCNRun{
		{NextVCN: 3, LCN: 100},
	})

	bm, err := v.Bitmap(1000)
	require.NoError(t, err)
	assert.True(t, bm.Get(100))
	assert.True(t, bm.Get(101))
	assert.True(t, bm.Get(102))
	assert.False(t, bm.Get(103))
}

func TestFileHandle_WriteInPlaceVisibleOnArena(t *testing.T) {
	v := New(1000, 4096, "NTFS")
	v.CreateFile("/doc.txt", 4096, volume.Attributes{}, []extent.VCNRun{
		{NextVCN: 1, LCN: 50},
	})

	fh, err := v.OpenFile("/doc.txt", true)
	require.NoError(t, err)

	zeros := make([]byte, 4096)
	n, err := fh.Write(zeros)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)

	got := v.ReadCluster(50)
	assert.Equal(t, zeros, got)
}

func TestFileHandle_ReadReturnsWrittenBytes(t *testing.T) {
	v := New(1000, 4096, "NTFS")
	v.CreateFile("/doc.txt", 4096, volume.Attributes{}, []extent.VCNRun{
		{NextVCN: 1, LCN: 50},
	})
	fh, err := v.OpenFile("/doc.txt", true)
	require.NoError(t, err)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = 0xAB
	}
	_, err = fh.Write(payload)
	require.NoError(t, err)

	_, err = fh.Seek(0, io.SeekStart)
	require.NoError(t, err)
	back := make([]byte, 4096)
	_, err = io.ReadFull(fh, back)
	require.NoError(t, err)
	assert.Equal(t, payload, back)
}

func TestTempFile_WriteTriggersAllocation(t *testing.T) {
	v := New(10, 4096, "NTFS")
	fh, err := v.CreateTempFile("/tmp1")
	require.NoError(t, err)

	n, err := fh.Write(make([]byte, 3*4096))
	require.NoError(t, err)
	assert.Equal(t, 3*4096, n)

	_, extents, err := fh.Extents(false)
	require.NoError(t, err)
	assert.EqualValues(t, 3, extent.SumLengths(extents))
	assert.EqualValues(t, 7, v.FreeClusters())
}

func TestMoveFile_RelocatesClustersAndContent(t *testing.T) {
	v := New(20, 4096, "NTFS")
	f := v.CreateFile("/doc.txt", 4096, volume.Attributes{}, []extent.VCNRun{
		{NextVCN: 1, LCN: 5},
	})
	fh, err := v.OpenFile("/doc.txt", true)
	require.NoError(t, err)
	payload := make([]byte, 4096)
	payload[0] = 0x42
	_, err = fh.Write(payload)
	require.NoError(t, err)

	err = v.MoveFile(f, 0, extent.LCN(15), 1)
	require.NoError(t, err)

	bm, _ := v.Bitmap(20)
	assert.False(t, bm.Get(5))
	assert.True(t, bm.Get(15))
	assert.Equal(t, byte(0x42), v.ReadCluster(15)[0])

	_, extents, _ := f.Extents(false)
	assert.Equal(t, extent.List{{Start: 15, End: 15}}, extents)
}

func TestMoveFile_FailsWhenDestinationOccupied(t *testing.T) {
	v := New(20, 4096, "NTFS")
	f := v.CreateFile("/doc.txt", 4096, volume.Attributes{}, []extent.VCNRun{
		{NextVCN: 1, LCN: 5},
	})
	v.SpikeCluster(15)

	err := v.MoveFile(f, 0, extent.LCN(15), 1)
	assert.Error(t, err)
}

func TestSetEndOfFile_ReleasesTrailingClusters(t *testing.T) {
	v := New(20, 4096, "NTFS")
	f := v.CreateFile("/doc.txt", 3*4096, volume.Attributes{}, []extent.VCNRun{
		{NextVCN: 3, LCN: 0},
	})

	require.NoError(t, f.SetEndOfFile(4096))

	bm, _ := v.Bitmap(20)
	assert.True(t, bm.Get(0))
	assert.False(t, bm.Get(1))
	assert.False(t, bm.Get(2))
}

func TestDelete_FreesClusters(t *testing.T) {
	v := New(20, 4096, "NTFS")
	v.CreateFile("/doc.txt", 2*4096, volume.Attributes{}, []extent.VCNRun{
		{NextVCN: 2, LCN: 3},
	})

	require.NoError(t, v.Delete("/doc.txt"))

	assert.EqualValues(t, 20, v.FreeClusters())
	_, err := v.OpenFile("/doc.txt", false)
	assert.Error(t, err)
}

func TestResidentFile_ReadWrite(t *testing.T) {
	v := New(20, 4096, "NTFS")
	v.CreateResidentFile("/tiny.txt", []byte("hello"))

	fh, err := v.OpenFile("/tiny.txt", true)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(fh, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	_, err = fh.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = fh.Write([]byte("HELLO"))
	require.NoError(t, err)

	size, _ := fh.Size()
	assert.EqualValues(t, 5, size)
}
