package namewipe_test

import (
	"testing"

	"github.com/shredfs/shredfs/extent"
	"github.com/shredfs/shredfs/namewipe"
	"github.com/shredfs/shredfs/volume"
	"github.com/shredfs/shredfs/volume/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// userPlatformVolume wraps a fake volume to force the non-admin code path,
// the way a real session without SeManageVolumePrivilege would see it.
type userPlatformVolume struct {
	*fake.Volume
}

func (userPlatformVolume) Platform() volume.Platform { return volume.PlatformWindowsUser }

func TestWipeName_ChangesPathTwice(t *testing.T) {
	v := fake.New(10, 4096, "NTFS")
	v.CreateResidentFile("/dir/secret.txt", []byte("hi"))

	newPath, err := namewipe.WipeName(v, "/dir/secret.txt")
	require.NoError(t, err)
	assert.NotEqual(t, "/dir/secret.txt", newPath)

	_, err = v.OpenFile("/dir/secret.txt", false)
	assert.Error(t, err)
	_, err = v.OpenFile(newPath, false)
	assert.NoError(t, err)
}

func TestWipeContents_AdminPathUsesClusterWipe(t *testing.T) {
	v := fake.New(50, 4096, "NTFS")
	v.CreateFile("/doc.txt", 2*4096, volume.Attributes{}, []extent.VCNRun{
		{NextVCN: 2, LCN: 10},
	})
	fh, err := v.OpenFile("/doc.txt", true)
	require.NoError(t, err)
	payload := make([]byte, 2*4096)
	for i := range payload {
		payload[i] = 0x55
	}
	_, err = fh.Write(payload)
	require.NoError(t, err)
	fh.Close()

	require.NoError(t, namewipe.WipeContents(v, "/doc.txt"))

	for _, c := range v.ReadCluster(10) {
		assert.Zero(t, c)
	}
	size, _ := func() (int64, error) {
		fh, err := v.OpenFile("/doc.txt", false)
		require.NoError(t, err)
		defer fh.Close()
		return fh.Size()
	}()
	assert.Zero(t, size)
}

func TestWipeContents_NonAdminFallsBackToBasicOverwrite(t *testing.T) {
	v := userPlatformVolume{fake.New(50, 4096, "NTFS")}
	v.CreateFile("/doc.txt", 4096, volume.Attributes{}, []extent.VCNRun{
		{NextVCN: 1, LCN: 10},
	})
	fh, err := v.OpenFile("/doc.txt", true)
	require.NoError(t, err)
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = 0x77
	}
	_, err = fh.Write(payload)
	require.NoError(t, err)
	fh.Close()

	require.NoError(t, namewipe.WipeContents(v, "/doc.txt"))

	for _, c := range v.ReadCluster(10) {
		assert.Zero(t, c)
	}
}

func TestDelete_ShredOverwritesRenamesAndRemoves(t *testing.T) {
	v := fake.New(50, 4096, "NTFS")
	v.CreateFile("/doc.txt", 4096, volume.Attributes{}, []extent.VCNRun{
		{NextVCN: 1, LCN: 10},
	})

	require.NoError(t, namewipe.Delete(v, "/doc.txt", true, false))

	for _, c := range v.ReadCluster(10) {
		assert.Zero(t, c)
	}
	assert.EqualValues(t, 50, v.FreeClusters())
}

func TestDelete_IgnoreMissing(t *testing.T) {
	v := fake.New(10, 4096, "NTFS")
	assert.NoError(t, namewipe.Delete(v, "/nope.txt", false, true))
	assert.NoError(t, namewipe.Delete(v, "/nope.txt", true, true))
}
