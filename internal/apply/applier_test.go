//go:build !windows

package apply

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestSetModeOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	require.NoError(t, New(nil).SetMode(path, 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestSetOwnerToSelf(t *testing.T) {
	dir := t.TempDir()
	uid, gid := uint32(os.Getuid()), uint32(os.Getgid())

	require.NoError(t, New(afero.NewOsFs()).SetOwner(dir, uid, gid))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	stat := info.Sys().(*syscall.Stat_t)
	require.Equal(t, uid, stat.Uid)
	require.Equal(t, gid, stat.Gid)
}

func TestMissingPathErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	a := New(nil)

	err := a.SetMode(missing, 0o644)
	var modeErr *ModeError
	require.ErrorAs(t, err, &modeErr)
	require.Equal(t, missing, modeErr.Path)
	require.ErrorIs(t, err, os.ErrNotExist)

	// A failed chmod does not stop a chown attempt on the same path.
	err = a.SetOwner(missing, 0, 0)
	var ownErr *OwnershipError
	require.ErrorAs(t, err, &ownErr)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadOnlyFsRejectsMutation(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/data/f", []byte("x"), 0o600))
	a := New(afero.NewReadOnlyFs(base))

	err := a.SetMode("/data/f", 0o644)
	require.ErrorIs(t, err, syscall.EPERM)
	require.ErrorContains(t, err, "chmod /data/f to 0644")

	err = a.SetOwner("/data/f", 1000, 100)
	require.ErrorIs(t, err, syscall.EPERM)
	require.ErrorContains(t, err, "chown /data/f to 1000:100")
}

func TestSetModeOnMemFs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/tree/sub", 0o700))

	require.NoError(t, New(fsys).SetMode("/tree/sub", 0o755))

	info, err := fsys.Stat("/tree/sub")
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	require.True(t, info.IsDir())
}

// The largest id never reaches chown as -1.
func TestNativeIDNeverWrapsNegative(t *testing.T) {
	id, err := nativeID(math.MaxUint32)
	if strconv.IntSize == 32 {
		require.ErrorIs(t, err, ErrIDOutOfRange)
		return
	}
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint32), uint64(id))

	id, err = nativeID(0)
	require.NoError(t, err)
	require.Zero(t, id)
}
