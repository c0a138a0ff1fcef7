package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	require.NoError(t, f.Close())

	tmpFile, err := lfs.CreateTemp(dir, ".tmp-*")
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())

	entries, err := lfs.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	renamed := filepath.Join(dir, "renamed.txt")
	require.NoError(t, lfs.Rename(fpath, renamed))
	_, err = lfs.Stat(fpath)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, lfs.Remove(renamed))
	require.NoError(t, lfs.Remove(tmpFile.Name()))
	entries, err = lfs.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFaultyFS_WriteLimit(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("limited", Fault{FailAfterBytes: 4})

	f, err := ffs.OpenFile(filepath.Join(t.TempDir(), "limited.bin"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("abcd"))
	require.NoError(t, err)
	_, err = f.Write([]byte("e"))
	assert.ErrorIs(t, err, ErrInjected)
}

func TestFaultyFS_SyncCloseRename(t *testing.T) {
	dir := t.TempDir()
	custom := os.ErrPermission
	ffs := NewFaultyFS(nil)
	ffs.AddRule("broken", Fault{FailAfterBytes: -1, FailOnSync: true, FailOnClose: true, FailOnRename: true, Err: custom})

	f, err := ffs.CreateTemp(dir, "broken-*")
	require.NoError(t, err)
	_, err = f.Write([]byte("data"))
	require.NoError(t, err)
	assert.ErrorIs(t, f.Sync(), custom)
	assert.ErrorIs(t, f.Close(), custom)

	assert.ErrorIs(t, ffs.Rename(f.Name(), filepath.Join(dir, "broken.final")), custom)

	ffs.Reset()
	require.NoError(t, ffs.Rename(f.Name(), filepath.Join(dir, "broken.final")))

	other, err := ffs.OpenFile(filepath.Join(dir, "fine"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, other.Sync())
	require.NoError(t, other.Close())
}

func TestStagePublish(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "restored.db")

	f, err := Stage(Default, target, ".restore-")
	require.NoError(t, err)
	assert.Equal(t, filepath.Dir(target), filepath.Dir(f.Name()))
	assert.Contains(t, filepath.Base(f.Name()), ".restore-restored.db-")
	_, err = f.Write([]byte("pages"))
	require.NoError(t, err)
	require.NoError(t, Publish(Default, f, target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "pages", string(data))
	_, err = os.Stat(f.Name())
	assert.ErrorIs(t, err, os.ErrNotExist)

	other, err := Stage(Default, target, ".restore-")
	require.NoError(t, err)
	require.NoError(t, Discard(Default, other))
	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPublish_FailureKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "blob.lxb")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))

	ffs := NewFaultyFS(nil)
	ffs.AddRule("blob.lxb", Fault{FailAfterBytes: -1, FailOnRename: true})
	f, err := Stage(ffs, target, ".tmp-")
	require.NoError(t, err)
	_, err = f.Write([]byte("new"))
	require.NoError(t, err)
	assert.ErrorIs(t, Publish(ffs, f, target), ErrInjected)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
