package fs

import (
	"io"
	"os"
	"path/filepath"
)

// File is an open file of a blob or a restored database.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	Sync() error
	Stat() (os.FileInfo, error)
	Name() string
}

// FileSystem is what the local blob store and backup restore touch on disk:
// opening blobs, staging temp files next to their target, and renaming them
// into place.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Stat(name string) (os.FileInfo, error)
	ReadDir(name string) ([]os.DirEntry, error)

	MkdirAll(path string, perm os.FileMode) error
	CreateTemp(dir, pattern string) (File, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

// Default is the file system of the host.
var Default FileSystem = LocalFS{}

// LocalFS is the os package as a FileSystem.
type LocalFS struct{}

func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm)
}

func (LocalFS) Stat(name string) (os.FileInfo, error)      { return os.Stat(name) }
func (LocalFS) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }

func (LocalFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (LocalFS) CreateTemp(dir, pattern string) (File, error) { return os.CreateTemp(dir, pattern) }
func (LocalFS) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }
func (LocalFS) Remove(name string) error                     { return os.Remove(name) }

// Stage creates a temp file in the directory of target, creating the
// directory when missing. Finish it with Publish or Discard.
func Stage(fsys FileSystem, target, prefix string) (File, error) {
	dir := filepath.Dir(target)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return fsys.CreateTemp(dir, prefix+filepath.Base(target)+"-*")
}

// Publish syncs and closes a staged file and renames it over target. On
// failure the staged file is removed and target is left untouched.
func Publish(fsys FileSystem, f File, target string) error {
	tmp := f.Name()
	err := f.Sync()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = fsys.Rename(tmp, target)
	}
	if err != nil {
		_ = fsys.Remove(tmp)
	}
	return err
}

// Discard closes and removes a staged file.
func Discard(fsys FileSystem, f File) error {
	_ = f.Close()
	return fsys.Remove(f.Name())
}
