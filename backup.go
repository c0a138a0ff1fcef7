package lexkv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/hupe1980/lexkv/blobstore"
	"github.com/hupe1980/lexkv/internal/compress"
	lfs "github.com/hupe1980/lexkv/internal/fs"
)

// ErrBackupExists is returned by RestoreBackup when the target file exists.
var ErrBackupExists = errors.New("lexkv: restore target exists")

// WriteBackup writes a ZSTD-compressed, consistent copy of the database
// file to w. Full-text snapshots are included as of their last persist.
// It returns the number of uncompressed bytes.
func (db *DB) WriteBackup(ctx context.Context, w io.Writer) (int64, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}
	zw, err := compress.NewStreamWriter(w)
	if err != nil {
		return 0, err
	}
	n, err := db.eng.Backend().WriteTo(ctx, zw)
	if err != nil {
		_ = zw.Close()
		return n, fmt.Errorf("%w: backup: %w", ErrStorage, err)
	}
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("backup: %w", err)
	}
	return n, nil
}

// Backup streams a consistent copy of the database into bs under name. The
// blob only appears when the whole copy was written.
func (db *DB) Backup(ctx context.Context, bs blobstore.BlobStore, name string) error {
	w, err := bs.Create(ctx, name)
	if err != nil {
		return fmt.Errorf("backup %s: %w", name, err)
	}
	n, err := db.WriteBackup(ctx, w)
	if err != nil {
		_ = w.Abort(ctx)
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("backup %s: %w", name, err)
	}
	db.opts.logger.InfoContext(ctx, "backup written", "name", name, "bytes", n)
	return nil
}

// RestoreBackup writes the database stored in bs under name to path. The
// file appears atomically; an existing file is never overwritten.
func RestoreBackup(ctx context.Context, bs blobstore.BlobStore, name, path string) error {
	return restoreBackup(ctx, lfs.Default, bs, name, path)
}

func restoreBackup(ctx context.Context, fsys lfs.FileSystem, bs blobstore.BlobStore, name, path string) error {
	if _, err := fsys.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrBackupExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	b, err := bs.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("restore %s: %w", name, err)
	}
	defer func() { _ = b.Close() }()
	r, err := blobstore.NewReader(ctx, b)
	if err != nil {
		return fmt.Errorf("restore %s: %w", name, err)
	}
	defer func() { _ = r.Close() }()
	zr, err := compress.NewStreamReader(r)
	if err != nil {
		return fmt.Errorf("restore %s: %w", name, err)
	}
	defer func() { _ = zr.Close() }()

	tmp, err := lfs.Stage(fsys, path, ".restore-")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, zr); err != nil {
		_ = lfs.Discard(fsys, tmp)
		return fmt.Errorf("restore %s: %w", name, err)
	}
	return lfs.Publish(fsys, tmp, path)
}
