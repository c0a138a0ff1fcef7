// Package blobstore provides storage targets for lexkv backups.
//
// BlobStore is the interface for reading and writing named blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local file system, atomic via temp file and rename
//   - MemoryStore: in process, for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible servers
//
// # Streaming
//
// Backups are written through Create, which returns a WritableBlob. The
// blob only becomes visible when Close succeeds; Abort discards it. DB.Backup
// runs this sequence:
//
//	w, err := store.Create(ctx, "nightly.lxb")
//	if err != nil {
//	    return err
//	}
//	if _, err := db.WriteBackup(ctx, w); err != nil {
//	    _ = w.Abort(ctx)
//	    return err
//	}
//	return w.Close()
package blobstore
