// Package s3 provides an S3 implementation of the blobstore.BlobStore
// interface for lexkv backups.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", "lexkv/backups")
//	if err != nil {
//	    return err
//	}
//	err = db.Backup(ctx, store, "nightly.lxb")
//
// # Features
//
//   - Range reads for streaming restores
//   - Multipart uploads with CRC32C checksums
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
