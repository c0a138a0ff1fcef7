// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible systems such as Ceph,
// SeaweedFS and Garage, without pulling in the AWS SDK.
//
// # Basic Usage
//
//	store, err := minio.Dial(minio.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	}, "my-bucket", "backups/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = db.Backup(ctx, store, "nightly.lxb")
//
// An existing *minio.Client can be wrapped with NewStore.
package minio
