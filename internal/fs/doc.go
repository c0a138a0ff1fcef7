// Package fs provides a small file system abstraction for fault injection.
//
// Production code uses [Default], which is [LocalFS]. Tests wrap it in a
// [FaultyFS] to make writes, syncs, closes or renames fail for chosen files:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("backup", fs.Fault{FailAfterBytes: 1024})
//
// Operations take no context. Local file calls are not interruptible at the
// syscall level; remote storage goes through blobstore, which does.
package fs
