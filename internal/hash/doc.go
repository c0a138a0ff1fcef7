// Package hash provides the checksums used by persisted full-text snapshots.
//
// All checksums use CRC32-Castagnoli (CRC32C), which Go's hash/crc32 computes
// with hardware instructions where available.
//
//	checksum := hash.CRC32C(payload)
package hash
