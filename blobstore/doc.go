// Package blobstore abstracts where record files are read from.
//
// # Built-in Implementations
//
//   - LocalStore: local directory, files are memory mapped
//   - MemoryStore: in-memory, for tests
//   - s3.Store: Amazon S3 (ranged reads, parallel prefetch of small objects)
//   - minio.Store: MinIO and other S3-compatible storage
//
// Blobs expose io.ReaderAt; NewReader wraps one for sequential decoding.
package blobstore
