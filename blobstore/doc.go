// Package blobstore persists named snapshot blobs.
//
// Store is the interface for whole-blob reads and writes. Implementations
// must be safe for concurrent use and must return an error satisfying
// errors.Is(err, ErrNotFound) when a blob does not exist.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and ephemeral indexes
//   - LocalStore: one file per blob under a root directory
//   - CachingStore: read-through cache in front of any Store
//   - s3.Store: Amazon S3 with multipart uploads
//   - minio.Store: MinIO and other S3-compatible servers
//   - badger.Store: embedded Badger key-value database
package blobstore
