// Package filestore keeps attachment payloads on disk, addressed by the
// SHA-256 of their content. Metadata lives in the bbolt store.
package filestore

// BlobStore stores and retrieves attachment payloads by content hash.
type BlobStore interface {
	// Put writes the payload and returns its hash. It is idempotent:
	// putting the same bytes twice returns the same hash.
	Put(data []byte) (string, error)

	// Get retrieves the payload for the given hash.
	Get(hash string) ([]byte, error)
}
