package store

import "context"

// BlobStore defines the binary object store holding attachment contents.
// Paths are chosen by the caller; the store has no versioning of its own.
type BlobStore interface {
	// Put writes the given bytes at the given path, overwriting any
	// existing object.
	Put(ctx context.Context, path string, data []byte) error

	// Delete removes the object at the given path.
	// Returns ErrBlobNotFound if no object exists there.
	Delete(ctx context.Context, path string) error
}
