// Package gcs implements the blob store on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"

	appstore "github.com/paperdesk/paperdesk-api/internal/store"
)

// BlobStore implements store.BlobStore over one GCS bucket.
type BlobStore struct {
	bucket *storage.BucketHandle
	logger *slog.Logger
}

// NewBlobStore creates a BlobStore over the named bucket.
func NewBlobStore(client *storage.Client, bucket string, logger *slog.Logger) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client cannot be nil")
	}
	if bucket == "" {
		return nil, errors.New("bucket name cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &BlobStore{
		bucket: client.Bucket(bucket),
		logger: logger.With("component", "gcs_blob_store", "bucket", bucket),
	}, nil
}

// Put writes the given bytes at the given path, overwriting any existing object.
func (s *BlobStore) Put(ctx context.Context, path string, data []byte) error {
	w := s.bucket.Object(path).NewWriter(ctx)
	w.ContentType = "text/markdown"

	if _, err := w.Write(data); err != nil {
		// Close to release the writer; the write error is the one to report.
		_ = w.Close()
		return fmt.Errorf("failed to write blob %q: %w", path, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize blob %q: %w", path, err)
	}

	s.logger.Debug("blob stored", "path", path, "size_bytes", len(data))
	return nil
}

// Delete removes the object at the given path.
func (s *BlobStore) Delete(ctx context.Context, path string) error {
	err := s.bucket.Object(path).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return appstore.ErrBlobNotFound
		}
		return fmt.Errorf("failed to delete blob %q: %w", path, err)
	}

	s.logger.Debug("blob deleted", "path", path)
	return nil
}
