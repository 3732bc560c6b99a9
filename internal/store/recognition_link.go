package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// RecognitionLinkStore defines persistence for the source-document to
// current-recognition-artifact mapping. A given source document has at most
// one mapping row at any time.
type RecognitionLinkStore interface {
	// GetRecognizedID returns the attachment ID of the current recognition
	// artifact for the given source document.
	// Returns ErrRecognitionLinkNotFound if no mapping exists.
	GetRecognizedID(ctx context.Context, sourceID string) (uuid.UUID, error)

	// Set points the mapping for the given source document at the given
	// artifact, creating the row if it does not exist yet.
	Set(ctx context.Context, sourceID string, recognizedID uuid.UUID) error

	// WithTx returns a new store instance that uses the provided transaction.
	WithTx(tx *sql.Tx) RecognitionLinkStore
}
