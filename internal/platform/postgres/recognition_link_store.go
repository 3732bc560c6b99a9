package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paperdesk/paperdesk-api/internal/platform/logger"
	"github.com/paperdesk/paperdesk-api/internal/store"
)

// RecognitionLinkStore implements store.RecognitionLinkStore using
// PostgreSQL. The table has a unique constraint on the source attachment,
// so the at-most-one-current-artifact invariant is enforced by the
// database as well as by the pipeline's ordering.
type RecognitionLinkStore struct {
	db store.DBTX
}

// NewRecognitionLinkStore creates a new RecognitionLinkStore.
func NewRecognitionLinkStore(db store.DBTX) *RecognitionLinkStore {
	return &RecognitionLinkStore{db: db}
}

// WithTx returns a new store instance that uses the provided transaction.
func (s *RecognitionLinkStore) WithTx(tx *sql.Tx) store.RecognitionLinkStore {
	return &RecognitionLinkStore{db: tx}
}

// GetRecognizedID returns the current recognition artifact for a source document.
func (s *RecognitionLinkStore) GetRecognizedID(ctx context.Context, sourceID string) (uuid.UUID, error) {
	query := `
		SELECT recognized_attachment_id
		FROM attachment_recognitions
		WHERE original_attachment_id = $1
	`

	var recognizedID uuid.UUID
	err := s.db.QueryRowContext(ctx, query, sourceID).Scan(&recognizedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, store.ErrRecognitionLinkNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get recognition link: %w", err)
	}

	return recognizedID, nil
}

// Set points the mapping for the given source document at the given
// artifact, creating the row if needed.
func (s *RecognitionLinkStore) Set(ctx context.Context, sourceID string, recognizedID uuid.UUID) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO attachment_recognitions (original_attachment_id, recognized_attachment_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (original_attachment_id)
		DO UPDATE SET recognized_attachment_id = EXCLUDED.recognized_attachment_id,
		              updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, sourceID, recognizedID, time.Now().UTC())
	if err != nil {
		log.Error("failed to set recognition link",
			"source_id", sourceID,
			"recognized_attachment_id", recognizedID,
			"error", err)
		return fmt.Errorf("failed to set recognition link: %w", err)
	}

	return nil
}
