package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/paperdesk/paperdesk-api/internal/platform/logger"
	"github.com/paperdesk/paperdesk-api/internal/store"
)

// OwnerLinkStore implements store.OwnerLinkStore using PostgreSQL.
type OwnerLinkStore struct {
	db store.DBTX
}

// NewOwnerLinkStore creates a new OwnerLinkStore.
func NewOwnerLinkStore(db store.DBTX) *OwnerLinkStore {
	return &OwnerLinkStore{db: db}
}

// WithTx returns a new store instance that uses the provided transaction.
func (s *OwnerLinkStore) WithTx(tx *sql.Tx) store.OwnerLinkStore {
	return &OwnerLinkStore{db: tx}
}

// Link associates an attachment with the given letter.
func (s *OwnerLinkStore) Link(ctx context.Context, ownerID string, attachmentID uuid.UUID) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO letter_attachments (letter_id, attachment_id)
		VALUES ($1, $2)
	`

	_, err := s.db.ExecContext(ctx, query, ownerID, attachmentID)
	if err != nil {
		log.Error("failed to link attachment to letter",
			"letter_id", ownerID,
			"attachment_id", attachmentID,
			"error", err)
		return fmt.Errorf("failed to link attachment to letter: %w", err)
	}

	return nil
}

// Unlink removes the association for the given attachment.
func (s *OwnerLinkStore) Unlink(ctx context.Context, attachmentID uuid.UUID) error {
	log := logger.FromContext(ctx)

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM letter_attachments WHERE attachment_id = $1`, attachmentID)
	if err != nil {
		log.Error("failed to unlink attachment",
			"attachment_id", attachmentID,
			"error", err)
		return fmt.Errorf("failed to unlink attachment: %w", err)
	}

	return nil
}
