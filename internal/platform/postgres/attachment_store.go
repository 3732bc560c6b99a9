package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/paperdesk/paperdesk-api/internal/domain"
	"github.com/paperdesk/paperdesk-api/internal/platform/logger"
	"github.com/paperdesk/paperdesk-api/internal/store"
)

// AttachmentStore implements store.AttachmentStore using PostgreSQL.
type AttachmentStore struct {
	db store.DBTX
}

// NewAttachmentStore creates a new AttachmentStore.
func NewAttachmentStore(db store.DBTX) *AttachmentStore {
	return &AttachmentStore{db: db}
}

// WithTx returns a new store instance that uses the provided transaction.
func (s *AttachmentStore) WithTx(tx *sql.Tx) store.AttachmentStore {
	return &AttachmentStore{db: tx}
}

// Create saves a new attachment row.
func (s *AttachmentStore) Create(ctx context.Context, att *domain.Attachment) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO attachments (id, original_name, storage_path, size_bytes, mime_type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		att.ID,
		att.OriginalName,
		att.StoragePath,
		att.SizeBytes,
		att.MimeType,
		att.Description,
		att.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create attachment",
			"attachment_id", att.ID,
			"error", err)
		return fmt.Errorf("failed to create attachment: %w", err)
	}

	return nil
}

// GetByID retrieves an attachment by its ID.
func (s *AttachmentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Attachment, error) {
	query := `
		SELECT id, original_name, storage_path, size_bytes, mime_type, description, created_at
		FROM attachments
		WHERE id = $1
	`

	var att domain.Attachment
	var description sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&att.ID,
		&att.OriginalName,
		&att.StoragePath,
		&att.SizeBytes,
		&att.MimeType,
		&description,
		&att.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAttachmentNotFound
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	att.Description = description.String

	return &att, nil
}

// Delete removes an attachment row. Deleting a missing row is a no-op.
func (s *AttachmentStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete attachment",
			"attachment_id", id,
			"error", err)
		return fmt.Errorf("failed to delete attachment: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		log.Debug("no attachment row to delete", "attachment_id", id)
	}

	return nil
}
