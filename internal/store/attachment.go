package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/paperdesk/paperdesk-api/internal/domain"
)

// AttachmentStore defines persistence for attachment metadata rows.
type AttachmentStore interface {
	// Create saves a new attachment row.
	Create(ctx context.Context, att *domain.Attachment) error

	// GetByID retrieves an attachment by its ID.
	// Returns ErrAttachmentNotFound if no row exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Attachment, error)

	// Delete removes an attachment row. Deleting a missing row is a no-op.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new store instance that uses the provided transaction.
	WithTx(tx *sql.Tx) AttachmentStore
}
