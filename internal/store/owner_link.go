package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// OwnerLinkStore defines persistence for the letter <-> attachment
// association rows that make an attachment visible on its owning letter.
type OwnerLinkStore interface {
	// Link associates an attachment with the given letter.
	Link(ctx context.Context, ownerID string, attachmentID uuid.UUID) error

	// Unlink removes the association for the given attachment, whichever
	// letter it belongs to. Unlinking a missing association is a no-op.
	Unlink(ctx context.Context, attachmentID uuid.UUID) error

	// WithTx returns a new store instance that uses the provided transaction.
	WithTx(tx *sql.Tx) OwnerLinkStore
}
