package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paperdesk/paperdesk-api/internal/domain"
	"github.com/paperdesk/paperdesk-api/internal/platform/logger"
	"github.com/paperdesk/paperdesk-api/internal/store"
)

// AuditStore implements store.AuditStore using PostgreSQL.
type AuditStore struct {
	db store.DBTX
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(db store.DBTX) *AuditStore {
	return &AuditStore{db: db}
}

// Append writes one audit entry. Metadata is stored as JSONB.
func (s *AuditStore) Append(ctx context.Context, entry *domain.AuditEntry) error {
	log := logger.FromContext(ctx)

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_log (id, owner_type, owner_id, action, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.OwnerType,
		entry.OwnerID,
		entry.Action,
		metadata,
		entry.CreatedAt,
	)
	if err != nil {
		log.Error("failed to append audit entry",
			"owner_type", entry.OwnerType,
			"owner_id", entry.OwnerID,
			"action", entry.Action,
			"error", err)
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}
