package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by this subsystem.
const (
	AuditActionAttachmentRecognized = "attachment_recognized"
)

// AuditEntry describes one append-only audit-log row. Metadata is free-form
// and serialized to JSONB by the store.
type AuditEntry struct {
	ID        uuid.UUID      `json:"id"`
	OwnerType string         `json:"owner_type"`
	OwnerID   string         `json:"owner_id"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewAuditEntry creates an audit entry with a fresh ID and timestamp.
func NewAuditEntry(ownerType, ownerID, action string, metadata map[string]any) *AuditEntry {
	return &AuditEntry{
		ID:        uuid.New(),
		OwnerType: ownerType,
		OwnerID:   ownerID,
		Action:    action,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}
