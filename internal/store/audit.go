package store

import (
	"context"

	"github.com/paperdesk/paperdesk-api/internal/domain"
)

// AuditStore defines the append-only audit-log sink. Appending is
// fire-and-forget from the caller's point of view: a failed append is
// logged but never unwinds the operation being audited.
type AuditStore interface {
	// Append writes one audit entry.
	Append(ctx context.Context, entry *domain.AuditEntry) error
}
