package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paperdesk/paperdesk-api/internal/domain"
	"github.com/paperdesk/paperdesk-api/internal/store"
)

// OwnerType of the letter aggregate in audit entries.
const ownerTypeLetter = "letter"

// PipelineError wraps a failure inside the persistence pipeline with the
// step it occurred in. Compensation has already run (or been attempted) by
// the time this is returned.
type PipelineError struct {
	// Step is the pipeline step that failed (e.g. "store_blob", "link_owner").
	Step string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for PipelineError.
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("recognition pipeline %s failed: %s: %v", e.Step, e.Message, e.Err)
	}
	return fmt.Sprintf("recognition pipeline %s failed: %s", e.Step, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// RecognitionPipeline persists a completed recognition result: it stores
// the text as a new artifact, links it to the owning letter, repoints the
// document's current-recognition mapping, retires the previous artifact if
// one existed, and appends an audit entry.
//
// The durable stores offer single-row atomicity only, except that the
// owner link and the mapping repoint share one database transaction. Every
// write after the blob upload therefore carries an explicit compensating
// action so a mid-pipeline failure never leaves an orphan artifact or a
// dangling mapping. Compensation is best effort: if it fails too, the
// inconsistency is logged loudly and the original error still propagates.
type RecognitionPipeline struct {
	attachments store.AttachmentStore
	ownerLinks  store.OwnerLinkStore
	recLinks    store.RecognitionLinkStore
	audit       store.AuditStore
	blobs       store.BlobStore
	tx          store.Transactor
	logger      *slog.Logger

	// now returns the current unix milliseconds for storage path naming,
	// injectable for tests.
	nowMillis func() int64
}

// NewRecognitionPipeline creates a RecognitionPipeline.
// It returns an error if any of the required dependencies are nil.
func NewRecognitionPipeline(
	attachments store.AttachmentStore,
	ownerLinks store.OwnerLinkStore,
	recLinks store.RecognitionLinkStore,
	audit store.AuditStore,
	blobs store.BlobStore,
	tx store.Transactor,
	logger *slog.Logger,
) (*RecognitionPipeline, error) {
	if attachments == nil {
		return nil, errors.New("attachment store cannot be nil")
	}
	if ownerLinks == nil {
		return nil, errors.New("owner link store cannot be nil")
	}
	if recLinks == nil {
		return nil, errors.New("recognition link store cannot be nil")
	}
	if audit == nil {
		return nil, errors.New("audit store cannot be nil")
	}
	if blobs == nil {
		return nil, errors.New("blob store cannot be nil")
	}
	if tx == nil {
		return nil, errors.New("transactor cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RecognitionPipeline{
		attachments: attachments,
		ownerLinks:  ownerLinks,
		recLinks:    recLinks,
		audit:       audit,
		blobs:       blobs,
		tx:          tx,
		logger:      logger.With("component", "recognition_pipeline"),
		nowMillis:   nil,
	}, nil
}

// SaveResult implements recognition.ResultSink. Steps, in order:
//
//  1. look up the current artifact for the document, if any
//  2. upload the markdown blob and create the new artifact row
//  3. link the new artifact to the owning letter       } one transaction
//  4. repoint the document's recognition mapping       }
//  5. retire the old artifact (unlink, delete blob, delete row)
//  6. append an audit entry (best effort)
func (p *RecognitionPipeline) SaveResult(ctx context.Context, result *domain.RecognitionResult) error {
	if err := result.Validate(); err != nil {
		return &PipelineError{Step: "validate", Message: "invalid recognition result", Err: err}
	}

	logger := p.logger.With(
		"document_id", result.DocumentID,
		"owner_id", result.OwnerID,
	)

	// Step 1: find the artifact to supersede, if any.
	oldID, err := p.recLinks.GetRecognizedID(ctx, result.DocumentID)
	hadOld := true
	if err != nil {
		if !errors.Is(err, store.ErrRecognitionLinkNotFound) {
			return &PipelineError{Step: "lookup_previous", Message: "failed to look up previous artifact", Err: err}
		}
		hadOld = false
	}

	// Step 2: store the blob and its metadata row.
	att, err := p.storeArtifact(ctx, result)
	if err != nil {
		return err
	}

	logger = logger.With("attachment_id", att.ID)

	// Steps 3+4: make the artifact visible and current, atomically.
	err = p.tx.Transact(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := p.ownerLinks.WithTx(tx).Link(ctx, result.OwnerID, att.ID); err != nil {
			return fmt.Errorf("failed to link artifact to owner: %w", err)
		}
		if err := p.recLinks.WithTx(tx).Set(ctx, result.DocumentID, att.ID); err != nil {
			return fmt.Errorf("failed to set recognition mapping: %w", err)
		}
		return nil
	})
	if err != nil {
		// The new artifact must never survive as an orphan.
		p.discardArtifact(ctx, att, logger)
		return &PipelineError{Step: "link_artifact", Message: "failed to install new artifact", Err: err}
	}

	// Step 5: retire the superseded artifact.
	if hadOld {
		if err := p.retireArtifact(ctx, oldID, logger); err != nil {
			// The mapping already points at the new artifact; put it back
			// so it does not dangle onto a half-deleted one. The new
			// artifact stays linked to the owner and is superseded again
			// on the next successful run.
			if restoreErr := p.recLinks.Set(ctx, result.DocumentID, oldID); restoreErr != nil {
				logger.Error("INCONSISTENT STATE: failed to restore recognition mapping after retirement failure",
					"old_attachment_id", oldID,
					"retire_error", err,
					"restore_error", restoreErr)
			}
			return &PipelineError{Step: "retire_previous", Message: "failed to retire previous artifact", Err: err}
		}
	}

	// Step 6: audit, best effort.
	entry := domain.NewAuditEntry(ownerTypeLetter, result.OwnerID, domain.AuditActionAttachmentRecognized, map[string]any{
		"attachment_id": att.ID.String(),
		"name":          att.OriginalName,
		"size_bytes":    att.SizeBytes,
		"source_name":   result.DocumentName,
	})
	if err := p.audit.Append(ctx, entry); err != nil {
		logger.Error("failed to append audit entry", "error", err)
	}

	logger.Info("recognition artifact installed",
		"superseded", hadOld,
		"size_bytes", att.SizeBytes)

	return nil
}

// storeArtifact uploads the markdown and creates its metadata row. If the
// row creation fails the blob is deleted again.
func (p *RecognitionPipeline) storeArtifact(ctx context.Context, result *domain.RecognitionResult) (*domain.Attachment, error) {
	markdown := []byte(result.Markdown)
	storagePath := fmt.Sprintf("letters/%s/%d_recognized.md", result.OwnerID, p.millis())

	if err := p.blobs.Put(ctx, storagePath, markdown); err != nil {
		return nil, &PipelineError{Step: "store_blob", Message: "failed to upload artifact blob", Err: err}
	}

	att, err := domain.NewAttachment(
		artifactName(result.DocumentName),
		storagePath,
		"text/markdown",
		fmt.Sprintf("Recognized text from %s", result.DocumentName),
		int64(len(markdown)),
	)
	if err == nil {
		err = p.attachments.Create(ctx, att)
	}
	if err != nil {
		if delErr := p.blobs.Delete(ctx, storagePath); delErr != nil {
			p.logger.Error("failed to delete orphan artifact blob",
				"storage_path", storagePath,
				"error", delErr)
		}
		return nil, &PipelineError{Step: "create_metadata", Message: "failed to create artifact row", Err: err}
	}

	return att, nil
}

// discardArtifact removes a just-created artifact (row and blob) after a
// later step failed. Best effort; failures are logged as inconsistencies.
func (p *RecognitionPipeline) discardArtifact(ctx context.Context, att *domain.Attachment, logger *slog.Logger) {
	if err := p.attachments.Delete(ctx, att.ID); err != nil {
		logger.Error("INCONSISTENT STATE: failed to delete orphan artifact row",
			"attachment_id", att.ID,
			"error", err)
	}
	if err := p.blobs.Delete(ctx, att.StoragePath); err != nil {
		logger.Error("failed to delete orphan artifact blob",
			"storage_path", att.StoragePath,
			"error", err)
	}
}

// retireArtifact removes a superseded artifact: its owner association, its
// blob, and finally its metadata row.
func (p *RecognitionPipeline) retireArtifact(ctx context.Context, id uuid.UUID, logger *slog.Logger) error {
	old, err := p.attachments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrAttachmentNotFound) {
			// Mapping pointed at an already-deleted row; nothing to retire.
			logger.Warn("superseded artifact row already gone", "old_attachment_id", id)
			return nil
		}
		return fmt.Errorf("failed to load superseded artifact: %w", err)
	}

	if err := p.ownerLinks.Unlink(ctx, id); err != nil {
		return fmt.Errorf("failed to unlink superseded artifact: %w", err)
	}

	if err := p.blobs.Delete(ctx, old.StoragePath); err != nil && !errors.Is(err, store.ErrBlobNotFound) {
		return fmt.Errorf("failed to delete superseded blob: %w", err)
	}

	if err := p.attachments.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete superseded artifact row: %w", err)
	}

	logger.Info("superseded artifact retired", "old_attachment_id", id)
	return nil
}

// millis returns the current time in unix milliseconds.
func (p *RecognitionPipeline) millis() int64 {
	if p.nowMillis != nil {
		return p.nowMillis()
	}
	return time.Now().UnixMilli()
}

// artifactName derives the display name of the artifact from the source
// document name: the extension is replaced with a "_recognized.md" suffix.
func artifactName(documentName string) string {
	base := strings.TrimSuffix(documentName, path.Ext(documentName))
	if base == "" {
		base = "document"
	}
	return base + "_recognized.md"
}
