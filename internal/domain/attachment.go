package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Attachment
var (
	ErrEmptyAttachmentID   = errors.New("attachment ID cannot be empty")
	ErrEmptyAttachmentName = errors.New("attachment name cannot be empty")
	ErrEmptyStoragePath    = errors.New("attachment storage path cannot be empty")
)

// Attachment is the metadata row for a stored file. Both uploaded documents
// and recognition artifacts are attachments; an artifact is distinguished
// only by the attachment_recognitions mapping that points at it.
type Attachment struct {
	ID           uuid.UUID `json:"id"`
	OriginalName string    `json:"original_name"`
	StoragePath  string    `json:"storage_path"`
	SizeBytes    int64     `json:"size_bytes"`
	MimeType     string    `json:"mime_type"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewAttachment creates an attachment metadata row with a fresh ID and
// creation timestamp. Returns an error if validation fails.
func NewAttachment(originalName, storagePath, mimeType, description string, sizeBytes int64) (*Attachment, error) {
	att := &Attachment{
		ID:           uuid.New(),
		OriginalName: originalName,
		StoragePath:  storagePath,
		SizeBytes:    sizeBytes,
		MimeType:     mimeType,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
	}

	if err := att.Validate(); err != nil {
		return nil, err
	}

	return att, nil
}

// Validate checks if the Attachment has valid data.
func (a *Attachment) Validate() error {
	if a.ID == uuid.Nil {
		return ErrEmptyAttachmentID
	}

	if a.OriginalName == "" {
		return ErrEmptyAttachmentName
	}

	if a.StoragePath == "" {
		return ErrEmptyStoragePath
	}

	return nil
}
