package domain

import "errors"

// Common validation errors for RecognitionResult
var (
	ErrEmptyResultDocumentID = errors.New("result document ID cannot be empty")
	ErrEmptyResultOwnerID    = errors.New("result owner ID cannot be empty")
	ErrEmptyResultMarkdown   = errors.New("result markdown cannot be empty")
)

// RecognitionResult is the transient payload of a completed recognition
// job, handed to the persistence pipeline. It exists only between the poll
// that observed completion and the end of the pipeline run; it is never
// stored or returned to callers.
type RecognitionResult struct {
	// DocumentID identifies the source attachment that was recognized.
	DocumentID string `json:"document_id"`

	// DocumentName is the human-readable name of the source attachment,
	// used to derive the artifact name and the audit metadata.
	DocumentName string `json:"document_name"`

	// OwnerID identifies the letter the source attachment belongs to.
	OwnerID string `json:"owner_id"`

	// Markdown is the recognized text produced by the engine.
	Markdown string `json:"markdown"`
}

// Validate checks if the RecognitionResult has valid data.
func (r *RecognitionResult) Validate() error {
	if r.DocumentID == "" {
		return ErrEmptyResultDocumentID
	}

	if r.OwnerID == "" {
		return ErrEmptyResultOwnerID
	}

	if r.Markdown == "" {
		return ErrEmptyResultMarkdown
	}

	return nil
}
