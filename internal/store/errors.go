package store

import "errors"

// Sentinel errors returned by store implementations. Services translate
// these into their own error types where appropriate.
var (
	// ErrAttachmentNotFound is returned when an attachment row does not exist.
	ErrAttachmentNotFound = errors.New("attachment not found")

	// ErrRecognitionLinkNotFound is returned when a source document has no
	// current recognition mapping.
	ErrRecognitionLinkNotFound = errors.New("recognition link not found")

	// ErrBlobNotFound is returned when a blob does not exist at the given path.
	ErrBlobNotFound = errors.New("blob not found")
)
