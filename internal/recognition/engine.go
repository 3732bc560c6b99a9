package recognition

import (
	"context"

	"github.com/paperdesk/paperdesk-api/internal/domain"
)

// PageRange narrows recognition to an inclusive 1-based page interval.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Options narrows the work submitted to the engine. A nil Options means
// "recognize the whole document".
type Options struct {
	// PageRange limits recognition to the given pages. Takes precedence
	// over MaxPages when both are set.
	PageRange *PageRange `json:"page_range,omitempty"`

	// MaxPages limits recognition to the first N pages.
	MaxPages int `json:"max_pages,omitempty"`
}

// PollResult is the engine's answer to a status poll.
type PollResult struct {
	// Ready reports whether the job has finished successfully.
	Ready bool

	// Status is the engine's own status string, carried for logging only.
	Status string

	// Markdown holds the recognized text when Ready is true.
	Markdown string
}

// Engine is the external recognition service, reduced to its submit/poll
// contract. The engine offers no cancellation endpoint; once submitted, a
// job runs to completion on the remote side regardless of local state.
type Engine interface {
	// Submit starts a recognition job for the document at sourceURL and
	// returns the engine's job ID used for subsequent polls.
	Submit(ctx context.Context, sourceURL string, opts *Options) (string, error)

	// Poll queries the status of a previously submitted job. A returned
	// error means the job or the service failed; "not ready yet" is not an
	// error.
	Poll(ctx context.Context, jobID string) (PollResult, error)
}

// ResultSink receives the payload of a completed job and makes it durable.
// It is invoked at most once per task, before the task leaves the registry.
type ResultSink interface {
	SaveResult(ctx context.Context, result *domain.RecognitionResult) error
}
