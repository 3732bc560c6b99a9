package recognition

import "time"

// Status represents the lifecycle state of a recognition task.
type Status string

// Possible task status values. There is no pending state: submission is
// synchronous from the caller's point of view, so a record is created
// already processing.
const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Record describes one outstanding recognition job. Records live only in
// the registry; once a task reaches a terminal state it is removed, and
// callers learn about the outcome through the events bus and the durable
// artifact.
type Record struct {
	// TaskID uniquely identifies the record within the registry.
	TaskID string `json:"task_id"`

	// DocumentID identifies the source attachment being recognized.
	// At most one live record exists per document at any time.
	DocumentID string `json:"document_id"`

	// DisplayName is the human-readable source document name, carried for
	// reporting only.
	DisplayName string `json:"display_name"`

	// OwnerID identifies the letter the source document belongs to.
	OwnerID string `json:"owner_id"`

	// ExternalJobID is the engine's handle for the job, used for polling.
	ExternalJobID string `json:"external_job_id"`

	// Status is the task's lifecycle state.
	Status Status `json:"status"`

	// Progress is a heuristic 0-100 estimate based on elapsed time, not a
	// ground-truth value from the engine. It stays below 100 until the
	// instant of completion.
	Progress int `json:"progress"`

	// Markdown holds the recognized text between the poll that observed
	// completion and the pipeline run. Never visible to callers.
	Markdown string `json:"-"`

	// Err holds the failure cause on failed tasks, also transient.
	Err error `json:"-"`

	// StartedAt is the submission timestamp, used for progress estimation.
	StartedAt time.Time `json:"started_at"`
}
