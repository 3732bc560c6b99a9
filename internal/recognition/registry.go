package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paperdesk/paperdesk-api/internal/events"
)

// ErrAlreadyInProgress is returned by StartTask when a live task already
// exists for the document. The caller should observe the existing task
// instead of starting another one.
var ErrAlreadyInProgress = errors.New("recognition already in progress for this document")

// ErrRegistryClosed is returned by StartTask after Close has been called.
var ErrRegistryClosed = errors.New("recognition registry is closed")

// SubmissionError wraps a failure to submit a job to the engine. It is the
// only asynchronous-subsystem error surfaced synchronously to a caller; no
// task record exists when it is returned.
type SubmissionError struct {
	Err error
}

// Error implements the error interface.
func (e *SubmissionError) Error() string {
	return fmt.Sprintf("recognition submission failed: %v", e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Config holds the registry's timing knobs.
type Config struct {
	// PollInterval is the delay between poll rounds.
	PollInterval time.Duration

	// PollTimeout is the network-level timeout for a single poll request.
	// A timed-out poll is treated as transient and retried next round.
	PollTimeout time.Duration

	// EstimatedDuration is the assumed total job duration used for the
	// heuristic progress estimate.
	EstimatedDuration time.Duration
}

// DefaultConfig returns a Config calibrated against the observed engine:
// jobs take tens of seconds, so progress is estimated against a one-minute
// duration and polled every five seconds.
func DefaultConfig() Config {
	return Config{
		PollInterval:      5 * time.Second,
		PollTimeout:       15 * time.Second,
		EstimatedDuration: 60 * time.Second,
	}
}

// StartRequest carries the inputs for starting a recognition task.
type StartRequest struct {
	DocumentID  string
	DisplayName string
	OwnerID     string
	SourceURL   string
	Options     *Options
}

// Validate checks the request for required fields.
func (r *StartRequest) Validate() error {
	if r.DocumentID == "" {
		return errors.New("document ID cannot be empty")
	}
	if r.OwnerID == "" {
		return errors.New("owner ID cannot be empty")
	}
	if r.SourceURL == "" {
		return errors.New("source URL cannot be empty")
	}
	return nil
}

// Registry tracks outstanding recognition tasks. It owns the only shared
// mutable state in the subsystem: a task map guarded by a mutex. All
// check-then-act sequences (duplicate detection in StartTask, the
// iterate-and-mutate of the poll loop) run under that mutex; network calls
// never do.
type Registry struct {
	engine Engine
	sink   ResultSink
	bus    *events.Bus
	cfg    Config
	logger *slog.Logger

	// now is the clock, injectable for tests.
	now func() time.Time

	mu       sync.Mutex
	tasks    map[string]*Record
	reserved map[string]struct{}
	polling  bool
	closed   bool

	loopCtx    context.Context
	cancelLoop context.CancelFunc
	wg         sync.WaitGroup
}

// NewRegistry creates a Registry. It returns an error if any required
// dependency is nil. The poll loop is not started here; it starts lazily
// when the first task is added and stops when the registry drains.
func NewRegistry(engine Engine, sink ResultSink, bus *events.Bus, cfg Config, logger *slog.Logger) (*Registry, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if sink == nil {
		return nil, errors.New("sink cannot be nil")
	}
	if bus == nil {
		return nil, errors.New("bus cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultConfig().PollTimeout
	}
	if cfg.EstimatedDuration <= 0 {
		cfg.EstimatedDuration = DefaultConfig().EstimatedDuration
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Registry{
		engine:     engine,
		sink:       sink,
		bus:        bus,
		cfg:        cfg,
		logger:     logger.With("component", "recognition_registry"),
		now:        time.Now,
		tasks:      make(map[string]*Record),
		reserved:   make(map[string]struct{}),
		loopCtx:    ctx,
		cancelLoop: cancel,
	}, nil
}

// StartTask submits a recognition job for the given document and registers
// a task tracking it. It fails with ErrAlreadyInProgress if a live task
// exists for the document, and with a *SubmissionError if the engine
// rejects the submission; in the latter case no record is created.
//
// The duplicate check and the record insertion share one critical section
// logically: the document is reserved under the lock before the submit
// call, so a concurrent StartTask for the same document fails immediately
// even while the submission is still on the wire.
func (r *Registry) StartTask(ctx context.Context, req StartRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrRegistryClosed
	}
	if r.liveLocked(req.DocumentID) {
		r.mu.Unlock()
		return "", ErrAlreadyInProgress
	}
	r.reserved[req.DocumentID] = struct{}{}
	r.mu.Unlock()

	jobID, err := r.engine.Submit(ctx, req.SourceURL, req.Options)

	r.mu.Lock()
	delete(r.reserved, req.DocumentID)
	if err != nil {
		r.mu.Unlock()
		r.logger.Error("recognition submission failed",
			"document_id", req.DocumentID,
			"display_name", req.DisplayName,
			"error", err)
		return "", &SubmissionError{Err: err}
	}

	started := r.now()
	rec := &Record{
		TaskID:        fmt.Sprintf("%s_%d", req.DocumentID, started.UnixMilli()),
		DocumentID:    req.DocumentID,
		DisplayName:   req.DisplayName,
		OwnerID:       req.OwnerID,
		ExternalJobID: jobID,
		Status:        StatusProcessing,
		Progress:      0,
		StartedAt:     started,
	}
	r.tasks[rec.TaskID] = rec

	startLoop := !r.polling
	if startLoop {
		r.polling = true
		r.wg.Add(1)
	}
	r.mu.Unlock()

	r.logger.Info("recognition task started",
		"task_id", rec.TaskID,
		"document_id", rec.DocumentID,
		"external_job_id", rec.ExternalJobID,
		"owner_id", rec.OwnerID)

	if startLoop {
		go r.pollLoop()
	}

	r.bus.Publish(events.Notification{
		Kind:       events.TaskAdded,
		TaskID:     rec.TaskID,
		DocumentID: rec.DocumentID,
	})

	return rec.TaskID, nil
}

// liveLocked reports whether a live task or an in-flight submission exists
// for the document. Caller must hold r.mu.
func (r *Registry) liveLocked(documentID string) bool {
	if _, ok := r.reserved[documentID]; ok {
		return true
	}
	for _, rec := range r.tasks {
		if rec.DocumentID == documentID {
			return true
		}
	}
	return false
}

// GetByDocument returns a copy of the live task for the given document.
func (r *Registry) GetByDocument(documentID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.tasks {
		if rec.DocumentID == documentID {
			return *rec, true
		}
	}
	return Record{}, false
}

// GetProgress returns the progress of the live task for the given
// document, or 0 when there is none. It never errors.
func (r *Registry) GetProgress(documentID string) int {
	rec, ok := r.GetByDocument(documentID)
	if !ok {
		return 0
	}
	return rec.Progress
}

// ListByOwner returns a snapshot of the live tasks belonging to the given
// owner. The returned slice is not a live view.
func (r *Registry) ListByOwner(ownerID string) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Record
	for _, rec := range r.tasks {
		if rec.OwnerID == ownerID {
			out = append(out, *rec)
		}
	}
	return out
}

// List returns a snapshot of all live tasks.
func (r *Registry) List() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.tasks))
	for _, rec := range r.tasks {
		out = append(out, *rec)
	}
	return out
}

// Remove stops tracking the given task. It is idempotent and purely local:
// the engine offers no cancellation endpoint, so an in-flight job keeps
// running remotely and its result is simply discarded.
func (r *Registry) Remove(taskID string) {
	r.mu.Lock()
	rec, ok := r.tasks[taskID]
	if ok {
		delete(r.tasks, taskID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.logger.Info("recognition task removed",
		"task_id", taskID,
		"document_id", rec.DocumentID,
		"status", rec.Status)

	r.bus.Publish(events.Notification{
		Kind:       events.TaskRemoved,
		TaskID:     taskID,
		DocumentID: rec.DocumentID,
	})
}

// Close stops the poll loop and rejects further StartTask calls. Tracked
// tasks are dropped; their remote jobs keep running unobserved.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancelLoop()
	r.wg.Wait()
}
