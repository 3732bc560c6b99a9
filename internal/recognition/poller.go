package recognition

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paperdesk/paperdesk-api/internal/domain"
	"github.com/paperdesk/paperdesk-api/internal/events"
)

// maxHeuristicProgress caps the estimate while a task is still processing,
// so observers never see false completion.
const maxHeuristicProgress = 95

// pollItem is the per-task snapshot a round works on. It is taken under
// the registry lock so the round itself can run without holding it.
type pollItem struct {
	taskID        string
	documentID    string
	displayName   string
	ownerID       string
	externalJobID string
	progress      int
	changed       bool
}

// pollOutcome is the result of polling one task.
type pollOutcome struct {
	res PollResult
	err error
}

// pollLoop runs one poll round per tick until the registry drains or the
// registry is closed. It is started lazily by StartTask when the registry
// transitions from empty to non-empty, so no timer burns while there is
// nothing to poll.
func (r *Registry) pollLoop() {
	defer r.wg.Done()

	r.logger.Debug("poll loop started", "interval", r.cfg.PollInterval)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.loopCtx.Done():
			r.logger.Debug("poll loop stopped: registry closed")
			return

		case <-ticker.C:
			r.pollRound(r.loopCtx)

			r.mu.Lock()
			if len(r.tasks) == 0 && len(r.reserved) == 0 {
				r.polling = false
				r.mu.Unlock()
				r.logger.Debug("poll loop stopped: registry drained")
				return
			}
			r.mu.Unlock()
		}
	}
}

// pollRound visits every processing task once: recomputes its heuristic
// progress, polls the engine for all tasks in parallel, then applies the
// outcomes. Completed tasks run the result sink before leaving the
// registry; failed tasks leave immediately.
func (r *Registry) pollRound(ctx context.Context) {
	items := r.snapshotForPoll()
	if len(items) == 0 {
		return
	}

	for _, it := range items {
		if it.changed {
			r.bus.Publish(events.Notification{
				Kind:       events.TaskUpdated,
				TaskID:     it.taskID,
				DocumentID: it.documentID,
			})
		}
	}

	outcomes := make([]pollOutcome, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, it := range items {
		g.Go(func() error {
			pollCtx, cancel := context.WithTimeout(gctx, r.cfg.PollTimeout)
			defer cancel()

			res, err := r.engine.Poll(pollCtx, it.externalJobID)
			outcomes[i] = pollOutcome{res: res, err: err}
			return nil
		})
	}
	// Goroutines never return errors; Wait is just the join point.
	_ = g.Wait()

	for i, it := range items {
		r.applyOutcome(ctx, it, outcomes[i])
	}
}

// snapshotForPoll recomputes progress for every processing task under the
// lock and returns copies to poll against.
func (r *Registry) snapshotForPoll() []pollItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	items := make([]pollItem, 0, len(r.tasks))
	for _, rec := range r.tasks {
		if rec.Status != StatusProcessing {
			continue
		}

		elapsed := now.Sub(rec.StartedAt)
		estimate := int(elapsed * 100 / r.cfg.EstimatedDuration)
		if estimate > maxHeuristicProgress {
			estimate = maxHeuristicProgress
		}

		changed := estimate > rec.Progress
		if changed {
			rec.Progress = estimate
		}

		items = append(items, pollItem{
			taskID:        rec.TaskID,
			documentID:    rec.DocumentID,
			displayName:   rec.DisplayName,
			ownerID:       rec.OwnerID,
			externalJobID: rec.ExternalJobID,
			progress:      rec.Progress,
			changed:       changed,
		})
	}
	return items
}

// applyOutcome drives one task's state transition from a poll outcome.
func (r *Registry) applyOutcome(ctx context.Context, it pollItem, out pollOutcome) {
	logger := r.logger.With(
		"task_id", it.taskID,
		"document_id", it.documentID,
		"external_job_id", it.externalJobID,
	)

	switch {
	case isTransientPollError(out.err):
		// The poll itself timed out; the estimated duration already
		// tolerates a slow engine, so retry next round.
		logger.Warn("poll timed out, retrying next round", "error", out.err)

	case out.err != nil:
		logger.Error("poll transport error, marking task failed", "error", out.err)
		r.failTask(it, out.err)

	case out.res.Ready && out.res.Markdown != "":
		logger.Info("recognition completed", "engine_status", out.res.Status)
		r.completeTask(ctx, it, out.res.Markdown)

	default:
		logger.Debug("recognition not ready",
			"engine_status", out.res.Status,
			"progress", it.progress)
	}
}

// completeTask marks the task completed, runs the result sink, and removes
// the record. A sink failure demotes the task to failed: the user's
// recognize action did not fully succeed even though the engine did.
func (r *Registry) completeTask(ctx context.Context, it pollItem, markdown string) {
	r.mu.Lock()
	rec, ok := r.tasks[it.taskID]
	if !ok {
		// Cancelled while the poll was in flight; discard the result.
		r.mu.Unlock()
		return
	}
	rec.Status = StatusCompleted
	rec.Progress = 100
	rec.Markdown = markdown
	result := &domain.RecognitionResult{
		DocumentID:   rec.DocumentID,
		DocumentName: rec.DisplayName,
		OwnerID:      rec.OwnerID,
		Markdown:     markdown,
	}
	r.mu.Unlock()

	r.bus.Publish(events.Notification{
		Kind:       events.TaskUpdated,
		TaskID:     it.taskID,
		DocumentID: it.documentID,
	})

	if err := r.sink.SaveResult(ctx, result); err != nil {
		r.logger.Error("failed to persist recognition result",
			"task_id", it.taskID,
			"document_id", it.documentID,
			"error", err)
		r.failTask(it, err)
		return
	}

	r.logger.Info("recognition result persisted",
		"task_id", it.taskID,
		"document_id", it.documentID)

	r.mu.Lock()
	delete(r.tasks, it.taskID)
	r.mu.Unlock()

	r.bus.Publish(events.Notification{
		Kind:       events.TaskRemoved,
		TaskID:     it.taskID,
		DocumentID: it.documentID,
	})
}

// failTask marks the task failed and removes it. There is no retry: a
// transport error on poll is indistinguishable from a dead job here, and
// the engine keeps no state we could resume from.
func (r *Registry) failTask(it pollItem, cause error) {
	r.mu.Lock()
	rec, ok := r.tasks[it.taskID]
	if ok {
		rec.Status = StatusFailed
		rec.Err = cause
		delete(r.tasks, it.taskID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.bus.Publish(events.Notification{
		Kind:       events.TaskFailed,
		TaskID:     it.taskID,
		DocumentID: it.documentID,
		Err:        cause,
	})
	r.bus.Publish(events.Notification{
		Kind:       events.TaskRemoved,
		TaskID:     it.taskID,
		DocumentID: it.documentID,
	})
}

// isTransientPollError reports whether the poll failure was a network
// timeout rather than a service-level failure.
func isTransientPollError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
