package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperdesk/paperdesk-api/internal/domain"
	"github.com/paperdesk/paperdesk-api/internal/events"
)

// fakeEngine is a scriptable Engine double.
type fakeEngine struct {
	mu        sync.Mutex
	submitErr error
	// submitGate, when set, blocks Submit until closed. Used to widen the
	// race window in concurrency tests.
	submitGate chan struct{}
	submits    int
	pollFn     func(jobID string) (PollResult, error)
	polls      int
}

func (e *fakeEngine) Submit(ctx context.Context, sourceURL string, opts *Options) (string, error) {
	e.mu.Lock()
	gate := e.submitGate
	e.mu.Unlock()
	if gate != nil {
		<-gate
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.submitErr != nil {
		return "", e.submitErr
	}
	e.submits++
	return fmt.Sprintf("J%d", e.submits), nil
}

func (e *fakeEngine) Poll(ctx context.Context, jobID string) (PollResult, error) {
	e.mu.Lock()
	e.polls++
	fn := e.pollFn
	e.mu.Unlock()
	if fn == nil {
		return PollResult{Status: "processing"}, nil
	}
	return fn(jobID)
}

// fakeSink records persisted results.
type fakeSink struct {
	mu      sync.Mutex
	err     error
	results []*domain.RecognitionResult
}

func (s *fakeSink) SaveResult(ctx context.Context, result *domain.RecognitionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results = append(s.results, result)
	return nil
}

func (s *fakeSink) saved() []*domain.RecognitionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.RecognitionResult(nil), s.results...)
}

// recorder collects bus notifications.
type recorder struct {
	mu    sync.Mutex
	notes []events.Notification
}

func (r *recorder) record(n events.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) kinds() []events.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]events.NotificationKind, 0, len(r.notes))
	for _, n := range r.notes {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRegistry builds a registry whose poll loop effectively never
// ticks on its own, so tests drive rounds manually via pollRound.
func newTestRegistry(t *testing.T, engine Engine, sink ResultSink) (*Registry, *events.Bus) {
	t.Helper()

	bus := events.NewBus(testLogger())
	reg, err := NewRegistry(engine, sink, bus, Config{
		PollInterval:      time.Hour,
		PollTimeout:       time.Second,
		EstimatedDuration: 60 * time.Second,
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	return reg, bus
}

func startRequest(doc string) StartRequest {
	return StartRequest{
		DocumentID:  doc,
		DisplayName: doc + ".pdf",
		OwnerID:     "letter-1",
		SourceURL:   "https://files.example.com/" + doc,
	}
}

func TestNewRegistry(t *testing.T) {
	bus := events.NewBus(testLogger())

	_, err := NewRegistry(nil, &fakeSink{}, bus, Config{}, testLogger())
	assert.Error(t, err)

	_, err = NewRegistry(&fakeEngine{}, nil, bus, Config{}, testLogger())
	assert.Error(t, err)

	_, err = NewRegistry(&fakeEngine{}, &fakeSink{}, nil, Config{}, testLogger())
	assert.Error(t, err)

	reg, err := NewRegistry(&fakeEngine{}, &fakeSink{}, bus, Config{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().PollInterval, reg.cfg.PollInterval)
	assert.Equal(t, DefaultConfig().EstimatedDuration, reg.cfg.EstimatedDuration)
	reg.Close()
}

func TestStartTask(t *testing.T) {
	t.Run("creates a processing record and notifies", func(t *testing.T) {
		engine := &fakeEngine{}
		reg, bus := newTestRegistry(t, engine, &fakeSink{})

		rec := &recorder{}
		bus.Subscribe(rec.record)

		taskID, err := reg.StartTask(context.Background(), startRequest("D1"))
		require.NoError(t, err)
		assert.NotEmpty(t, taskID)

		got, ok := reg.GetByDocument("D1")
		require.True(t, ok)
		assert.Equal(t, taskID, got.TaskID)
		assert.Equal(t, StatusProcessing, got.Status)
		assert.Equal(t, 0, got.Progress)
		assert.Equal(t, "J1", got.ExternalJobID)
		assert.Equal(t, "letter-1", got.OwnerID)

		assert.Equal(t, []events.NotificationKind{events.TaskAdded}, rec.kinds())
	})

	t.Run("second start for the same document fails", func(t *testing.T) {
		reg, _ := newTestRegistry(t, &fakeEngine{}, &fakeSink{})

		_, err := reg.StartTask(context.Background(), startRequest("D1"))
		require.NoError(t, err)

		_, err = reg.StartTask(context.Background(), startRequest("D1"))
		assert.ErrorIs(t, err, ErrAlreadyInProgress)

		// Still exactly one record for D1.
		assert.Len(t, reg.List(), 1)
	})

	t.Run("submission failure creates no record", func(t *testing.T) {
		cause := errors.New("service unavailable")
		engine := &fakeEngine{submitErr: cause}
		reg, bus := newTestRegistry(t, engine, &fakeSink{})

		rec := &recorder{}
		bus.Subscribe(rec.record)

		_, err := reg.StartTask(context.Background(), startRequest("D1"))

		var subErr *SubmissionError
		require.ErrorAs(t, err, &subErr)
		assert.ErrorIs(t, err, cause)

		_, ok := reg.GetByDocument("D1")
		assert.False(t, ok)
		assert.Empty(t, rec.kinds())

		// The document stays free for another attempt.
		engine.mu.Lock()
		engine.submitErr = nil
		engine.mu.Unlock()

		_, err = reg.StartTask(context.Background(), startRequest("D1"))
		assert.NoError(t, err)
	})

	t.Run("rejects invalid requests", func(t *testing.T) {
		reg, _ := newTestRegistry(t, &fakeEngine{}, &fakeSink{})

		_, err := reg.StartTask(context.Background(), StartRequest{OwnerID: "L", SourceURL: "u"})
		assert.Error(t, err)

		_, err = reg.StartTask(context.Background(), StartRequest{DocumentID: "D", OwnerID: "L"})
		assert.Error(t, err)
	})

	t.Run("rejected after close", func(t *testing.T) {
		reg, _ := newTestRegistry(t, &fakeEngine{}, &fakeSink{})
		reg.Close()

		_, err := reg.StartTask(context.Background(), startRequest("D1"))
		assert.ErrorIs(t, err, ErrRegistryClosed)
	})

	t.Run("concurrent starts for one document admit exactly one", func(t *testing.T) {
		engine := &fakeEngine{submitGate: make(chan struct{})}
		reg, _ := newTestRegistry(t, engine, &fakeSink{})

		const attempts = 16
		errs := make(chan error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := reg.StartTask(context.Background(), startRequest("D1"))
				errs <- err
			}()
		}

		// Let the racers pile up, then release the engine.
		time.Sleep(20 * time.Millisecond)
		close(engine.submitGate)
		wg.Wait()
		close(errs)

		var succeeded, rejected int
		for err := range errs {
			if err == nil {
				succeeded++
			} else if errors.Is(err, ErrAlreadyInProgress) {
				rejected++
			} else {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, attempts-1, rejected)
		assert.Len(t, reg.List(), 1)
	})
}

func TestRegistryLookups(t *testing.T) {
	reg, _ := newTestRegistry(t, &fakeEngine{}, &fakeSink{})

	_, err := reg.StartTask(context.Background(), StartRequest{
		DocumentID: "D1", DisplayName: "a.pdf", OwnerID: "letter-1",
		SourceURL: "https://files.example.com/a.pdf",
	})
	require.NoError(t, err)
	_, err = reg.StartTask(context.Background(), StartRequest{
		DocumentID: "D2", DisplayName: "b.pdf", OwnerID: "letter-2",
		SourceURL: "https://files.example.com/b.pdf",
	})
	require.NoError(t, err)

	t.Run("GetProgress returns zero for unknown documents", func(t *testing.T) {
		assert.Equal(t, 0, reg.GetProgress("unknown"))
	})

	t.Run("ListByOwner filters by owner", func(t *testing.T) {
		tasks := reg.ListByOwner("letter-1")
		require.Len(t, tasks, 1)
		assert.Equal(t, "D1", tasks[0].DocumentID)

		assert.Empty(t, reg.ListByOwner("letter-3"))
	})

	t.Run("ListByOwner returns a snapshot", func(t *testing.T) {
		tasks := reg.ListByOwner("letter-1")
		tasks[0].Progress = 77
		assert.Equal(t, 0, reg.GetProgress("D1"))
	})

	t.Run("List returns all tasks", func(t *testing.T) {
		assert.Len(t, reg.List(), 2)
	})
}

func TestRemove(t *testing.T) {
	reg, bus := newTestRegistry(t, &fakeEngine{}, &fakeSink{})

	taskID, err := reg.StartTask(context.Background(), startRequest("D1"))
	require.NoError(t, err)

	rec := &recorder{}
	bus.Subscribe(rec.record)

	reg.Remove(taskID)
	_, ok := reg.GetByDocument("D1")
	assert.False(t, ok)
	assert.Equal(t, []events.NotificationKind{events.TaskRemoved}, rec.kinds())

	// Idempotent: removing again notifies nobody.
	reg.Remove(taskID)
	assert.Equal(t, []events.NotificationKind{events.TaskRemoved}, rec.kinds())

	// The document can be recognized again.
	_, err = reg.StartTask(context.Background(), startRequest("D1"))
	assert.NoError(t, err)
}

func TestPollRoundProgress(t *testing.T) {
	engine := &fakeEngine{}
	reg, _ := newTestRegistry(t, engine, &fakeSink{})

	base := time.Now()
	reg.now = func() time.Time { return base }

	_, err := reg.StartTask(context.Background(), startRequest("D1"))
	require.NoError(t, err)

	t.Run("progress follows elapsed time", func(t *testing.T) {
		reg.now = func() time.Time { return base.Add(15 * time.Second) }
		reg.pollRound(context.Background())
		assert.Equal(t, 25, reg.GetProgress("D1"))

		reg.now = func() time.Time { return base.Add(30 * time.Second) }
		reg.pollRound(context.Background())
		assert.Equal(t, 50, reg.GetProgress("D1"))
	})

	t.Run("progress is capped below completion while processing", func(t *testing.T) {
		reg.now = func() time.Time { return base.Add(10 * time.Minute) }
		reg.pollRound(context.Background())
		assert.Equal(t, maxHeuristicProgress, reg.GetProgress("D1"))

		rec, ok := reg.GetByDocument("D1")
		require.True(t, ok)
		assert.Equal(t, StatusProcessing, rec.Status)
	})

	t.Run("progress never decreases", func(t *testing.T) {
		// A clock hiccup must not pull the estimate back down.
		reg.now = func() time.Time { return base.Add(5 * time.Second) }
		reg.pollRound(context.Background())
		assert.Equal(t, maxHeuristicProgress, reg.GetProgress("D1"))
	})
}

func TestPollRoundCompletion(t *testing.T) {
	engine := &fakeEngine{}
	sink := &fakeSink{}
	reg, bus := newTestRegistry(t, engine, sink)

	base := time.Now()
	reg.now = func() time.Time { return base }

	_, err := reg.StartTask(context.Background(), startRequest("D1"))
	require.NoError(t, err)

	rec := &recorder{}
	bus.Subscribe(rec.record)

	// Three not-ready rounds with increasing progress.
	var lastProgress int
	for i := 1; i <= 3; i++ {
		reg.now = func() time.Time { return base.Add(time.Duration(i) * 10 * time.Second) }
		reg.pollRound(context.Background())

		progress := reg.GetProgress("D1")
		assert.Greater(t, progress, lastProgress)
		assert.LessOrEqual(t, progress, maxHeuristicProgress)
		lastProgress = progress
	}

	// Fourth round: the job is done.
	engine.pollFn = func(jobID string) (PollResult, error) {
		return PollResult{Ready: true, Status: "complete", Markdown: "# Title\nBody"}, nil
	}
	reg.pollRound(context.Background())

	// The result reached the sink exactly once with the right payload.
	saved := sink.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "D1", saved[0].DocumentID)
	assert.Equal(t, "D1.pdf", saved[0].DocumentName)
	assert.Equal(t, "letter-1", saved[0].OwnerID)
	assert.Equal(t, "# Title\nBody", saved[0].Markdown)

	// The task is gone and observers heard about every mutation.
	_, ok := reg.GetByDocument("D1")
	assert.False(t, ok)

	kinds := rec.kinds()
	assert.Contains(t, kinds, events.TaskUpdated)
	assert.Equal(t, events.TaskRemoved, kinds[len(kinds)-1])
	assert.NotContains(t, kinds, events.TaskFailed)
}

func TestPollRoundFailure(t *testing.T) {
	t.Run("transport error removes the task as failed", func(t *testing.T) {
		engine := &fakeEngine{}
		reg, bus := newTestRegistry(t, engine, &fakeSink{})

		_, err := reg.StartTask(context.Background(), startRequest("D1"))
		require.NoError(t, err)

		rec := &recorder{}
		bus.Subscribe(rec.record)

		cause := errors.New("connection refused")
		engine.pollFn = func(jobID string) (PollResult, error) {
			return PollResult{}, cause
		}
		reg.pollRound(context.Background())

		_, ok := reg.GetByDocument("D1")
		assert.False(t, ok)

		kinds := rec.kinds()
		require.Len(t, kinds, 2)
		assert.Equal(t, events.TaskFailed, kinds[0])
		assert.Equal(t, events.TaskRemoved, kinds[1])
	})

	t.Run("poll timeout is transient", func(t *testing.T) {
		engine := &fakeEngine{}
		reg, _ := newTestRegistry(t, engine, &fakeSink{})

		_, err := reg.StartTask(context.Background(), startRequest("D1"))
		require.NoError(t, err)

		engine.pollFn = func(jobID string) (PollResult, error) {
			return PollResult{}, context.DeadlineExceeded
		}
		reg.pollRound(context.Background())

		rec, ok := reg.GetByDocument("D1")
		require.True(t, ok)
		assert.Equal(t, StatusProcessing, rec.Status)
	})

	t.Run("sink failure demotes completion to failure", func(t *testing.T) {
		engine := &fakeEngine{}
		sink := &fakeSink{err: errors.New("database down")}
		reg, bus := newTestRegistry(t, engine, sink)

		_, err := reg.StartTask(context.Background(), startRequest("D1"))
		require.NoError(t, err)

		rec := &recorder{}
		bus.Subscribe(rec.record)

		engine.pollFn = func(jobID string) (PollResult, error) {
			return PollResult{Ready: true, Status: "complete", Markdown: "text"}, nil
		}
		reg.pollRound(context.Background())

		_, ok := reg.GetByDocument("D1")
		assert.False(t, ok)
		assert.Contains(t, rec.kinds(), events.TaskFailed)
	})

	t.Run("result for a cancelled task is discarded", func(t *testing.T) {
		engine := &fakeEngine{}
		sink := &fakeSink{}
		reg, _ := newTestRegistry(t, engine, sink)

		taskID, err := reg.StartTask(context.Background(), startRequest("D1"))
		require.NoError(t, err)

		engine.pollFn = func(jobID string) (PollResult, error) {
			// Cancel mid-poll, before the outcome is applied.
			reg.Remove(taskID)
			return PollResult{Ready: true, Status: "complete", Markdown: "text"}, nil
		}
		reg.pollRound(context.Background())

		assert.Empty(t, sink.saved())
	})
}

func TestPollLoopLifecycle(t *testing.T) {
	engine := &fakeEngine{}
	sink := &fakeSink{}
	bus := events.NewBus(testLogger())

	reg, err := NewRegistry(engine, sink, bus, Config{
		PollInterval:      10 * time.Millisecond,
		PollTimeout:       time.Second,
		EstimatedDuration: 60 * time.Second,
	}, testLogger())
	require.NoError(t, err)
	defer reg.Close()

	engine.pollFn = func(jobID string) (PollResult, error) {
		return PollResult{Ready: true, Status: "complete", Markdown: "done"}, nil
	}

	_, err = reg.StartTask(context.Background(), startRequest("D1"))
	require.NoError(t, err)

	// The lazily started loop should complete and drain the task.
	require.Eventually(t, func() bool {
		return len(reg.List()) == 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Len(t, sink.saved(), 1)

	// The loop shut itself down on empty; starting another task revives it.
	require.Eventually(t, func() bool {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		return !reg.polling
	}, 2*time.Second, 5*time.Millisecond)

	_, err = reg.StartTask(context.Background(), startRequest("D2"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sink.saved()) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPollRoundPollsAllTasks(t *testing.T) {
	engine := &fakeEngine{}
	reg, _ := newTestRegistry(t, engine, &fakeSink{})

	for i := 0; i < 5; i++ {
		_, err := reg.StartTask(context.Background(), startRequest(fmt.Sprintf("D%d", i)))
		require.NoError(t, err)
	}

	reg.pollRound(context.Background())

	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Equal(t, 5, engine.polls)
}
