package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/paperdesk/paperdesk-api/internal/events"
	"github.com/paperdesk/paperdesk-api/internal/recognition"
)

// taskFeedMessage is one websocket frame: the mutation that occurred plus a
// fresh snapshot of the registry, so clients never need a second request.
type taskFeedMessage struct {
	Type       string         `json:"type"`
	TaskID     string         `json:"task_id,omitempty"`
	DocumentID string         `json:"document_id,omitempty"`
	Error      string         `json:"error,omitempty"`
	Tasks      []TaskResponse `json:"tasks"`
}

// TaskFeedHandler streams registry changes to UI observers over a
// websocket. Each connection gets an initial snapshot and then one message
// per registry mutation.
type TaskFeedHandler struct {
	registry *recognition.Registry
	bus      *events.Bus
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewTaskFeedHandler creates a new TaskFeedHandler.
func NewTaskFeedHandler(registry *recognition.Registry, bus *events.Bus, logger *slog.Logger) *TaskFeedHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &TaskFeedHandler{
		registry: registry,
		bus:      bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With("component", "task_feed"),
	}
}

// ServeHTTP handles GET /ws/recognition requests.
func (h *TaskFeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade to websocket", "error", err)
		return
	}

	// Bus delivery is synchronous, so hand notifications to a writer
	// goroutine through a buffered channel. A slow client drops
	// intermediate updates; every message carries a full snapshot, so
	// dropped ones cost nothing.
	notifs := make(chan events.Notification, 16)
	done := make(chan struct{})

	unsubscribe := h.bus.Subscribe(func(n events.Notification) {
		select {
		case notifs <- n:
		default:
		}
	})

	go h.writeLoop(conn, notifs, done)

	// Reader loop: clients send nothing meaningful; reading just detects
	// disconnection.
	go func() {
		defer func() {
			unsubscribe()
			close(done)
			if err := conn.Close(); err != nil {
				h.logger.Debug("failed to close websocket", "error", err)
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writeLoop sends the initial snapshot and then one frame per notification.
func (h *TaskFeedHandler) writeLoop(conn *websocket.Conn, notifs <-chan events.Notification, done <-chan struct{}) {
	if err := conn.WriteJSON(h.message(events.Notification{Kind: "initial_tasks"})); err != nil {
		h.logger.Debug("failed to write initial snapshot", "error", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case n := <-notifs:
			if err := conn.WriteJSON(h.message(n)); err != nil {
				h.logger.Debug("failed to write task feed message", "error", err)
				return
			}
		}
	}
}

// message builds one feed frame from a notification and a live snapshot.
func (h *TaskFeedHandler) message(n events.Notification) taskFeedMessage {
	records := h.registry.List()
	tasks := make([]TaskResponse, 0, len(records))
	for _, rec := range records {
		tasks = append(tasks, recordToResponse(rec))
	}

	msg := taskFeedMessage{
		Type:       string(n.Kind),
		TaskID:     n.TaskID,
		DocumentID: n.DocumentID,
		Tasks:      tasks,
	}
	if n.Err != nil {
		msg.Error = n.Err.Error()
	}
	return msg
}
