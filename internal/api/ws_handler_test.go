package api

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperdesk/paperdesk-api/internal/events"
	"github.com/paperdesk/paperdesk-api/internal/recognition"
)

func TestTaskFeed(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewBus(log)

	registry, err := recognition.NewRegistry(&stubEngine{}, &stubSink{}, bus, recognition.Config{
		PollInterval: time.Hour,
	}, log)
	require.NoError(t, err)
	t.Cleanup(registry.Close)

	server := httptest.NewServer(NewTaskFeedHandler(registry, bus, log))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	readFrame := func() taskFeedMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg taskFeedMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	// Every connection opens with a snapshot.
	initial := readFrame()
	assert.Equal(t, "initial_tasks", initial.Type)
	assert.Empty(t, initial.Tasks)

	// A started task shows up as a frame carrying the new snapshot.
	taskID, err := registry.StartTask(context.Background(), recognition.StartRequest{
		DocumentID:  "A1",
		DisplayName: "scan.pdf",
		OwnerID:     "letter-1",
		SourceURL:   "https://files.example.com/scan.pdf",
	})
	require.NoError(t, err)

	added := readFrame()
	assert.Equal(t, string(events.TaskAdded), added.Type)
	assert.Equal(t, taskID, added.TaskID)
	assert.Equal(t, "A1", added.DocumentID)
	require.Len(t, added.Tasks, 1)
	assert.Equal(t, taskID, added.Tasks[0].TaskID)

	// Removal drains the snapshot again.
	registry.Remove(taskID)

	removed := readFrame()
	assert.Equal(t, string(events.TaskRemoved), removed.Type)
	assert.Equal(t, taskID, removed.TaskID)
	assert.Empty(t, removed.Tasks)
}
