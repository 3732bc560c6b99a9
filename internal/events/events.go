// Package events provides the in-process notification bus that observers
// use to learn about recognition task registry changes.
package events

// NotificationKind identifies which kind of registry mutation occurred.
type NotificationKind string

// Possible notification kinds.
const (
	// TaskAdded is sent when a new task enters the registry.
	TaskAdded NotificationKind = "task_added"

	// TaskUpdated is sent when a task's progress or status changes.
	TaskUpdated NotificationKind = "task_updated"

	// TaskRemoved is sent when a task leaves the registry, whether it
	// completed, failed, or was cancelled.
	TaskRemoved NotificationKind = "task_removed"

	// TaskFailed is sent in addition to TaskRemoved when a task was
	// removed because it failed, so observers can alert the user.
	TaskFailed NotificationKind = "task_failed"
)

// Notification is a minimal "something changed, re-pull" signal. It carries
// just enough to let observers decide whether they care; the registry is
// the source of truth for task state.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	TaskID     string           `json:"task_id"`
	DocumentID string           `json:"document_id"`

	// Err is set only for TaskFailed notifications.
	Err error `json:"-"`
}

// Subscriber receives registry change notifications. Delivery is
// synchronous; subscribers that need to do slow work should hand it off to
// their own goroutine.
type Subscriber func(Notification)
