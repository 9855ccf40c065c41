package events

import (
	"time"
)

// EventType represents the type of event published by the kernel.
type EventType string

const (
	// EventTypeFileChange indicates a VFS node was written, created, or deleted
	EventTypeFileChange EventType = "file-change"
	// EventTypeTaskRun indicates the scheduler is about to execute a task
	EventTypeTaskRun EventType = "task-run"
	// EventTypeTaskComplete indicates a scheduled task finished (successfully or not)
	EventTypeTaskComplete EventType = "task-complete"
)

// IsValid reports whether t is a known event type.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeFileChange, EventTypeTaskRun, EventTypeTaskComplete:
		return true
	}
	return false
}

// Event is a single notification on the bus.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data"`
}

// FileChangeData contains structured data for file-change events.
type FileChangeData struct {
	// Path is the absolute VFS path that changed
	Path string `json:"path"`
	// Operation is one of "write", "append", "mkdir", "delete"
	Operation string `json:"operation,omitempty"`
}

// TaskRunData contains structured data for task-run events.
type TaskRunData struct {
	TaskID string `json:"taskId"`
	Name   string `json:"name"`
}

// TaskCompleteData contains structured data for task-complete events.
type TaskCompleteData struct {
	TaskID string `json:"taskId"`
	// Result is the (truncated) result summary recorded on the task
	Result string `json:"result"`
	// Success is false when Result carries an error
	Success bool `json:"success"`
}
