package events

import (
	"time"

	"github.com/google/uuid"
)

func newEvent(eventType EventType) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

// NewFileChangeEvent creates a file-change event for path.
func NewFileChangeEvent(path, operation string) *Event {
	event := newEvent(EventTypeFileChange)
	// FileChangeData only holds strings; conversion cannot fail.
	_ = event.SetFileChangeData(FileChangeData{Path: path, Operation: operation})
	return event
}

// NewTaskRunEvent creates a task-run event.
func NewTaskRunEvent(taskID, name string) *Event {
	event := newEvent(EventTypeTaskRun)
	_ = event.SetTaskRunData(TaskRunData{TaskID: taskID, Name: name})
	return event
}

// NewTaskCompleteEvent creates a task-complete event.
func NewTaskCompleteEvent(taskID, result string, success bool) *Event {
	event := newEvent(EventTypeTaskComplete)
	_ = event.SetTaskCompleteData(TaskCompleteData{TaskID: taskID, Result: result, Success: success})
	return event
}
