package taskqueue

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskType identifies the kind of deferred work a task carries.
type TaskType string

const (
	TaskMessageProcessing TaskType = "message_processing"
	TaskVideoProcessing   TaskType = "video_processing"
	TaskVideoAnalysis     TaskType = "video_analysis"
)

// TaskTypes lists every known type, used when the consumer iterates queues.
var TaskTypes = []TaskType{
	TaskMessageProcessing,
	TaskVideoProcessing,
	TaskVideoAnalysis,
}

// TaskPriority orders queues for the consumer. Lower value drains first.
type TaskPriority string

const (
	PriorityHigh   TaskPriority = "high"
	PriorityMedium TaskPriority = "medium"
	PriorityLow    TaskPriority = "low"
)

// Priorities lists priorities in descending drain order.
var Priorities = []TaskPriority{PriorityHigh, PriorityMedium, PriorityLow}

// Task is one unit of deferred work. Ownership transfers from producer to
// consumer at dequeue; a task is removed from the store the moment it is
// popped, so a consumer crash mid-processing loses it (at-most-once).
type Task struct {
	ID         string          `json:"id"`
	Type       TaskType        `json:"type"`
	Priority   TaskPriority    `json:"priority"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// MessagePayload is the payload of a TaskMessageProcessing task.
type MessagePayload struct {
	Message        string  `json:"message"`
	ConversationID string  `json:"conversation_id,omitempty"`
	UserID         string  `json:"user_id"`
	Timestamp      float64 `json:"timestamp,omitempty"`
}

// VideoProcessingPayload is the payload of a TaskVideoProcessing task.
type VideoProcessingPayload struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	UserID   string `json:"user_id"`
}

// VideoAnalysisPayload is the payload of a TaskVideoAnalysis task.
type VideoAnalysisPayload struct {
	FileID   string            `json:"file_id"`
	Analysis string            `json:"analysis"`
	Metadata map[string]string `json:"metadata,omitempty"`
	UserID   string            `json:"user_id"`
}

// DecodePayload decodes the raw payload into the variant matching the
// task's type tag.
func (t *Task) DecodePayload() (any, error) {
	switch t.Type {
	case TaskMessageProcessing:
		var p MessagePayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t.Type, err)
		}
		return &p, nil
	case TaskVideoProcessing:
		var p VideoProcessingPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t.Type, err)
		}
		return &p, nil
	case TaskVideoAnalysis:
		var p VideoAnalysisPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t.Type, err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown task type %q", t.Type)
	}
}

// QueueKey derives the store key for one (priority, type) list. Tasks of the
// same type but different priority live in physically separate lists.
func QueueKey(priority TaskPriority, taskType TaskType) string {
	return fmt.Sprintf("queue:%s:%s", priority, taskType)
}

// QueueKeys returns every (priority, type) key in descending priority order,
// the order the consumer must poll them in.
func QueueKeys() []string {
	keys := make([]string, 0, len(Priorities)*len(TaskTypes))
	for _, p := range Priorities {
		for _, t := range TaskTypes {
			keys = append(keys, QueueKey(p, t))
		}
	}
	return keys
}
