package coordinator

import (
	"time"

	"github.com/ShayCichocki/dispatch/pkg/models"
)

// EventType represents the type of scheduler event.
type EventType string

const (
	// EventTaskQueued indicates a task entered the scheduling queue.
	EventTaskQueued EventType = "task_queued"
	// EventTaskDispatched indicates a task was handed to an agent.
	EventTaskDispatched EventType = "task_dispatched"
	// EventTaskCompleted indicates a task finished successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed terminally.
	EventTaskFailed EventType = "task_failed"
	// EventTaskRetrying indicates a failed task was scheduled for retry.
	EventTaskRetrying EventType = "task_retrying"
	// EventBreakerOpen indicates an agent type's circuit breaker opened.
	EventBreakerOpen EventType = "breaker_open"
	// EventCycleError indicates a scheduling cycle recovered from a panic.
	EventCycleError EventType = "cycle_error"
)

// Event represents a scheduler state change, consumed by the CLI and tests.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// AgentName is the agent involved, if applicable.
	AgentName string
	// AgentType is the breaker-accounting type for breaker events.
	AgentType string
	// Priority is the task's priority, for queue events.
	Priority models.Priority
	// RetryCount is the task's retry counter, for retry/failure events.
	RetryCount int
	// Message provides additional context about the event.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
