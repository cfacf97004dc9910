package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusQueued indicates the task is waiting in the scheduling queue.
	TaskStatusQueued TaskStatus = "queued"
	// TaskStatusAdmitted indicates the task passed admission control.
	TaskStatusAdmitted TaskStatus = "admitted"
	// TaskStatusDispatched indicates the task has been handed to an agent.
	TaskStatusDispatched TaskStatus = "dispatched"
	// TaskStatusRunning indicates the agent is actively working on the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed terminally.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusRetrying indicates the task failed and is waiting for re-enqueue.
	TaskStatusRetrying TaskStatus = "retrying"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusAdmitted, TaskStatusDispatched,
		TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusRetrying:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Priority orders tasks in the scheduling queue. Lower values are more urgent.
type Priority int

const (
	// PriorityCritical is the most urgent tier.
	PriorityCritical Priority = iota
	// PriorityHigh is for time-sensitive work.
	PriorityHigh
	// PriorityNormal is the default tier.
	PriorityNormal
	// PriorityLow is for background work.
	PriorityLow
)

// String returns a human-readable representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}

// ParsePriority converts a string to a Priority.
// Unknown strings map to PriorityNormal.
func ParsePriority(s string) Priority {
	switch s {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Task represents a unit of work in the system.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description is the human-readable description of the work.
	Description string `json:"description"`
	// Type is a free-form tag describing the kind of task.
	Type string `json:"type,omitempty"`
	// Priority determines queue ordering. Lower values dispatch first.
	Priority Priority `json:"priority"`
	// RequiredCaps lists the capabilities an agent must have to run this task.
	RequiredCaps []Capability `json:"required_capabilities,omitempty"`
	// Tags are requested enhancement tags; agents matching one get a match bonus.
	Tags []string `json:"tags,omitempty"`
	// EstimatedMemoryMB is the expected memory footprint of this task.
	EstimatedMemoryMB uint64 `json:"estimated_memory_mb,omitempty"`
	// EstimatedRuntime is the expected duration, used for plan estimates.
	EstimatedRuntime time.Duration `json:"estimated_runtime,omitempty"`
	// MaxRuntime is the hard timeout enforced by the agent invoker.
	MaxRuntime time.Duration `json:"max_runtime,omitempty"`
	// RetryCount is the number of times this task has been retried.
	RetryCount int `json:"retry_count,omitempty"`
	// MaxRetries is the retry budget before the task fails terminally.
	MaxRetries int `json:"max_retries"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// Blocks lists task IDs that are waiting on this task.
	Blocks []string `json:"blocks,omitempty"`
	// Status is the current lifecycle state of the task.
	Status TaskStatus `json:"status"`
	// AssignedAgent is the name of the agent the task was dispatched to.
	AssignedAgent string `json:"assigned_agent,omitempty"`
	// Error contains the failure reason if the task failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.RequiredCaps != nil {
		cp.RequiredCaps = append([]Capability(nil), t.RequiredCaps...)
	}
	if t.Tags != nil {
		cp.Tags = append([]string(nil), t.Tags...)
	}
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.Blocks != nil {
		cp.Blocks = append([]string(nil), t.Blocks...)
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}
