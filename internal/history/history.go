// Package history records task execution outcomes to an append-only log.
// The scheduling core only appends; read access exists for operator
// inspection and is never consulted by scheduling decisions.
package history

import "time"

// Entry is one recorded execution outcome.
type Entry struct {
	// TaskID identifies the task (or graph node) that ran.
	TaskID string
	// AgentName is the agent the work was dispatched to.
	AgentName string
	// Status is the terminal-ish status string ("completed", "failed",
	// "retrying", ...).
	Status string
	// Detail carries the output or failure reason, possibly truncated.
	Detail string
	// RetryCount is the task's retry counter at record time.
	RetryCount int
	// StartedAt is when execution began.
	StartedAt time.Time
	// CompletedAt is when the outcome was observed.
	CompletedAt time.Time
}

// Sink accepts execution records. Record is fire-and-forget from the
// scheduler's perspective: implementations must not block on anything
// slower than a local write, and errors are logged, never propagated into
// scheduling decisions.
type Sink interface {
	Record(e Entry) error
}

// Nop is a Sink that discards everything. Used in tests and when history
// is disabled.
type Nop struct{}

// Record discards the entry.
func (Nop) Record(Entry) error { return nil }
