// Package runner executes small state-machine graphs: named nodes bound to
// work functions, connected by guarded edges. It is a standalone execution
// primitive for workflows too stateful for a flat task batch.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ShayCichocki/dispatch/internal/history"
	"github.com/ShayCichocki/dispatch/internal/monitor"
)

const (
	// StartNode is the reserved entry sentinel. It carries no work.
	StartNode = "START"
	// EndNode is the reserved exit sentinel. Reaching it ends execution.
	EndNode = "END"
)

// DefaultMaxSteps caps graph walks so a cyclic graph always terminates.
const DefaultMaxSteps = 100

// ErrUnknownNode indicates an edge or walk referenced an undefined node.
var ErrUnknownNode = errors.New("unknown node")

// ErrStepLimit indicates the walk hit the iteration cap before reaching END.
var ErrStepLimit = errors.New("step limit reached")

// ErrMemoryPressure indicates a node was refused because available memory
// is below the safe threshold. Fail fast, never block waiting for memory.
var ErrMemoryPressure = errors.New("memory below safe threshold")

// ErrNoEdge indicates no outgoing edge's guard matched the current state.
var ErrNoEdge = errors.New("no matching edge")

// State is the mutable shared state a graph walk threads through its nodes
// and guards. Work functions may read and write it; the walk is sequential,
// so no locking is needed inside nodes.
type State map[string]interface{}

// WorkFunc is the work bound to a node.
type WorkFunc func(ctx context.Context, state State) error

// Guard decides whether an edge may be taken. A nil guard always matches.
type Guard func(state State) bool

type edge struct {
	to    string
	guard Guard
}

// StepRecord is one node execution in a walk's history.
type StepRecord struct {
	// Node is the executed node's name.
	Node string
	// StartedAt is when the node's work began.
	StartedAt time.Time
	// CompletedAt is when the node's work returned.
	CompletedAt time.Time
	// Err holds the work function's error, empty on success.
	Err string
}

// Runner is a graph of nodes and guarded edges. Build it with AddNode and
// AddEdge, then walk it with Execute. A Runner may be executed repeatedly;
// each walk appends to its history.
type Runner struct {
	mu      sync.Mutex
	nodes   map[string]WorkFunc
	edges   map[string][]edge
	steps   []StepRecord
	visited map[string]int

	sem      *semaphore.Weighted
	monitor  monitor.Monitor
	sink     history.Sink
	maxSteps int
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency sizes the admission semaphore shared by concurrent walks.
func WithConcurrency(n int64) Option {
	return func(r *Runner) { r.sem = semaphore.NewWeighted(n) }
}

// WithMonitor installs a resource pre-check run before each node.
func WithMonitor(m monitor.Monitor) Option {
	return func(r *Runner) { r.monitor = m }
}

// WithSink mirrors every step record to a history sink.
func WithSink(s history.Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithMaxSteps overrides the iteration cap.
func WithMaxSteps(n int) Option {
	return func(r *Runner) { r.maxSteps = n }
}

// New creates an empty runner with the START and END sentinels pre-defined.
func New(opts ...Option) *Runner {
	r := &Runner{
		nodes:    map[string]WorkFunc{StartNode: nil, EndNode: nil},
		edges:    make(map[string][]edge),
		visited:  make(map[string]int),
		sem:      semaphore.NewWeighted(1),
		sink:     history.Nop{},
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddNode binds a work function to a name. The sentinel names are reserved.
func (r *Runner) AddNode(name string, fn WorkFunc) error {
	if name == StartNode || name == EndNode {
		return fmt.Errorf("node name %q is reserved", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.nodes[name]; exists {
		return fmt.Errorf("node %q already defined", name)
	}
	r.nodes[name] = fn
	return nil
}

// AddEdge connects two nodes with an optional guard. Edges are evaluated in
// the order they were added; the first matching guard wins.
func (r *Runner) AddEdge(from, to string, guard Guard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[from]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, from)
	}
	if _, ok := r.nodes[to]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, to)
	}
	r.edges[from] = append(r.edges[from], edge{to: to, guard: guard})
	return nil
}

// Execute walks the graph from the given node until END, returning the
// final state. Each node runs under the admission semaphore and, when a
// monitor is installed, a memory pre-check that fails fast instead of
// blocking. The walk stops with ErrStepLimit if the iteration cap is hit.
func (r *Runner) Execute(ctx context.Context, start string) (State, error) {
	r.mu.Lock()
	_, ok := r.nodes[start]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, start)
	}

	state := make(State)
	current := start

	for step := 0; step < r.maxSteps; step++ {
		if current == EndNode {
			return state, nil
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		if err := r.runNode(ctx, current, state); err != nil {
			return state, fmt.Errorf("node %s: %w", current, err)
		}

		next, err := r.nextNode(current, state)
		if err != nil {
			return state, err
		}
		current = next
	}

	return state, fmt.Errorf("%w: %d steps without reaching %s", ErrStepLimit, r.maxSteps, EndNode)
}

// runNode executes one node's work under admission control and records it.
func (r *Runner) runNode(ctx context.Context, name string, state State) error {
	r.mu.Lock()
	fn := r.nodes[name]
	r.visited[name]++
	if r.visited[name] > 1 {
		// Cycles are a monitored anomaly, not a supported pattern.
		log.Printf("[runner] node %s revisited (visit %d)", name, r.visited[name])
	}
	r.mu.Unlock()

	if fn == nil {
		return nil
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)

	if r.monitor != nil {
		if snap := r.monitor.Snapshot(); !snap.SafeForAdmission {
			err := fmt.Errorf("%w: %dMB available", ErrMemoryPressure, snap.AvailableMB)
			r.record(name, time.Now(), time.Now(), err)
			return err
		}
	}

	started := time.Now()
	err := fn(ctx, state)
	r.record(name, started, time.Now(), err)
	return err
}

// nextNode picks the first edge whose guard matches the state.
func (r *Runner) nextNode(from string, state State) (string, error) {
	r.mu.Lock()
	outgoing := r.edges[from]
	r.mu.Unlock()

	for _, e := range outgoing {
		if e.guard == nil || e.guard(state) {
			return e.to, nil
		}
	}
	return "", fmt.Errorf("%w: from node %s", ErrNoEdge, from)
}

// record appends a step to the in-memory history and mirrors it to the sink.
func (r *Runner) record(node string, started, completed time.Time, err error) {
	rec := StepRecord{Node: node, StartedAt: started, CompletedAt: completed}
	status := "completed"
	if err != nil {
		rec.Err = err.Error()
		status = "failed"
	}

	r.mu.Lock()
	r.steps = append(r.steps, rec)
	r.mu.Unlock()

	if sinkErr := r.sink.Record(history.Entry{
		TaskID:      node,
		AgentName:   "runner",
		Status:      status,
		Detail:      rec.Err,
		StartedAt:   started,
		CompletedAt: completed,
	}); sinkErr != nil {
		log.Printf("[runner] history record for node %s failed: %v", node, sinkErr)
	}
}

// History returns a copy of every recorded step, in execution order.
func (r *Runner) History() []StepRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StepRecord(nil), r.steps...)
}
