// Package graph provides the task dependency graph used for scheduling.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ShayCichocki/dispatch/pkg/models"
)

// ErrSelfDependency indicates a task listed itself in depends_on.
var ErrSelfDependency = errors.New("task depends on itself")

// ErrUnknownDependency indicates a task referenced a dependency that is not
// in the graph (and, for batch submission, not in the batch).
var ErrUnknownDependency = errors.New("unknown dependency")

// ErrDuplicateTask indicates a task ID was added twice.
var ErrDuplicateTask = errors.New("duplicate task id")

// Graph is a directed graph of task dependencies. Nodes are task IDs and
// edges represent the "depends on" relation. Cycles are tolerated: ordering
// degrades to a partial order instead of failing (see Order).
type Graph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// deps maps task ID to the IDs it depends on.
	deps map[string][]string
	// dependents maps task ID to the IDs that depend on it.
	dependents map[string][]string
	// order records insertion sequence for deterministic tie-breaks.
	order []string
	// completed tracks which tasks have been marked complete.
	completed map[string]bool
	// debugLog is an optional logging hook.
	debugLog func(format string, args ...interface{})
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[string]*models.Task),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
		completed:  make(map[string]bool),
		debugLog:   func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging hook.
func (g *Graph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// AddTask adds a single task. Every dependency must already be in the graph;
// forward references are only allowed through AddBatch. Self-dependencies
// are rejected.
func (g *Graph) AddTask(task *models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addLocked(task, nil)
}

// AddBatch adds a set of related tasks in one submission. Dependencies may
// reference other tasks in the same batch regardless of slice order.
func (g *Graph) AddBatch(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	inBatch := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if _, exists := g.nodes[t.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		if inBatch[t.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		inBatch[t.ID] = true
	}

	for _, t := range tasks {
		if err := g.addLocked(t, inBatch); err != nil {
			return err
		}
	}
	return nil
}

// addLocked validates and inserts a task. Caller must hold g.mu.
// pending contains batch-local IDs that count as known.
func (g *Graph) addLocked(task *models.Task, pending map[string]bool) error {
	if _, exists := g.nodes[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}

	for _, depID := range task.DependsOn {
		if depID == task.ID {
			return fmt.Errorf("%w: %s", ErrSelfDependency, task.ID)
		}
		if _, known := g.nodes[depID]; !known && !pending[depID] {
			return fmt.Errorf("%w: task %s depends on %s", ErrUnknownDependency, task.ID, depID)
		}
	}

	g.nodes[task.ID] = task
	g.order = append(g.order, task.ID)
	g.deps[task.ID] = append([]string(nil), task.DependsOn...)
	for _, depID := range task.DependsOn {
		g.dependents[depID] = append(g.dependents[depID], task.ID)
	}

	g.debugLog("[graph] added task %s (deps=%v)", task.ID, task.DependsOn)
	return nil
}

// Order returns the given task IDs in dependency order using Kahn's
// algorithm. Tasks with no relative constraint keep insertion order, so
// results are reproducible. If a cycle prevents full resolution, the
// resolvable prefix is returned as ordered and the cyclic remainder as
// unordered; callers must handle the degraded case explicitly.
// Passing nil orders every task in the graph.
func (g *Graph) Order(ids []string) (ordered []string, unordered []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if ids == nil {
		ids = g.order
	}

	include := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, exists := g.nodes[id]; exists {
			include[id] = true
		}
	}

	// In-degree restricted to the requested subgraph.
	indeg := make(map[string]int, len(include))
	for id := range include {
		for _, depID := range g.deps[id] {
			if include[depID] {
				indeg[id]++
			}
		}
	}

	// seq gives each ID its insertion rank for deterministic selection.
	seq := make(map[string]int, len(g.order))
	for i, id := range g.order {
		seq[id] = i
	}

	// ready holds zero in-degree IDs sorted by insertion rank.
	var ready []string
	insert := func(id string) {
		pos := len(ready)
		for i, other := range ready {
			if seq[id] < seq[other] {
				pos = i
				break
			}
		}
		ready = append(ready, "")
		copy(ready[pos+1:], ready[pos:])
		ready[pos] = id
	}

	for _, id := range g.order {
		if include[id] && indeg[id] == 0 {
			ready = append(ready, id)
		}
	}

	placed := make(map[string]bool, len(include))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		ordered = append(ordered, id)
		placed[id] = true

		for _, depID := range g.dependents[id] {
			if !include[depID] {
				continue
			}
			indeg[depID]--
			if indeg[depID] == 0 {
				insert(depID)
			}
		}
	}

	if len(ordered) < len(include) {
		for _, id := range g.order {
			if include[id] && !placed[id] {
				unordered = append(unordered, id)
			}
		}
		g.debugLog("[graph] cycle detected: %d tasks unordered: %v", len(unordered), unordered)
	}

	return ordered, unordered
}

// HasCycle returns true if any dependency cycle exists in the graph.
func (g *Graph) HasCycle() bool {
	_, unordered := g.Order(nil)
	return len(unordered) > 0
}

// Ready returns IDs of tasks whose dependencies are all complete and which
// are not themselves complete, in insertion order.
func (g *Graph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.completed[id] {
			continue
		}
		task := g.nodes[id]
		if task.Status.Terminal() {
			continue
		}

		satisfied := true
		for _, depID := range g.deps[id] {
			if !g.completed[depID] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}
	return ready
}

// DepsComplete returns true if every dependency of the given task is marked
// complete. Unknown IDs report true (no recorded dependencies).
func (g *Graph) DepsComplete(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, depID := range g.deps[id] {
		if !g.completed[depID] {
			return false
		}
	}
	return true
}

// MarkComplete records a task as complete, unblocking its dependents.
func (g *Graph) MarkComplete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[id] = true
	g.debugLog("[graph] marked %s complete", id)
}

// Task returns the task for an ID, or nil if not present.
func (g *Graph) Task(id string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Dependencies returns the IDs the given task depends on.
func (g *Graph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.deps[id]...)
}

// Dependents returns the IDs that depend on the given task.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dependents[id]...)
}

// Size returns the number of tasks in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// InsertionOrder returns all task IDs in submission order.
func (g *Graph) InsertionOrder() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}
