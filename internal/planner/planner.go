// Package planner groups tasks into ordered execution phases and runs them
// with a hard barrier between phases.
package planner

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ShayCichocki/dispatch/internal/graph"
	"github.com/ShayCichocki/dispatch/internal/monitor"
	"github.com/ShayCichocki/dispatch/pkg/models"
)

// Strategy selects how tasks are grouped into phases.
type Strategy string

const (
	// StrategyParallel groups every dependency-satisfied task into the same
	// phase, maximizing phase-level concurrency.
	StrategyParallel Strategy = "parallel"
	// StrategySequential emits one task per phase in topological order.
	StrategySequential Strategy = "sequential"
	// StrategyHybrid starts from the parallel grouping and splits phases
	// that exceed the resource ceiling.
	StrategyHybrid Strategy = "hybrid"
)

// ParseStrategy converts a string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyParallel, StrategySequential, StrategyHybrid:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// PhaseMode describes how tasks within a phase may run.
type PhaseMode string

const (
	// PhaseParallel allows all tasks in the phase to run concurrently.
	PhaseParallel PhaseMode = "parallel"
	// PhaseSequential runs the phase's tasks one at a time.
	PhaseSequential PhaseMode = "sequential"
	// PhaseForcedSequential marks a single-task phase created to break an
	// unresolved dependency cycle.
	PhaseForcedSequential PhaseMode = "forced-sequential"
)

// ExecutionPhase is one group of mutually-dispatchable tasks.
type ExecutionPhase struct {
	// Index is the phase's position in the plan.
	Index int
	// TaskIDs are the tasks in this phase, in deterministic order.
	TaskIDs []string
	// MaxConcurrency bounds how many of the phase's tasks run at once.
	MaxConcurrency int
	// Mode describes how the phase's tasks may run.
	Mode PhaseMode
}

// ExecutionPlan is the planner's output: ordered phases plus estimates.
type ExecutionPlan struct {
	// Strategy is the grouping strategy that produced the plan.
	Strategy Strategy
	// Phases are executed strictly in order.
	Phases []ExecutionPhase
	// EstimatedDuration sums each phase's estimated wall time.
	EstimatedDuration time.Duration
	// PeakMemoryMB is the largest per-phase memory requirement.
	PeakMemoryMB uint64
	// Degraded is true when a dependency cycle forced part of the plan into
	// single-task phases.
	Degraded bool
}

// Planner builds execution plans from task sets.
type Planner struct {
	monitor    monitor.Monitor
	thresholds monitor.Thresholds
}

// New creates a planner. The monitor supplies the concurrency ceiling used
// by the hybrid strategy and phase execution.
func New(m monitor.Monitor, t monitor.Thresholds) *Planner {
	return &Planner{monitor: m, thresholds: t}
}

// Plan groups the given tasks into phases under the chosen strategy.
// Dependency references may point anywhere within the task set. A dependency
// cycle never fails the plan: the unorderable residual is appended as
// forced-sequential single-task phases in submission order.
func (p *Planner) Plan(tasks []*models.Task, strategy Strategy) (*ExecutionPlan, error) {
	g := graph.New()
	if err := g.AddBatch(tasks); err != nil {
		return nil, fmt.Errorf("build dependency graph: %w", err)
	}

	ids := make([]string, 0, len(tasks))
	index := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
		index[t.ID] = t
	}

	ordered, unordered := g.Order(ids)

	plan := &ExecutionPlan{Strategy: strategy, Degraded: len(unordered) > 0}

	switch strategy {
	case StrategySequential:
		for _, id := range ordered {
			plan.Phases = append(plan.Phases, ExecutionPhase{
				TaskIDs:        []string{id},
				MaxConcurrency: 1,
				Mode:           PhaseSequential,
			})
		}
	case StrategyParallel, StrategyHybrid:
		phases := p.levelPhases(g, ordered)
		if strategy == StrategyHybrid {
			phases = p.splitToCeiling(phases)
		}
		plan.Phases = phases
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}

	// Cycle residual: single-task phases in submission order, so execution
	// degrades instead of deadlocking.
	for _, id := range unordered {
		plan.Phases = append(plan.Phases, ExecutionPhase{
			TaskIDs:        []string{id},
			MaxConcurrency: 1,
			Mode:           PhaseForcedSequential,
		})
	}

	for i := range plan.Phases {
		plan.Phases[i].Index = i
	}
	p.estimate(plan, index)
	return plan, nil
}

// levelPhases greedily groups every task whose dependencies all sit in
// earlier phases, walking the topological order so each pass is linear.
func (p *Planner) levelPhases(g *graph.Graph, ordered []string) []ExecutionPhase {
	var phases []ExecutionPhase
	level := make(map[string]int, len(ordered))

	for _, id := range ordered {
		lv := 0
		for _, dep := range g.Dependencies(id) {
			if dl, ok := level[dep]; ok && dl+1 > lv {
				lv = dl + 1
			}
		}
		level[id] = lv
		for len(phases) <= lv {
			phases = append(phases, ExecutionPhase{Mode: PhaseParallel})
		}
		phases[lv].TaskIDs = append(phases[lv].TaskIDs, id)
	}

	for i := range phases {
		phases[i].MaxConcurrency = len(phases[i].TaskIDs)
	}
	return phases
}

// splitToCeiling splits any phase larger than the monitor's admittable-agent
// ceiling into sub-phases bounded by it.
func (p *Planner) splitToCeiling(phases []ExecutionPhase) []ExecutionPhase {
	ceiling := p.monitor.Snapshot().MaxAdmittable
	if ceiling < 1 {
		ceiling = 1
	}

	var out []ExecutionPhase
	for _, ph := range phases {
		if len(ph.TaskIDs) <= ceiling {
			out = append(out, ph)
			continue
		}
		for start := 0; start < len(ph.TaskIDs); start += ceiling {
			end := start + ceiling
			if end > len(ph.TaskIDs) {
				end = len(ph.TaskIDs)
			}
			out = append(out, ExecutionPhase{
				TaskIDs:        append([]string(nil), ph.TaskIDs[start:end]...),
				MaxConcurrency: end - start,
				Mode:           PhaseParallel,
			})
		}
	}
	return out
}

// estimate fills in the plan's duration and peak memory figures. A parallel
// phase costs its longest task; sequential phases cost the sum.
func (p *Planner) estimate(plan *ExecutionPlan, index map[string]*models.Task) {
	var total time.Duration
	var peak uint64

	for _, ph := range plan.Phases {
		var phaseCost time.Duration
		for _, id := range ph.TaskIDs {
			est := index[id].EstimatedRuntime
			if ph.Mode == PhaseParallel {
				if est > phaseCost {
					phaseCost = est
				}
			} else {
				phaseCost += est
			}
		}
		total += phaseCost

		need := uint64(len(ph.TaskIDs)) * p.thresholds.MemoryPerAgentMB
		if need > peak {
			peak = need
		}
	}

	plan.EstimatedDuration = total
	plan.PeakMemoryMB = peak
}

// DispatchFunc executes one planned task. Execute calls it from at most
// MaxConcurrency goroutines per phase.
type DispatchFunc func(ctx context.Context, taskID string) error

// Execute runs the plan's phases strictly in order: phase N+1 starts only
// after every task in phase N has returned. Within a parallel phase, tasks
// run under a weighted semaphore bounded by the phase's concurrency limit.
// The first task error cancels the remainder of the phase and aborts the
// plan.
func (p *Planner) Execute(ctx context.Context, plan *ExecutionPlan, fn DispatchFunc) error {
	for _, ph := range plan.Phases {
		if err := p.executePhase(ctx, ph, fn); err != nil {
			return fmt.Errorf("phase %d: %w", ph.Index, err)
		}
	}
	return nil
}

func (p *Planner) executePhase(ctx context.Context, ph ExecutionPhase, fn DispatchFunc) error {
	if ph.Mode != PhaseParallel || ph.MaxConcurrency <= 1 {
		for _, id := range ph.TaskIDs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, id); err != nil {
				return fmt.Errorf("task %s: %w", id, err)
			}
		}
		return nil
	}

	sem := semaphore.NewWeighted(int64(ph.MaxConcurrency))
	grp, gctx := errgroup.WithContext(ctx)
	for _, id := range ph.TaskIDs {
		id := id
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		grp.Go(func() error {
			defer sem.Release(1)
			if err := fn(gctx, id); err != nil {
				return fmt.Errorf("task %s: %w", id, err)
			}
			return nil
		})
	}
	return grp.Wait()
}
