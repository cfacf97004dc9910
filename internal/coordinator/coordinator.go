package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/ShayCichocki/dispatch/internal/breaker"
	"github.com/ShayCichocki/dispatch/internal/graph"
	"github.com/ShayCichocki/dispatch/internal/history"
	"github.com/ShayCichocki/dispatch/internal/monitor"
	"github.com/ShayCichocki/dispatch/internal/queue"
	"github.com/ShayCichocki/dispatch/internal/registry"
	"github.com/ShayCichocki/dispatch/pkg/models"
)

// Config holds coordinator tunables.
type Config struct {
	// MaxRetries is the default retry budget for tasks that don't set one.
	MaxRetries int
	// BackoffBase is the first retry delay; each retry doubles it.
	BackoffBase time.Duration
	// BackoffCap bounds the retry delay.
	BackoffCap time.Duration
	// PollInterval is how long the run loop sleeps when nothing admits.
	PollInterval time.Duration
	// MaxDispatchesPerCycle bounds work done in one scheduling cycle.
	MaxDispatchesPerCycle int
	// MaxConcurrentAgents caps in-flight dispatches. Zero means the cap is
	// derived entirely from the resource monitor's ceiling.
	MaxConcurrentAgents int
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:            3,
		BackoffBase:           time.Second,
		BackoffCap:            time.Minute,
		PollInterval:          250 * time.Millisecond,
		MaxDispatchesPerCycle: 8,
		MaxConcurrentAgents:   0,
	}
}

// Required holds the collaborators a coordinator cannot run without.
type Required struct {
	Registry *registry.Registry
	Monitor  monitor.Monitor
	Invoker  AgentInvoker
}

// Option configures optional coordinator collaborators.
type Option func(*Coordinator)

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) { c.cfg = cfg }
}

// WithHistory sets the execution history sink.
func WithHistory(sink history.Sink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

// WithBreakers sets the circuit breaker set.
func WithBreakers(set *breaker.Set) Option {
	return func(c *Coordinator) { c.breakers = set }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// dispatchRecord tracks one in-flight invocation.
type dispatchRecord struct {
	id        string
	task      *models.Task
	agent     models.AgentSpec
	startedAt time.Time
}

// Coordinator owns the agent registry, task queue, and dependency graph and
// drives tasks through their lifecycle. All scheduler state lives on the
// instance, so independent coordinators can coexist (tests run many).
type Coordinator struct {
	cfg      Config
	registry *registry.Registry
	monitor  monitor.Monitor
	invoker  AgentInvoker
	breakers *breaker.Set
	sink     history.Sink
	logger   *DebugLogger

	queue *queue.Queue
	graph *graph.Graph

	mu       sync.Mutex
	inflight map[string]*dispatchRecord
	retries  map[string]*time.Timer
	stopped  bool

	events  chan Event
	dropped atomic.Uint64
	wake    chan struct{}
	wg      sync.WaitGroup
}

// New creates a Coordinator from its required collaborators and options.
func New(req Required, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:      DefaultConfig(),
		registry: req.Registry,
		monitor:  req.Monitor,
		invoker:  req.Invoker,
		breakers: breaker.NewSet(breaker.DefaultWindow, breaker.DefaultThreshold, breaker.DefaultMaxAge),
		sink:     history.Nop{},
		logger:   NopLogger(),
		queue:    queue.New(),
		graph:    graph.New(),
		inflight: make(map[string]*dispatchRecord),
		retries:  make(map[string]*time.Timer),
		events:   make(chan Event, 100),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	setPackageLogger(c.logger)
	c.graph.SetDebugLog(c.logger.Log)
	c.queue.SetSkipHook(func(task *models.Task, reason error) {
		c.logger.Log("[queue] deferred task %s: %v", task.ID, reason)
	})
	c.breakers.SetOpenHook(func(agentType string, rate float64) {
		c.logger.Log("[breaker] opened for type %s (failure rate %.2f)", agentType, rate)
		c.emit(Event{Type: EventBreakerOpen, AgentType: agentType, Message: fmt.Sprintf("failure rate %.2f", rate)})
	})

	return c
}

// Breakers returns the circuit breaker set, for operator reset and status.
func (c *Coordinator) Breakers() *breaker.Set {
	return c.breakers
}

// Events returns the channel of scheduler events.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// DroppedEventCount returns how many events were discarded because the
// events channel was full.
func (c *Coordinator) DroppedEventCount() uint64 {
	return c.dropped.Load()
}

// Submit validates and enqueues a single task. Dependencies must already be
// known to the coordinator; use SubmitBatch for related tasks with forward
// references. A task whose capabilities no registered agent covers fails
// terminally here: retrying cannot fix a missing capability.
func (c *Coordinator) Submit(task *models.Task) error {
	if err := c.prepare(task); err != nil {
		return err
	}
	if err := c.graph.AddTask(task); err != nil {
		return err
	}
	return c.enqueue(task)
}

// SubmitBatch validates and enqueues a set of related tasks. Dependency
// references may point forward within the batch.
func (c *Coordinator) SubmitBatch(tasks []*models.Task) error {
	for _, task := range tasks {
		if err := c.prepare(task); err != nil {
			return err
		}
	}
	if err := c.graph.AddBatch(tasks); err != nil {
		return err
	}

	var firstErr error
	for _, task := range tasks {
		if err := c.enqueue(task); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// prepare fills task defaults and validates submission-time constraints.
func (c *Coordinator) prepare(task *models.Task) error {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = c.cfg.MaxRetries
	}
	if !task.Priority.Valid() {
		task.Priority = models.PriorityNormal
	}
	for _, rc := range task.RequiredCaps {
		if !rc.Valid() {
			return fmt.Errorf("task %s: unknown capability %q", task.ID, rc)
		}
	}
	return nil
}

// enqueue pushes a prepared, graph-registered task into the queue, or fails
// it terminally when no agent can ever serve it.
func (c *Coordinator) enqueue(task *models.Task) error {
	if !c.registry.Covers(task.RequiredCaps) {
		c.failTask(task, fmt.Sprintf("%v: %v", ErrCapabilityUnmatched, task.RequiredCaps))
		return fmt.Errorf("task %s: %w", task.ID, ErrCapabilityUnmatched)
	}

	c.setQueued(task)
	c.queue.Push(task)
	c.emit(Event{Type: EventTaskQueued, TaskID: task.ID, Priority: task.Priority})
	c.Wake()
	return nil
}

// setQueued marks a task queued under the coordinator lock. Task fields are
// only ever written with c.mu held; readers go through Task for a consistent
// clone. The queue is never touched while holding c.mu (lock order is queue
// before coordinator), so the status write and the push stay separate.
func (c *Coordinator) setQueued(task *models.Task) {
	c.mu.Lock()
	task.Status = models.TaskStatusQueued
	c.mu.Unlock()
}

// admissionCheck builds the per-candidate admission decision for one
// scheduling cycle, closing over a single resource snapshot (the decision
// window). Every deferral reason wraps ErrAdmissionDenied except a circuit
// open, which is surfaced distinctly for observability.
func (c *Coordinator) admissionCheck(snap models.ResourceSnapshot) queue.AdmissionCheck {
	return func(task *models.Task) error {
		if !snap.SafeForAdmission {
			return fmt.Errorf("%w: %v", ErrAdmissionDenied, ErrMemoryPressure)
		}
		if task.EstimatedMemoryMB > 0 && task.EstimatedMemoryMB > snap.AvailableMB {
			return fmt.Errorf("%w: task needs %dMB, %dMB available", ErrAdmissionDenied, task.EstimatedMemoryMB, snap.AvailableMB)
		}

		ceiling := snap.MaxAdmittable
		if c.cfg.MaxConcurrentAgents > 0 && c.cfg.MaxConcurrentAgents < ceiling {
			ceiling = c.cfg.MaxConcurrentAgents
		}
		if c.inflightCount() >= ceiling {
			return fmt.Errorf("%w: %d dispatches in flight, ceiling %d", ErrAdmissionDenied, c.inflightCount(), ceiling)
		}

		if !c.graph.DepsComplete(task.ID) {
			return fmt.Errorf("%w: %v", ErrAdmissionDenied, ErrDependenciesPending)
		}

		allow := func(a models.AgentSpec) bool { return c.breakers.Allow(a.TypeName()) }
		if !c.registry.AnyAdmittable(task.RequiredCaps, allow) {
			if c.registry.AnyAdmittable(task.RequiredCaps, nil) {
				return fmt.Errorf("%w: task %s", ErrCircuitOpen, task.ID)
			}
			return fmt.Errorf("%w: no free capable agent", ErrAdmissionDenied)
		}
		return nil
	}
}

// RunCycle performs one scheduling cycle: pop admittable tasks and dispatch
// them, up to maxDispatches. Returns the number of tasks dispatched. A fresh
// resource snapshot is taken per admission decision.
func (c *Coordinator) RunCycle(ctx context.Context, maxDispatches int) int {
	if maxDispatches <= 0 {
		maxDispatches = c.cfg.MaxDispatchesPerCycle
	}

	dispatched := 0
	for dispatched < maxDispatches {
		if ctx.Err() != nil {
			break
		}

		snap := c.monitor.Snapshot()
		task, ok := c.queue.PopAdmittable(c.admissionCheck(snap))
		if !ok {
			break
		}

		if err := c.dispatch(ctx, task); err != nil {
			// Lost the slot between admission and reserve; put the task
			// back and let the next cycle retry.
			c.logger.Log("[coordinator] dispatch of %s failed: %v", task.ID, err)
			c.setQueued(task)
			c.queue.Push(task)
			break
		}
		dispatched++
	}
	return dispatched
}

// dispatch selects an agent, reserves a slot, and launches the invocation.
func (c *Coordinator) dispatch(ctx context.Context, task *models.Task) error {
	allow := func(a models.AgentSpec) bool { return c.breakers.Allow(a.TypeName()) }
	name, ok := c.registry.BestMatch(task.RequiredCaps, task.Tags, allow)
	if !ok {
		return fmt.Errorf("task %s: %w", task.ID, ErrAdmissionDenied)
	}
	if err := c.registry.Reserve(name); err != nil {
		return fmt.Errorf("task %s: %w", task.ID, err)
	}
	agent, _ := c.registry.Get(name)

	rec := &dispatchRecord{
		id:        uuid.NewString(),
		task:      task,
		agent:     agent,
		startedAt: time.Now(),
	}

	c.mu.Lock()
	task.Status = models.TaskStatusDispatched
	task.AssignedAgent = name
	c.inflight[rec.id] = rec
	c.mu.Unlock()

	c.logger.Log("[coordinator] dispatched task %s to agent %s (dispatch %s)", task.ID, name, rec.id)
	c.emit(Event{Type: EventTaskDispatched, TaskID: task.ID, AgentName: name})

	c.wg.Add(1)
	go c.invoke(ctx, rec)
	return nil
}

// invoke runs the agent invoker and reports the outcome. The invoker owns
// timeout enforcement; the coordinator only reacts to the reported result.
func (c *Coordinator) invoke(ctx context.Context, rec *dispatchRecord) {
	defer c.wg.Done()

	c.mu.Lock()
	rec.task.Status = models.TaskStatusRunning
	snapshot := *rec.task.Clone()
	c.mu.Unlock()

	output, err := c.invoker.Invoke(ctx, rec.agent, snapshot)
	if err != nil {
		c.OnResult(rec.id, false, err.Error())
		return
	}
	c.OnResult(rec.id, true, output)
}

// OnResult reconciles a completed invocation. The agent slot is released
// first and unconditionally, before any outcome bookkeeping, so capacity can
// never leak. Duplicate callbacks for the same dispatch are logged and
// ignored, keeping the release idempotent.
func (c *Coordinator) OnResult(dispatchID string, success bool, detail string) {
	c.mu.Lock()
	rec, ok := c.inflight[dispatchID]
	if !ok {
		c.mu.Unlock()
		debugLog("[coordinator] duplicate or unknown result for dispatch %s ignored", dispatchID)
		return
	}
	delete(c.inflight, dispatchID)
	c.mu.Unlock()

	c.registry.Release(rec.agent.Name)
	c.breakers.Record(rec.agent.TypeName(), success)

	task := rec.task
	completedAt := time.Now()

	if success {
		c.mu.Lock()
		task.Status = models.TaskStatusCompleted
		task.CompletedAt = &completedAt
		c.mu.Unlock()
		c.graph.MarkComplete(task.ID)
		c.record(rec, "completed", detail, completedAt)
		c.emit(Event{Type: EventTaskCompleted, TaskID: task.ID, AgentName: rec.agent.Name})
		c.Wake()
		return
	}

	c.mu.Lock()
	task.Error = detail
	retrying := task.RetryCount < task.MaxRetries
	if retrying {
		task.RetryCount++
		task.Status = models.TaskStatusRetrying
	} else {
		task.Status = models.TaskStatusFailed
		task.CompletedAt = &completedAt
	}
	retryCount := task.RetryCount
	c.mu.Unlock()

	if retrying {
		c.record(rec, "retrying", detail, completedAt)
		delay := c.retryDelay(retryCount)
		c.logger.Log("[coordinator] task %s failed, retry %d/%d in %s", task.ID, retryCount, task.MaxRetries, delay)
		c.emit(Event{Type: EventTaskRetrying, TaskID: task.ID, AgentName: rec.agent.Name, RetryCount: retryCount, Message: detail})
		c.scheduleRetry(task, delay)
		return
	}

	c.record(rec, "failed", detail, completedAt)
	c.emit(Event{Type: EventTaskFailed, TaskID: task.ID, AgentName: rec.agent.Name, RetryCount: retryCount, Message: detail})
	c.Wake()
}

// scheduleRetry re-enqueues a task after its backoff delay.
func (c *Coordinator) scheduleRetry(task *models.Task, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}

	c.retries[task.ID] = time.AfterFunc(delay, func() {
		c.mu.Lock()
		delete(c.retries, task.ID)
		stopped := c.stopped
		if !stopped {
			task.Status = models.TaskStatusQueued
		}
		c.mu.Unlock()
		if stopped {
			return
		}

		c.queue.Push(task)
		c.emit(Event{Type: EventTaskQueued, TaskID: task.ID, Priority: task.Priority, RetryCount: task.RetryCount})
		c.Wake()
	})
}

// retryDelay computes the capped exponential backoff for the given retry
// number: BackoffBase doubled per retry, never exceeding BackoffCap.
func (c *Coordinator) retryDelay(retryCount int) time.Duration {
	pol := backoff.NewExponentialBackOff()
	pol.InitialInterval = c.cfg.BackoffBase
	pol.Multiplier = 2
	pol.RandomizationFactor = 0
	pol.MaxInterval = c.cfg.BackoffCap
	pol.MaxElapsedTime = 0
	pol.Reset()

	delay := pol.NextBackOff()
	for i := 0; i < retryCount; i++ {
		delay = pol.NextBackOff()
	}
	return delay
}

// failTask marks a task terminally failed outside the dispatch path
// (e.g. capability mismatch at submission).
func (c *Coordinator) failTask(task *models.Task, reason string) {
	now := time.Now()
	c.mu.Lock()
	task.Status = models.TaskStatusFailed
	task.Error = reason
	task.CompletedAt = &now
	c.mu.Unlock()

	if err := c.sink.Record(history.Entry{
		TaskID:      task.ID,
		AgentName:   "",
		Status:      "failed",
		Detail:      reason,
		RetryCount:  task.RetryCount,
		StartedAt:   task.CreatedAt,
		CompletedAt: now,
	}); err != nil {
		c.logger.Log("[coordinator] history record for %s failed: %v", task.ID, err)
	}
	c.emit(Event{Type: EventTaskFailed, TaskID: task.ID, Message: reason})
}

// record appends a dispatch outcome to the history sink. Sink errors are
// logged, never propagated into scheduling.
func (c *Coordinator) record(rec *dispatchRecord, status, detail string, completedAt time.Time) {
	if err := c.sink.Record(history.Entry{
		TaskID:      rec.task.ID,
		AgentName:   rec.agent.Name,
		Status:      status,
		Detail:      detail,
		RetryCount:  rec.task.RetryCount,
		StartedAt:   rec.startedAt,
		CompletedAt: completedAt,
	}); err != nil {
		c.logger.Log("[coordinator] history record for %s failed: %v", rec.task.ID, err)
	}
}

// Run drives scheduling cycles until the context is cancelled. Each cycle is
// isolated: a panic in one task's bookkeeping is recovered and logged so
// subsequent cycles keep running. Between cycles the loop sleeps until a
// wake signal (completion, new submission) or the poll interval elapses.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		c.safeCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// safeCycle runs one cycle, converting panics into logged events.
func (c *Coordinator) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Log("[coordinator] cycle panic recovered: %v", r)
			c.emit(Event{Type: EventCycleError, Message: fmt.Sprint(r)})
		}
	}()
	c.RunCycle(ctx, c.cfg.MaxDispatchesPerCycle)
}

// emit publishes an event without blocking. When the channel is full the
// event is dropped and counted; consumers that care can compare the dropped
// counter across reads.
func (c *Coordinator) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case c.events <- ev:
	default:
		c.dropped.Add(1)
	}
}

// Wake nudges the run loop to start a cycle without waiting for the poll
// interval. Non-blocking.
func (c *Coordinator) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Cancel evicts a task that has not dispatched yet, either sitting in the
// queue or waiting on a retry timer, and fails it terminally with the given
// reason. Returns false when the task is unknown or already in flight;
// running work belongs to the invoker and cannot be cancelled here.
func (c *Coordinator) Cancel(id, reason string) bool {
	c.mu.Lock()
	timer, waiting := c.retries[id]
	if waiting {
		// Stop reports false when the timer already fired; that callback
		// will re-queue the task, so fall through to the queue eviction.
		waiting = timer.Stop()
		delete(c.retries, id)
	}
	c.mu.Unlock()

	if !waiting && !c.queue.Remove(id) {
		return false
	}
	if task := c.graph.Task(id); task != nil {
		c.failTask(task, reason)
	}
	return true
}

// Pending returns the number of tasks not yet in a terminal state: queued,
// in flight, or waiting on a retry timer.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	waiting := len(c.inflight) + len(c.retries)
	c.mu.Unlock()
	return waiting + c.queue.Len()
}

// inflightCount returns the number of in-flight dispatches.
func (c *Coordinator) inflightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Task returns a consistent clone of the coordinator's view of a task by
// ID, or nil. The coordinator mutates task state concurrently from dispatch
// and result goroutines, so the live struct is never handed out.
func (c *Coordinator) Task(id string) *models.Task {
	t := c.graph.Task(id)
	if t == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.Clone()
}

// QueueSnapshot returns clones of all queued tasks in dequeue order, for
// best-effort persistence across restarts.
func (c *Coordinator) QueueSnapshot() []*models.Task {
	return c.queue.Snapshot()
}

// Stop refuses new work, cancels pending retry timers, and waits for
// in-flight invocations to report.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	for id, timer := range c.retries {
		timer.Stop()
		delete(c.retries, id)
	}
	c.mu.Unlock()

	c.wg.Wait()
}
