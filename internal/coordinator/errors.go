package coordinator

import "errors"

// ErrAdmissionDenied is a deferral signal, not a failure: a resource or
// concurrency limit is currently reached and the task stays queued.
var ErrAdmissionDenied = errors.New("admission denied")

// ErrCapabilityUnmatched indicates no registered agent covers the task's
// required capabilities. Terminal: retrying cannot fix a missing capability.
var ErrCapabilityUnmatched = errors.New("no agent covers required capabilities")

// ErrCircuitOpen indicates every capable agent belongs to a type whose
// recent failure rate tripped its circuit breaker. The task is deferred,
// not failed.
var ErrCircuitOpen = errors.New("agent type circuit open")

// ErrMemoryPressure indicates available memory is below the safe threshold.
var ErrMemoryPressure = errors.New("memory below safe threshold")

// ErrDependenciesPending indicates the task has incomplete dependencies.
var ErrDependenciesPending = errors.New("dependencies not complete")

// ErrStopped indicates the coordinator is no longer accepting work.
var ErrStopped = errors.New("coordinator stopped")
