package coordinator

import (
	"context"

	"github.com/ShayCichocki/dispatch/pkg/models"
)

// AgentInvoker executes a task on an agent. Implementations own the actual
// worker mechanics (process spawning, API calls, simulation) and are
// responsible for enforcing the task's MaxRuntime, reporting a timeout as an
// ordinary error. The coordinator calls Invoke from a dedicated goroutine,
// so implementations may block until the work finishes.
type AgentInvoker interface {
	Invoke(ctx context.Context, agent models.AgentSpec, task models.Task) (output string, err error)
}

// InvokerFunc adapts a function to the AgentInvoker interface.
type InvokerFunc func(ctx context.Context, agent models.AgentSpec, task models.Task) (string, error)

// Invoke calls the wrapped function.
func (f InvokerFunc) Invoke(ctx context.Context, agent models.AgentSpec, task models.Task) (string, error) {
	return f(ctx, agent, task)
}
