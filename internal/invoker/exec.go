// Package invoker provides a reference AgentInvoker that runs a configured
// command per agent type. The task description is appended as the command's
// final argument; the command's combined output is the task's result.
package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ShayCichocki/dispatch/pkg/models"
)

// ErrNoCommand indicates no command is configured for the agent's type.
var ErrNoCommand = errors.New("no command configured for agent type")

// CommandRunner abstracts process execution so tests can fake it.
type CommandRunner interface {
	Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error)
}

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct{}

// Run executes a command and returns combined stdout/stderr output.
func (ExecRunner) Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	return cmd.CombinedOutput()
}

// Exec maps agent types to commands and runs one process per invocation.
// The task's MaxRuntime is enforced with a context deadline; a timeout is
// reported as an ordinary failure, identical to any other error for retry
// and circuit breaker purposes.
type Exec struct {
	commands map[string][]string
	workDir  string
	runner   CommandRunner
}

// Option configures an Exec invoker.
type Option func(*Exec)

// WithWorkDir sets the working directory for spawned commands.
func WithWorkDir(dir string) Option {
	return func(e *Exec) { e.workDir = dir }
}

// WithRunner replaces the process runner. For tests.
func WithRunner(r CommandRunner) Option {
	return func(e *Exec) { e.runner = r }
}

// NewExec creates an invoker from an agent-type-to-argv map.
func NewExec(commands map[string][]string, opts ...Option) *Exec {
	e := &Exec{
		commands: commands,
		runner:   ExecRunner{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invoke runs the command configured for the agent's type and blocks until
// it exits or the task's MaxRuntime elapses.
func (e *Exec) Invoke(ctx context.Context, agent models.AgentSpec, task models.Task) (string, error) {
	argv, ok := e.commands[agent.TypeName()]
	if !ok || len(argv) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoCommand, agent.TypeName())
	}

	if task.MaxRuntime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.MaxRuntime)
		defer cancel()
	}

	args := append(append([]string(nil), argv[1:]...), task.Description)
	out, err := e.runner.Run(ctx, e.workDir, argv[0], args...)
	output := string(bytes.TrimSpace(out))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return output, fmt.Errorf("task %s exceeded max runtime %s", task.ID, task.MaxRuntime)
		}
		if output != "" {
			return output, fmt.Errorf("agent command failed: %v: %s", err, firstLine(output))
		}
		return output, fmt.Errorf("agent command failed: %w", err)
	}
	return output, nil
}

// firstLine truncates command output to its first line for error messages.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
