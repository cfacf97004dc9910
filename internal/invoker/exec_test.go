package invoker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/dispatch/pkg/models"
)

type fakeRunner struct {
	lastName string
	lastArgs []string
	output   []byte
	err      error
	delay    time.Duration
}

func (f *fakeRunner) Run(ctx context.Context, workDir, name string, args ...string) ([]byte, error) {
	f.lastName = name
	f.lastArgs = args
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.output, f.err
}

func codingAgent() models.AgentSpec {
	return models.AgentSpec{Name: "coder-1", Type: "coder", Capabilities: []models.Capability{models.CapCoding}}
}

func TestInvokeRunsConfiguredCommand(t *testing.T) {
	fake := &fakeRunner{output: []byte("patched 3 files\n")}
	e := NewExec(map[string][]string{"coder": {"run-agent", "--mode", "code"}}, WithRunner(fake))

	task := models.Task{ID: "t1", Description: "fix the bug"}
	out, err := e.Invoke(context.Background(), codingAgent(), task)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "patched 3 files" {
		t.Errorf("output = %q", out)
	}
	if fake.lastName != "run-agent" {
		t.Errorf("command = %q, want run-agent", fake.lastName)
	}
	want := []string{"--mode", "code", "fix the bug"}
	if len(fake.lastArgs) != 3 || fake.lastArgs[2] != "fix the bug" {
		t.Errorf("args = %v, want %v", fake.lastArgs, want)
	}
}

func TestInvokeUnknownTypeFails(t *testing.T) {
	e := NewExec(map[string][]string{"coder": {"run-agent"}}, WithRunner(&fakeRunner{}))

	agent := models.AgentSpec{Name: "scribe-1", Type: "writer"}
	_, err := e.Invoke(context.Background(), agent, models.Task{ID: "t1"})
	if !errors.Is(err, ErrNoCommand) {
		t.Fatalf("invoke = %v, want ErrNoCommand", err)
	}
}

func TestInvokeTimeoutReportedAsFailure(t *testing.T) {
	fake := &fakeRunner{delay: time.Second}
	e := NewExec(map[string][]string{"coder": {"run-agent"}}, WithRunner(fake))

	task := models.Task{ID: "t1", Description: "slow work", MaxRuntime: 20 * time.Millisecond}
	_, err := e.Invoke(context.Background(), codingAgent(), task)
	if err == nil {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(err.Error(), "max runtime") {
		t.Errorf("error = %v, want max runtime failure", err)
	}
}

func TestInvokeCommandFailureCarriesOutput(t *testing.T) {
	fake := &fakeRunner{output: []byte("compile error: missing brace\nmore detail"), err: errors.New("exit status 1")}
	e := NewExec(map[string][]string{"coder": {"run-agent"}}, WithRunner(fake))

	_, err := e.Invoke(context.Background(), codingAgent(), models.Task{ID: "t1"})
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "missing brace") {
		t.Errorf("error %v does not carry the command's first output line", err)
	}
}

func TestTypeFallsBackToName(t *testing.T) {
	fake := &fakeRunner{output: []byte("ok")}
	e := NewExec(map[string][]string{"solo": {"run-agent"}}, WithRunner(fake))

	agent := models.AgentSpec{Name: "solo"}
	if _, err := e.Invoke(context.Background(), agent, models.Task{ID: "t1"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
}
