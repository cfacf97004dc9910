package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/dispatch/pkg/models"
)

func writeBatch(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	return path
}

func TestLoadBatch(t *testing.T) {
	path := writeBatch(t, `
agents:
  - name: coder-1
    type: coder
    capabilities: [coding, review]
    tags: [fast]
    max_load: 2
tasks:
  - id: build
    description: build the feature
    priority: high
    capabilities: [coding]
    memory_mb: 256
    estimated_runtime: 5m
    max_runtime: 30m
    max_retries: 2
  - id: review
    description: review the feature
    priority: normal
    capabilities: [review]
    depends_on: [build]
commands:
  coder: [run-agent, --mode, code]
`)

	batch, err := LoadBatch(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	specs := batch.AgentSpecs()
	if len(specs) != 1 || specs[0].Name != "coder-1" || specs[0].MaxLoad != 2 {
		t.Fatalf("agent specs = %+v", specs)
	}
	if !specs[0].Capabilities.Covers([]models.Capability{models.CapCoding, models.CapReview}) {
		t.Error("agent capabilities not parsed")
	}

	tasks := batch.TaskModels()
	if len(tasks) != 2 {
		t.Fatalf("task count = %d, want 2", len(tasks))
	}
	build := tasks[0]
	if build.Priority != models.PriorityHigh {
		t.Errorf("priority = %v, want high", build.Priority)
	}
	if build.EstimatedMemoryMB != 256 {
		t.Errorf("memory = %d, want 256", build.EstimatedMemoryMB)
	}
	if build.EstimatedRuntime != 5*time.Minute {
		t.Errorf("estimated runtime = %s, want 5m", build.EstimatedRuntime)
	}
	if tasks[1].DependsOn[0] != "build" {
		t.Errorf("depends_on = %v", tasks[1].DependsOn)
	}

	if len(batch.Commands["coder"]) != 3 {
		t.Errorf("commands = %v", batch.Commands)
	}
}

func TestLoadBatchRejectsEmptyTasks(t *testing.T) {
	path := writeBatch(t, "agents:\n  - name: a\n    max_load: 1\n")
	if _, err := LoadBatch(path); err == nil {
		t.Fatal("expected error for batch with no tasks")
	}
}

func TestLoadBatchRejectsBadAgent(t *testing.T) {
	path := writeBatch(t, `
agents:
  - name: a
    max_load: 0
tasks:
  - id: t
    description: work
`)
	if _, err := LoadBatch(path); err == nil {
		t.Fatal("expected error for non-positive max_load")
	}
}

func TestLoadBatchUnknownPriorityDefaultsToNormal(t *testing.T) {
	path := writeBatch(t, `
tasks:
  - id: t
    description: work
    priority: whenever
`)
	batch, err := LoadBatch(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := batch.TaskModels()[0].Priority; got != models.PriorityNormal {
		t.Errorf("priority = %v, want normal", got)
	}
}
