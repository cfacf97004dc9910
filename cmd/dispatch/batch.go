package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/dispatch/pkg/models"
)

// BatchFile is the YAML schema accepted by `dispatch run` and
// `dispatch plan`: the agent pool, the tasks, and the command each agent
// type runs.
type BatchFile struct {
	Agents   []AgentDef          `yaml:"agents"`
	Tasks    []TaskDef           `yaml:"tasks"`
	Commands map[string][]string `yaml:"commands"`
}

// AgentDef declares one agent in the pool.
type AgentDef struct {
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"`
	Capabilities []string `yaml:"capabilities"`
	Tags         []string `yaml:"tags"`
	MaxLoad      int      `yaml:"max_load"`
}

// TaskDef declares one task. Dependency IDs may reference any task in the
// same file regardless of order.
type TaskDef struct {
	ID               string        `yaml:"id"`
	Description      string        `yaml:"description"`
	Type             string        `yaml:"type"`
	Priority         string        `yaml:"priority"`
	Capabilities     []string      `yaml:"capabilities"`
	Tags             []string      `yaml:"tags"`
	DependsOn        []string      `yaml:"depends_on"`
	MemoryMB         uint64        `yaml:"memory_mb"`
	EstimatedRuntime time.Duration `yaml:"estimated_runtime"`
	MaxRuntime       time.Duration `yaml:"max_runtime"`
	MaxRetries       int           `yaml:"max_retries"`
}

// LoadBatch parses a batch file and validates its shape.
func LoadBatch(path string) (*BatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}

	batch := &BatchFile{}
	if err := yaml.Unmarshal(data, batch); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}

	if len(batch.Tasks) == 0 {
		return nil, fmt.Errorf("batch file %s declares no tasks", path)
	}
	for i, a := range batch.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("agent %d has no name", i)
		}
		if a.MaxLoad <= 0 {
			return nil, fmt.Errorf("agent %s: max_load must be positive", a.Name)
		}
	}
	for i, t := range batch.Tasks {
		if t.Description == "" {
			return nil, fmt.Errorf("task %d (%s) has no description", i, t.ID)
		}
	}
	return batch, nil
}

// AgentSpecs converts the declared agents to registry specs.
func (b *BatchFile) AgentSpecs() []models.AgentSpec {
	specs := make([]models.AgentSpec, 0, len(b.Agents))
	for _, a := range b.Agents {
		specs = append(specs, models.AgentSpec{
			Name:         a.Name,
			Type:         a.Type,
			Capabilities: toCapabilities(a.Capabilities),
			Tags:         a.Tags,
			MaxLoad:      a.MaxLoad,
		})
	}
	return specs
}

// TaskModels converts the declared tasks to scheduler tasks.
func (b *BatchFile) TaskModels() []*models.Task {
	tasks := make([]*models.Task, 0, len(b.Tasks))
	for _, t := range b.Tasks {
		tasks = append(tasks, &models.Task{
			ID:                t.ID,
			Description:       t.Description,
			Type:              t.Type,
			Priority:          models.ParsePriority(t.Priority),
			RequiredCaps:      toCapabilities(t.Capabilities),
			Tags:              t.Tags,
			DependsOn:         t.DependsOn,
			EstimatedMemoryMB: t.MemoryMB,
			EstimatedRuntime:  t.EstimatedRuntime,
			MaxRuntime:        t.MaxRuntime,
			MaxRetries:        t.MaxRetries,
		})
	}
	return tasks
}

func toCapabilities(names []string) []models.Capability {
	caps := make([]models.Capability, 0, len(names))
	for _, n := range names {
		caps = append(caps, models.Capability(n))
	}
	return caps
}
