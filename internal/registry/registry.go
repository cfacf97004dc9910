// Package registry holds the catalog of agent specifications and their
// concurrency slots. The registry's load counters are the single source of
// truth for concurrency admission.
package registry

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/ShayCichocki/dispatch/pkg/models"
)

// ErrAgentUnknown indicates a reserve/release for an unregistered agent.
var ErrAgentUnknown = errors.New("agent not registered")

// ErrAgentSaturated indicates a reserve against an agent with no free slot.
var ErrAgentSaturated = errors.New("agent at max load")

// tagBonus is the score multiplier applied when an agent carries an
// enhancement tag the task requested.
const tagBonus = 1.2

// Registry is a thread-safe catalog of agent specifications.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*models.AgentSpec
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{agents: make(map[string]*models.AgentSpec)}
}

// Register upserts an agent spec by name. Registering an existing name
// updates capabilities, tags, and max load but preserves the current load
// counter, so re-registration cannot leak or fabricate slots. A max load
// below the preserved load is clamped up to it: in-flight work keeps its
// slots, and the clamp keeps the load invariant (load never exceeds max).
// Callers that want the smaller cap re-register once the work drains.
func (r *Registry) Register(spec models.AgentSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.agents[spec.Name]; ok {
		spec.CurrentLoad = existing.CurrentLoad
		if spec.MaxLoad < spec.CurrentLoad {
			log.Printf("[registry] agent %s max load %d below current load %d, clamped",
				spec.Name, spec.MaxLoad, spec.CurrentLoad)
			spec.MaxLoad = spec.CurrentLoad
		}
	} else {
		spec.CurrentLoad = 0
	}
	r.agents[spec.Name] = spec.Clone()
}

// CanAdmit returns true if the named agent has a free concurrency slot.
func (r *Registry) CanAdmit(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	return ok && a.HasSlot()
}

// Reserve takes a concurrency slot on the named agent. It fails without
// mutation when the agent is unknown or already at max load; callers must
// re-check admission rather than treating this as a wait.
func (r *Registry) Reserve(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentUnknown, name)
	}
	if !a.HasSlot() {
		return fmt.Errorf("%w: %s (%d/%d)", ErrAgentSaturated, name, a.CurrentLoad, a.MaxLoad)
	}
	a.CurrentLoad++
	return nil
}

// Release returns a concurrency slot on the named agent. The counter floors
// at zero; an underflow is logged and ignored so a duplicate release can
// never corrupt capacity accounting.
func (r *Registry) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[name]
	if !ok {
		log.Printf("[registry] release for unknown agent %s ignored", name)
		return
	}
	if a.CurrentLoad <= 0 {
		log.Printf("[registry] release underflow for agent %s ignored", name)
		a.CurrentLoad = 0
		return
	}
	a.CurrentLoad--
}

// Covers returns true if at least one registered agent, regardless of load,
// covers every required capability. Used to distinguish "capability missing"
// (terminal) from "capable agents busy" (deferral).
func (r *Registry) Covers(required []models.Capability) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.agents {
		if a.Capabilities.Covers(required) {
			return true
		}
	}
	return false
}

// AnyAdmittable returns true if some agent covers the required capabilities,
// has a free slot, and passes the allow filter (nil allows everything).
func (r *Registry) AnyAdmittable(required []models.Capability, allow func(models.AgentSpec) bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.agents {
		if !a.Capabilities.Covers(required) || !a.HasSlot() {
			continue
		}
		if allow != nil && !allow(*a.Clone()) {
			continue
		}
		return true
	}
	return false
}

// BestMatch scores every admissible agent against the required capabilities
// and returns the best one. The base score is the covered fraction of the
// required set (full coverage is mandatory), reduced by a load penalty and
// boosted when an agent tag matches a requested tag. Ties break by lowest
// current load, then lexicographic name. The allow filter (nil = allow all)
// lets callers exclude agents, e.g. those behind an open circuit breaker.
func (r *Registry) BestMatch(required []models.Capability, tags []string, allow func(models.AgentSpec) bool) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)

	bestName := ""
	bestScore := 0.0
	bestLoad := 0

	for _, name := range names {
		a := r.agents[name]
		if !a.HasSlot() {
			continue
		}
		if !a.Capabilities.Covers(required) {
			continue
		}
		if allow != nil && !allow(*a.Clone()) {
			continue
		}

		score := 1.0
		if len(required) > 0 {
			score = float64(a.Capabilities.Overlap(required)) / float64(len(required))
		}
		if a.MaxLoad > 0 {
			score *= 1 - float64(a.CurrentLoad)/float64(a.MaxLoad)*0.5
		}
		for _, tag := range tags {
			if a.HasTag(tag) {
				score *= tagBonus
				break
			}
		}

		if score <= 0 {
			continue
		}
		// Names iterate sorted, so strictly-greater keeps the tie rules:
		// equal score falls through to the lowest-load comparison, and an
		// equal load keeps the lexicographically first name.
		switch {
		case bestName == "" || score > bestScore:
			bestName, bestScore, bestLoad = name, score, a.CurrentLoad
		case score == bestScore && a.CurrentLoad < bestLoad:
			bestName, bestLoad = name, a.CurrentLoad
		}
	}

	if bestName == "" {
		return "", false
	}
	return bestName, true
}

// Get returns a copy of the named agent spec.
func (r *Registry) Get(name string) (models.AgentSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return models.AgentSpec{}, false
	}
	return *a.Clone(), true
}

// Load returns the current load of the named agent, or 0 if unknown.
func (r *Registry) Load(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.agents[name]; ok {
		return a.CurrentLoad
	}
	return 0
}

// All returns copies of every registered spec, sorted by name.
func (r *Registry) All() []models.AgentSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.AgentSpec, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
