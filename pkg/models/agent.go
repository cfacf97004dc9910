package models

// AgentSpec describes a registered worker type: what it can do and how many
// tasks it may run concurrently.
type AgentSpec struct {
	// Name is the unique identifier for this agent.
	Name string `json:"name"`
	// Type groups agents for circuit-breaker accounting.
	// Defaults to Name when empty.
	Type string `json:"type,omitempty"`
	// Capabilities lists the kinds of work this agent can perform.
	Capabilities Capabilities `json:"capabilities"`
	// Tags are opaque enhancement flags matched against task tags for a
	// scoring bonus.
	Tags []string `json:"tags,omitempty"`
	// CurrentLoad is the number of tasks currently dispatched to this agent.
	// Invariant: 0 <= CurrentLoad <= MaxLoad.
	CurrentLoad int `json:"current_load"`
	// MaxLoad is the number of concurrency slots this agent offers.
	MaxLoad int `json:"max_load"`
}

// TypeName returns the breaker-accounting type, falling back to the name.
func (a *AgentSpec) TypeName() string {
	if a.Type != "" {
		return a.Type
	}
	return a.Name
}

// HasTag returns true if the agent carries the given tag.
func (a *AgentSpec) HasTag(tag string) bool {
	for _, have := range a.Tags {
		if have == tag {
			return true
		}
	}
	return false
}

// HasSlot returns true if the agent has a free concurrency slot.
func (a *AgentSpec) HasSlot() bool {
	return a.CurrentLoad < a.MaxLoad
}

// Clone returns a deep copy of the spec.
func (a *AgentSpec) Clone() *AgentSpec {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Capabilities != nil {
		cp.Capabilities = append(Capabilities(nil), a.Capabilities...)
	}
	if a.Tags != nil {
		cp.Tags = append([]string(nil), a.Tags...)
	}
	return &cp
}
