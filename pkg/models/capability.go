package models

// Capability identifies a kind of work an agent can perform.
// The set is closed; tasks may only require known capabilities.
type Capability string

const (
	// CapResearch covers information gathering and exploration.
	CapResearch Capability = "research"
	// CapCoding covers writing and modifying code.
	CapCoding Capability = "coding"
	// CapAnalysis covers evaluating data or code.
	CapAnalysis Capability = "analysis"
	// CapWriting covers producing prose artifacts.
	CapWriting Capability = "writing"
	// CapReview covers critiquing completed work.
	CapReview Capability = "review"
	// CapPlanning covers decomposing and sequencing work.
	CapPlanning Capability = "planning"
)

// Valid returns true if the capability is a known value.
func (c Capability) Valid() bool {
	switch c {
	case CapResearch, CapCoding, CapAnalysis, CapWriting, CapReview, CapPlanning:
		return true
	default:
		return false
	}
}

// Capabilities is a set of capabilities with containment helpers.
type Capabilities []Capability

// Contains returns true if the set includes the given capability.
func (cs Capabilities) Contains(c Capability) bool {
	for _, have := range cs {
		if have == c {
			return true
		}
	}
	return false
}

// Covers returns true if every capability in required is present in the set.
func (cs Capabilities) Covers(required []Capability) bool {
	for _, need := range required {
		if !cs.Contains(need) {
			return false
		}
	}
	return true
}

// Overlap returns how many of the required capabilities are present.
func (cs Capabilities) Overlap(required []Capability) int {
	n := 0
	for _, need := range required {
		if cs.Contains(need) {
			n++
		}
	}
	return n
}
