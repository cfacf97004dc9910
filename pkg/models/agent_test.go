package models

import "testing"

func TestCapabilitiesCovers(t *testing.T) {
	caps := Capabilities{CapCoding, CapReview, CapAnalysis}

	if !caps.Covers([]Capability{CapCoding, CapReview}) {
		t.Error("expected caps to cover coding+review")
	}
	if caps.Covers([]Capability{CapCoding, CapWriting}) {
		t.Error("expected caps not to cover writing")
	}
	if !caps.Covers(nil) {
		t.Error("empty requirement should always be covered")
	}
}

func TestCapabilitiesOverlap(t *testing.T) {
	caps := Capabilities{CapCoding, CapReview}

	if got := caps.Overlap([]Capability{CapCoding, CapWriting, CapReview}); got != 2 {
		t.Errorf("expected overlap 2, got %d", got)
	}
	if got := caps.Overlap(nil); got != 0 {
		t.Errorf("expected overlap 0 for empty requirement, got %d", got)
	}
}

func TestAgentSpecTypeName(t *testing.T) {
	a := &AgentSpec{Name: "coder-1"}
	if a.TypeName() != "coder-1" {
		t.Errorf("expected type to default to name, got %q", a.TypeName())
	}

	a.Type = "coder"
	if a.TypeName() != "coder" {
		t.Errorf("expected explicit type, got %q", a.TypeName())
	}
}

func TestAgentSpecHasSlot(t *testing.T) {
	a := &AgentSpec{Name: "coder", MaxLoad: 2}

	if !a.HasSlot() {
		t.Error("expected free slot at load 0")
	}
	a.CurrentLoad = 2
	if a.HasSlot() {
		t.Error("expected no free slot at max load")
	}
}

func TestCapabilityValid(t *testing.T) {
	for _, c := range []Capability{CapResearch, CapCoding, CapAnalysis, CapWriting, CapReview, CapPlanning} {
		if !c.Valid() {
			t.Errorf("expected %q to be valid", c)
		}
	}
	if Capability("juggling").Valid() {
		t.Error("expected unknown capability to be invalid")
	}
}
