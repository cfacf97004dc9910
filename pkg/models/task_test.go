package models

import "testing"

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusQueued, TaskStatusAdmitted, TaskStatusDispatched,
		TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusRetrying,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	if TaskStatus("bogus").Valid() {
		t.Error("expected bogus status to be invalid")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if !TaskStatusCompleted.Terminal() {
		t.Error("completed should be terminal")
	}
	if !TaskStatusFailed.Terminal() {
		t.Error("failed should be terminal")
	}
	if TaskStatusRetrying.Terminal() {
		t.Error("retrying should not be terminal")
	}
	if TaskStatusQueued.Terminal() {
		t.Error("queued should not be terminal")
	}
}

func TestPriorityOrdering(t *testing.T) {
	if !(PriorityCritical < PriorityHigh && PriorityHigh < PriorityNormal && PriorityNormal < PriorityLow) {
		t.Error("priority values must order critical < high < normal < low")
	}
}

func TestParsePriority(t *testing.T) {
	cases := map[string]Priority{
		"critical": PriorityCritical,
		"high":     PriorityHigh,
		"normal":   PriorityNormal,
		"low":      PriorityLow,
		"":         PriorityNormal,
		"garbage":  PriorityNormal,
	}
	for in, want := range cases {
		if got := ParsePriority(in); got != want {
			t.Errorf("ParsePriority(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTaskClone(t *testing.T) {
	orig := &Task{
		ID:           "task-1",
		RequiredCaps: []Capability{CapCoding},
		DependsOn:    []string{"task-0"},
		Status:       TaskStatusQueued,
	}

	cp := orig.Clone()
	cp.DependsOn[0] = "mutated"
	cp.RequiredCaps[0] = CapReview

	if orig.DependsOn[0] != "task-0" {
		t.Error("clone shares DependsOn backing array")
	}
	if orig.RequiredCaps[0] != CapCoding {
		t.Error("clone shares RequiredCaps backing array")
	}
}
