package registry

import (
	"errors"
	"testing"

	"github.com/ShayCichocki/dispatch/pkg/models"
)

func coder(name string, maxLoad int) models.AgentSpec {
	return models.AgentSpec{
		Name:         name,
		Capabilities: models.Capabilities{models.CapCoding},
		MaxLoad:      maxLoad,
	}
}

func TestRegisterIdempotentUpsert(t *testing.T) {
	r := New()
	r.Register(coder("coder-1", 2))

	if err := r.Reserve("coder-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// Re-registering must preserve the load counter.
	updated := coder("coder-1", 3)
	updated.CurrentLoad = 99 // caller-supplied load is ignored
	r.Register(updated)

	if got := r.Load("coder-1"); got != 1 {
		t.Errorf("expected load 1 preserved across re-register, got %d", got)
	}
	spec, _ := r.Get("coder-1")
	if spec.MaxLoad != 3 {
		t.Errorf("expected max load updated to 3, got %d", spec.MaxLoad)
	}
}

func TestRegisterShrinkClampsToCurrentLoad(t *testing.T) {
	r := New()
	r.Register(coder("coder-1", 3))
	r.Reserve("coder-1")
	r.Reserve("coder-1")

	// Shrinking max load below the live load would break the load invariant,
	// so the cap is clamped up to the in-flight count.
	r.Register(coder("coder-1", 1))

	spec, _ := r.Get("coder-1")
	if spec.CurrentLoad != 2 {
		t.Fatalf("expected load 2 preserved, got %d", spec.CurrentLoad)
	}
	if spec.MaxLoad != 2 {
		t.Errorf("expected max load clamped to 2, got %d", spec.MaxLoad)
	}
	if r.CanAdmit("coder-1") {
		t.Error("expected no free slot after clamped shrink")
	}

	// Draining the work makes the smaller cap effective on re-register.
	r.Release("coder-1")
	r.Release("coder-1")
	r.Register(coder("coder-1", 1))
	spec, _ = r.Get("coder-1")
	if spec.MaxLoad != 1 || spec.CurrentLoad != 0 {
		t.Errorf("expected max load 1 with load 0 after drain, got %d/%d", spec.CurrentLoad, spec.MaxLoad)
	}
}

func TestReserveReleaseBounds(t *testing.T) {
	r := New()
	r.Register(coder("coder-1", 2))

	if err := r.Reserve("coder-1"); err != nil {
		t.Fatalf("reserve 1 failed: %v", err)
	}
	if err := r.Reserve("coder-1"); err != nil {
		t.Fatalf("reserve 2 failed: %v", err)
	}

	err := r.Reserve("coder-1")
	if !errors.Is(err, ErrAgentSaturated) {
		t.Fatalf("expected ErrAgentSaturated, got %v", err)
	}
	if got := r.Load("coder-1"); got != 2 {
		t.Errorf("failed reserve must not mutate load; got %d", got)
	}

	r.Release("coder-1")
	if got := r.Load("coder-1"); got != 1 {
		t.Errorf("expected load 1 after release, got %d", got)
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	r := New()
	r.Register(coder("coder-1", 1))

	r.Release("coder-1")
	r.Release("coder-1")

	if got := r.Load("coder-1"); got != 0 {
		t.Errorf("expected load floored at 0, got %d", got)
	}
}

func TestReserveUnknownAgent(t *testing.T) {
	r := New()
	if err := r.Reserve("ghost"); !errors.Is(err, ErrAgentUnknown) {
		t.Fatalf("expected ErrAgentUnknown, got %v", err)
	}
}

func TestCovers(t *testing.T) {
	r := New()
	r.Register(models.AgentSpec{
		Name:         "analyst",
		Capabilities: models.Capabilities{models.CapAnalysis, models.CapResearch},
		MaxLoad:      1,
	})

	if !r.Covers([]models.Capability{models.CapAnalysis}) {
		t.Error("expected analysis to be covered")
	}
	if r.Covers([]models.Capability{models.CapCoding}) {
		t.Error("expected coding not to be covered")
	}
}

func TestBestMatchRequiresFullCoverage(t *testing.T) {
	r := New()
	r.Register(models.AgentSpec{
		Name:         "half",
		Capabilities: models.Capabilities{models.CapCoding},
		MaxLoad:      1,
	})

	_, ok := r.BestMatch([]models.Capability{models.CapCoding, models.CapReview}, nil, nil)
	if ok {
		t.Error("expected no match when coverage is partial")
	}
}

func TestBestMatchLoadPenalty(t *testing.T) {
	r := New()
	r.Register(coder("busy", 2))
	r.Register(coder("idle", 2))
	if err := r.Reserve("busy"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	name, ok := r.BestMatch([]models.Capability{models.CapCoding}, nil, nil)
	if !ok {
		t.Fatal("expected a match")
	}
	if name != "idle" {
		t.Errorf("expected idle agent to win, got %s", name)
	}
}

func TestBestMatchTagBonus(t *testing.T) {
	r := New()
	plain := coder("plain", 2)
	boosted := coder("boosted", 2)
	boosted.Tags = []string{"enhanced"}
	r.Register(plain)
	r.Register(boosted)

	// Give the boosted agent a load handicap the 20% bonus must overcome:
	// plain scores 1.0, boosted scores (1 - 1/2*0.5) * 1.2 = 0.9.
	// With no handicap, boosted scores 1.2 and wins.
	name, ok := r.BestMatch([]models.Capability{models.CapCoding}, []string{"enhanced"}, nil)
	if !ok || name != "boosted" {
		t.Errorf("expected boosted agent to win on tag bonus, got %q", name)
	}
}

func TestBestMatchTieBreaksByName(t *testing.T) {
	r := New()
	r.Register(coder("bravo", 2))
	r.Register(coder("alpha", 2))

	name, ok := r.BestMatch([]models.Capability{models.CapCoding}, nil, nil)
	if !ok || name != "alpha" {
		t.Errorf("expected lexicographic tie-break to alpha, got %q", name)
	}
}

func TestBestMatchSkipsSaturated(t *testing.T) {
	r := New()
	r.Register(coder("only", 1))
	if err := r.Reserve("only"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	if _, ok := r.BestMatch([]models.Capability{models.CapCoding}, nil, nil); ok {
		t.Error("expected no match when the only agent is saturated")
	}
}

func TestBestMatchAllowFilter(t *testing.T) {
	r := New()
	r.Register(coder("blocked", 1))
	r.Register(coder("open", 1))

	name, ok := r.BestMatch([]models.Capability{models.CapCoding}, nil, func(a models.AgentSpec) bool {
		return a.Name != "blocked"
	})
	if !ok || name != "open" {
		t.Errorf("expected filter to exclude blocked agent, got %q", name)
	}
}

func TestAnyAdmittable(t *testing.T) {
	r := New()
	r.Register(coder("coder-1", 1))

	if !r.AnyAdmittable([]models.Capability{models.CapCoding}, nil) {
		t.Error("expected coder-1 to be admittable")
	}
	if err := r.Reserve("coder-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if r.AnyAdmittable([]models.Capability{models.CapCoding}, nil) {
		t.Error("expected nothing admittable once saturated")
	}
}
