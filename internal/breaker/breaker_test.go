package breaker

import (
	"testing"
	"time"
)

func TestAllowWithNoHistory(t *testing.T) {
	s := NewSet(4, 0.5, time.Hour)
	if !s.Allow("coder") {
		t.Error("expected unknown type to admit")
	}
}

func TestAllowUntilWindowFull(t *testing.T) {
	s := NewSet(4, 0.5, time.Hour)

	// Three failures in a four-wide window: rate is high but the window is
	// not full yet, so the type still admits.
	for i := 0; i < 3; i++ {
		s.Record("coder", false)
	}
	if !s.Allow("coder") {
		t.Error("expected admission before the window fills")
	}

	s.Record("coder", false)
	if s.Allow("coder") {
		t.Error("expected open breaker at 100% failure over a full window")
	}
}

func TestThresholdBoundary(t *testing.T) {
	s := NewSet(4, 0.5, time.Hour)

	// Exactly 50% failures: not strictly over threshold, stays closed.
	s.Record("coder", false)
	s.Record("coder", true)
	s.Record("coder", false)
	s.Record("coder", true)
	if !s.Allow("coder") {
		t.Error("expected closed breaker at exactly the threshold")
	}

	// A fifth failure displaces the oldest failure, leaving the last-4
	// window at 2/4 again. Still not over the threshold.
	s.Record("coder", false)
	if !s.Allow("coder") {
		t.Error("expected closed breaker while the window sits at the threshold")
	}

	// A sixth failure displaces a success and pushes the window to 3/4.
	s.Record("coder", false)
	if s.Allow("coder") {
		t.Error("expected open breaker above the threshold")
	}
}

func TestRecoveryThroughNewOutcomes(t *testing.T) {
	s := NewSet(4, 0.5, time.Hour)
	for i := 0; i < 4; i++ {
		s.Record("coder", false)
	}
	if s.Allow("coder") {
		t.Fatal("expected open breaker")
	}

	// Successes age the failures out of the ring.
	s.Record("coder", true)
	s.Record("coder", true)
	if !s.Allow("coder") {
		t.Error("expected breaker to close as successes displace failures")
	}
}

func TestRecoveryThroughAging(t *testing.T) {
	now := time.Now()
	s := NewSet(4, 0.5, time.Hour)
	s.SetNow(func() time.Time { return now })

	for i := 0; i < 4; i++ {
		s.Record("coder", false)
	}
	if s.Allow("coder") {
		t.Fatal("expected open breaker")
	}

	// Advance past maxAge: the outcomes expire and the type admits again
	// even though nothing new was recorded.
	now = now.Add(2 * time.Hour)
	if !s.Allow("coder") {
		t.Error("expected breaker to recover passively once outcomes expire")
	}
}

func TestBreakersAreIndependentPerType(t *testing.T) {
	s := NewSet(2, 0.5, time.Hour)
	s.Record("flaky", false)
	s.Record("flaky", false)

	if s.Allow("flaky") {
		t.Error("expected flaky type open")
	}
	if !s.Allow("stable") {
		t.Error("expected stable type unaffected")
	}
}

func TestReset(t *testing.T) {
	s := NewSet(2, 0.5, time.Hour)
	s.Record("coder", false)
	s.Record("coder", false)
	if s.Allow("coder") {
		t.Fatal("expected open breaker")
	}

	s.Reset("coder")
	if !s.Allow("coder") {
		t.Error("expected admission after reset")
	}
	if rate, n := s.Rate("coder"); rate != 0 || n != 0 {
		t.Errorf("expected empty history after reset, got rate=%v n=%d", rate, n)
	}
}

func TestOpenHookFiresOnce(t *testing.T) {
	s := NewSet(2, 0.5, time.Hour)

	var opened []string
	s.SetOpenHook(func(agentType string, rate float64) {
		opened = append(opened, agentType)
	})

	s.Record("coder", false)
	s.Record("coder", false) // opens here
	s.Record("coder", false) // already open, no second event

	if len(opened) != 1 || opened[0] != "coder" {
		t.Errorf("expected exactly one open event for coder, got %v", opened)
	}
}

func TestRate(t *testing.T) {
	s := NewSet(4, 0.5, time.Hour)
	s.Record("coder", false)
	s.Record("coder", true)

	rate, n := s.Rate("coder")
	if n != 2 {
		t.Fatalf("expected 2 counted outcomes, got %d", n)
	}
	if rate != 0.5 {
		t.Errorf("expected rate 0.5, got %v", rate)
	}
}
