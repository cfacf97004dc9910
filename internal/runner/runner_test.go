package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/ShayCichocki/dispatch/internal/monitor"
)

func setNode(key string, value interface{}) WorkFunc {
	return func(ctx context.Context, state State) error {
		state[key] = value
		return nil
	}
}

func TestLinearWalk(t *testing.T) {
	r := New()
	if err := r.AddNode("fetch", setNode("fetched", true)); err != nil {
		t.Fatal(err)
	}
	if err := r.AddNode("process", setNode("processed", true)); err != nil {
		t.Fatal(err)
	}
	if err := r.AddEdge(StartNode, "fetch", nil); err != nil {
		t.Fatal(err)
	}
	if err := r.AddEdge("fetch", "process", nil); err != nil {
		t.Fatal(err)
	}
	if err := r.AddEdge("process", EndNode, nil); err != nil {
		t.Fatal(err)
	}

	state, err := r.Execute(context.Background(), StartNode)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if state["fetched"] != true || state["processed"] != true {
		t.Fatalf("final state = %v, want both nodes to have run", state)
	}

	hist := r.History()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].Node != "fetch" || hist[1].Node != "process" {
		t.Fatalf("history order = %s, %s", hist[0].Node, hist[1].Node)
	}
}

func TestGuardsEvaluatedInDeclarationOrder(t *testing.T) {
	r := New()
	r.AddNode("check", setNode("score", 7))
	r.AddNode("high", setNode("path", "high"))
	r.AddNode("low", setNode("path", "low"))

	r.AddEdge(StartNode, "check", nil)
	// First matching guard wins.
	r.AddEdge("check", "high", func(s State) bool { return s["score"].(int) > 5 })
	r.AddEdge("check", "low", nil)
	r.AddEdge("high", EndNode, nil)
	r.AddEdge("low", EndNode, nil)

	state, err := r.Execute(context.Background(), StartNode)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if state["path"] != "high" {
		t.Fatalf("took %v branch, want high", state["path"])
	}
}

func TestUnguardedFallbackEdge(t *testing.T) {
	r := New()
	r.AddNode("check", setNode("score", 2))
	r.AddNode("high", setNode("path", "high"))
	r.AddNode("low", setNode("path", "low"))

	r.AddEdge(StartNode, "check", nil)
	r.AddEdge("check", "high", func(s State) bool { return s["score"].(int) > 5 })
	r.AddEdge("check", "low", nil)
	r.AddEdge("high", EndNode, nil)
	r.AddEdge("low", EndNode, nil)

	state, err := r.Execute(context.Background(), StartNode)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if state["path"] != "low" {
		t.Fatalf("took %v branch, want low fallback", state["path"])
	}
}

func TestCycleHitsStepLimit(t *testing.T) {
	r := New(WithMaxSteps(10))
	r.AddNode("spin", func(ctx context.Context, state State) error { return nil })
	r.AddEdge(StartNode, "spin", nil)
	r.AddEdge("spin", "spin", nil)

	_, err := r.Execute(context.Background(), StartNode)
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("execute = %v, want ErrStepLimit", err)
	}
}

func TestNodeErrorStopsWalk(t *testing.T) {
	boom := errors.New("work failed")
	r := New()
	r.AddNode("bad", func(ctx context.Context, state State) error { return boom })
	r.AddNode("after", setNode("reached", true))
	r.AddEdge(StartNode, "bad", nil)
	r.AddEdge("bad", "after", nil)
	r.AddEdge("after", EndNode, nil)

	state, err := r.Execute(context.Background(), StartNode)
	if !errors.Is(err, boom) {
		t.Fatalf("execute = %v, want work error", err)
	}
	if state["reached"] == true {
		t.Fatal("walk continued past a failed node")
	}

	hist := r.History()
	if len(hist) != 1 || hist[0].Err == "" {
		t.Fatalf("history = %+v, want one failed step", hist)
	}
}

func TestMemoryPreCheckFailsFast(t *testing.T) {
	thresholds := monitor.DefaultThresholds()
	stub := monitor.NewStub(256, thresholds) // below safe

	r := New(WithMonitor(stub))
	r.AddNode("heavy", setNode("ran", true))
	r.AddEdge(StartNode, "heavy", nil)
	r.AddEdge("heavy", EndNode, nil)

	state, err := r.Execute(context.Background(), StartNode)
	if !errors.Is(err, ErrMemoryPressure) {
		t.Fatalf("execute = %v, want ErrMemoryPressure", err)
	}
	if state["ran"] == true {
		t.Fatal("node ran despite memory pressure")
	}

	// Recovery admits the same walk.
	stub.SetAvailable(8192)
	state, err = r.Execute(context.Background(), StartNode)
	if err != nil {
		t.Fatalf("execute after recovery: %v", err)
	}
	if state["ran"] != true {
		t.Fatal("node did not run after recovery")
	}
}

func TestReservedAndDuplicateNodes(t *testing.T) {
	r := New()
	if err := r.AddNode(StartNode, nil); err == nil {
		t.Error("reserved node name accepted")
	}
	if err := r.AddNode("x", nil); err != nil {
		t.Fatal(err)
	}
	if err := r.AddNode("x", nil); err == nil {
		t.Error("duplicate node name accepted")
	}
	if err := r.AddEdge("x", "missing", nil); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("edge to missing node = %v, want ErrUnknownNode", err)
	}
}

func TestNoMatchingEdge(t *testing.T) {
	r := New()
	r.AddNode("dead", nil)
	r.AddEdge(StartNode, "dead", nil)

	_, err := r.Execute(context.Background(), StartNode)
	if !errors.Is(err, ErrNoEdge) {
		t.Fatalf("execute = %v, want ErrNoEdge", err)
	}
}
