package api

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBasicMetricsSnapshot(t *testing.T) {
	ctx := context.Background()
	m := &BasicMetrics{}

	exec := &Execution{ID: "e1"}
	step := &ExecutionStep{ID: "s1"}

	m.OnExecutionStart(ctx, exec)
	m.OnExecutionStart(ctx, exec)
	m.OnExecutionStart(ctx, exec)
	m.OnExecutionCompleted(ctx, exec)
	m.OnExecutionFailed(ctx, exec, errors.New("boom"))

	m.OnStepCompleted(ctx, step, nil, 100*time.Millisecond)
	m.OnStepCompleted(ctx, step, nil, 300*time.Millisecond)
	m.OnStepCompleted(ctx, step, errors.New("boom"), 50*time.Millisecond)

	snap := m.Snapshot()
	if snap.ExecutionsStarted != 3 {
		t.Fatalf("expected 3 started, got %d", snap.ExecutionsStarted)
	}
	if snap.ExecutionsCompleted != 1 || snap.ExecutionsFailed != 1 {
		t.Fatalf("unexpected completion counters: %+v", snap)
	}
	if snap.ExecutionsInFlight != 1 {
		t.Fatalf("expected 1 in flight, got %d", snap.ExecutionsInFlight)
	}
	if snap.StepsSucceeded != 2 || snap.StepsFailed != 1 {
		t.Fatalf("unexpected step counters: %+v", snap)
	}
	if snap.AvgStepDuration != 200*time.Millisecond {
		t.Fatalf("expected 200ms average, got %s", snap.AvgStepDuration)
	}
}

type countingObserver struct {
	NoopObserver
	starts int
}

func (c *countingObserver) OnExecutionStart(ctx context.Context, exec *Execution) {
	c.starts++
}

func TestCompositeObserverFansOut(t *testing.T) {
	ctx := context.Background()
	a := &countingObserver{}
	b := &countingObserver{}

	obs := NewCompositeObserver(a, nil, b)
	obs.OnExecutionStart(ctx, &Execution{ID: "e1"})

	if a.starts != 1 || b.starts != 1 {
		t.Fatalf("expected both observers to see the event, got %d and %d", a.starts, b.starts)
	}
}

func TestCompositeObserverCollapses(t *testing.T) {
	if _, ok := NewCompositeObserver().(NoopObserver); !ok {
		t.Fatal("empty composite should collapse to NoopObserver")
	}
	single := &countingObserver{}
	if NewCompositeObserver(single, nil) != Observer(single) {
		t.Fatal("single-observer composite should return the observer itself")
	}
}
