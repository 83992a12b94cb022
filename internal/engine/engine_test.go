package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/recruitflow/recruitflow/internal/ledger"
	"github.com/recruitflow/recruitflow/pkg/api"
)

var engTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *ledger.InMemoryLedger) {
	t.Helper()

	store := ledger.NewInMemoryLedger()
	eng := New(Config{
		Ledger: ledger.Ledger{
			Definitions: store,
			Executions:  store,
			Events:      store,
		},
		Now: func() time.Time { return engTime },
	})
	return eng, store
}

func stageDefinition(id, stage string) api.WorkflowDefinition {
	return api.WorkflowDefinition{
		ID:          id,
		OrgID:       "org-1",
		Name:        "follow-up " + id,
		TriggerType: api.TriggerStageChanged,
		Trigger:     &api.StageChangedTrigger{Stage: stage},
		Actions: []api.WorkflowAction{
			{Type: api.ActionAddTag, Config: &api.AddTagConfig{Tag: "seen"}, OrderIndex: 0},
			{Type: api.ActionAddTag, Config: &api.AddTagConfig{Tag: "followed-up"}, OrderIndex: 1, DelayMinutes: 30},
		},
		Active: true,
	}
}

func stageEvent(stage string) api.Event {
	return api.Event{
		OrgID:      "org-1",
		Type:       api.TriggerStageChanged,
		SubjectID:  "cand-1",
		Payload:    map[string]any{"stage": stage},
		OccurredAt: engTime,
	}
}

func TestRegisterDefinitionValidates(t *testing.T) {
	eng, _ := newTestEngine(t)

	if err := eng.RegisterDefinition(stageDefinition("def-1", "interview")); err != nil {
		t.Fatalf("RegisterDefinition failed: %v", err)
	}

	bad := stageDefinition("def-2", "interview")
	bad.Name = ""
	if err := eng.RegisterDefinition(bad); err == nil {
		t.Fatal("expected validation error for nameless definition")
	}
}

func TestHandleEventCreatesExecutions(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)

	if err := eng.RegisterDefinition(stageDefinition("def-1", "interview")); err != nil {
		t.Fatal(err)
	}
	if err := eng.RegisterDefinition(stageDefinition("def-2", "any")); err != nil {
		t.Fatal(err)
	}
	if err := eng.RegisterDefinition(stageDefinition("def-3", "offer")); err != nil {
		t.Fatal(err)
	}

	execs, err := eng.HandleEvent(ctx, stageEvent("interview"))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(execs) != 2 {
		t.Fatalf("expected 2 executions (exact + wildcard), got %d", len(execs))
	}

	for _, exec := range execs {
		steps, err := store.ListSteps(ctx, exec.ID)
		if err != nil {
			t.Fatalf("ListSteps failed: %v", err)
		}
		if len(steps) != 2 {
			t.Fatalf("expected 2 steps per execution, got %d", len(steps))
		}
	}
}

func TestHandleEventNoMatch(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	if err := eng.RegisterDefinition(stageDefinition("def-1", "offer")); err != nil {
		t.Fatal(err)
	}

	execs, err := eng.HandleEvent(ctx, stageEvent("interview"))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(execs) != 0 {
		t.Fatalf("expected no executions, got %d", len(execs))
	}
}

func TestHandleEventRejectsUnknownTrigger(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	_, err := eng.HandleEvent(ctx, api.Event{
		OrgID:     "org-1",
		Type:      api.TriggerType("candidate_hired"),
		SubjectID: "cand-1",
	})
	if err == nil {
		t.Fatal("expected error for unknown trigger type")
	}
}

func TestHandleEventDefaultsOccurredAt(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)

	if err := eng.RegisterDefinition(stageDefinition("def-1", "interview")); err != nil {
		t.Fatal(err)
	}

	ev := stageEvent("interview")
	ev.OccurredAt = time.Time{}
	execs, err := eng.HandleEvent(ctx, ev)
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(execs))
	}

	steps, _ := store.ListSteps(ctx, execs[0].ID)
	if steps[0].ReadyAt == nil || !steps[0].ReadyAt.Equal(engTime) {
		t.Fatalf("head step should be scheduled at the injected clock time, got %v", steps[0].ReadyAt)
	}
}

func TestCancelExecution(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)

	if err := eng.RegisterDefinition(stageDefinition("def-1", "interview")); err != nil {
		t.Fatal(err)
	}
	execs, err := eng.HandleEvent(ctx, stageEvent("interview"))
	if err != nil || len(execs) != 1 {
		t.Fatalf("HandleEvent: execs=%d err=%v", len(execs), err)
	}
	id := execs[0].ID

	if err := eng.CancelExecution(ctx, id); err != nil {
		t.Fatalf("CancelExecution failed: %v", err)
	}

	exec, err := eng.GetExecution(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != api.ExecutionCancelled {
		t.Fatalf("expected cancelled, got %s", exec.Status)
	}

	steps, _ := store.ListSteps(ctx, id)
	for _, step := range steps {
		if step.Status != api.StepSkipped {
			t.Fatalf("step %d should be skipped, got %s", step.OrderIndex, step.Status)
		}
	}

	events, _ := eng.AuditTrail(ctx, id)
	last := events[len(events)-1]
	if last.Type != api.AuditExecutionCancelled {
		t.Fatalf("expected cancellation audit event, got %s", last.Type)
	}
	if !strings.Contains(last.Detail, "2 steps skipped") {
		t.Fatalf("expected skip count in detail, got %q", last.Detail)
	}
}

func TestCancelExecutionAlreadyTerminal(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)

	if err := eng.RegisterDefinition(stageDefinition("def-1", "interview")); err != nil {
		t.Fatal(err)
	}
	execs, err := eng.HandleEvent(ctx, stageEvent("interview"))
	if err != nil || len(execs) != 1 {
		t.Fatalf("HandleEvent: execs=%d err=%v", len(execs), err)
	}
	id := execs[0].ID

	if _, err := store.TransitionExecution(ctx, id, api.ExecutionPending, api.ExecutionCompleted, ""); err != nil {
		t.Fatal(err)
	}

	err = eng.CancelExecution(ctx, id)
	if err == nil {
		t.Fatal("expected error cancelling a completed execution")
	}
	if !strings.Contains(err.Error(), "already completed") {
		t.Fatalf("expected final state in error, got %v", err)
	}
}

func TestCancelExecutionNotFound(t *testing.T) {
	eng, _ := newTestEngine(t)

	if err := eng.CancelExecution(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown execution")
	}
}

func TestRecoverResetsInFlightSteps(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)

	if err := eng.RegisterDefinition(stageDefinition("def-1", "interview")); err != nil {
		t.Fatal(err)
	}
	execs, err := eng.HandleEvent(ctx, stageEvent("interview"))
	if err != nil || len(execs) != 1 {
		t.Fatalf("HandleEvent: execs=%d err=%v", len(execs), err)
	}

	steps, _ := store.ListSteps(ctx, execs[0].ID)
	if _, err := store.TransitionStep(ctx, steps[0].ID, api.StepScheduled, api.StepDue, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.TransitionStep(ctx, steps[0].ID, api.StepDue, api.StepRunning, ""); err != nil {
		t.Fatal(err)
	}

	n, err := eng.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recovered step, got %d", n)
	}

	step, _ := store.GetStep(ctx, steps[0].ID)
	if step.Status != api.StepScheduled {
		t.Fatalf("expected scheduled after recovery, got %s", step.Status)
	}
}
