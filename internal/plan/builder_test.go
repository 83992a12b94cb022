package plan

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/recruitflow/recruitflow/internal/ledger"
	"github.com/recruitflow/recruitflow/pkg/api"
)

var buildTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type stubDirectory struct {
	subjects map[string]*api.Subject
}

func (d *stubDirectory) GetSubject(ctx context.Context, orgID, subjectID string) (*api.Subject, error) {
	s, ok := d.subjects[subjectID]
	if !ok {
		return nil, api.ErrSubjectNotFound
	}
	return s, nil
}

func testDefinition() api.WorkflowDefinition {
	return api.WorkflowDefinition{
		ID:          "def-1",
		OrgID:       "org-1",
		Name:        "follow-up",
		TriggerType: api.TriggerStageChanged,
		Trigger:     &api.StageChangedTrigger{Stage: "interview"},
		Actions: []api.WorkflowAction{
			{Type: api.ActionSendEmail, Config: &api.SendEmailConfig{Subject: "Hi"}, OrderIndex: 0},
			{Type: api.ActionAddTag, Config: &api.AddTagConfig{Tag: "contacted"}, OrderIndex: 1, DelayMinutes: 60},
		},
		Active: true,
	}
}

func testEvent() api.Event {
	return api.Event{
		OrgID:      "org-1",
		Type:       api.TriggerStageChanged,
		SubjectID:  "cand-1",
		Payload:    map[string]any{"stage": "interview"},
		OccurredAt: buildTime,
	}
}

func newTestBuilder(store *ledger.InMemoryLedger, dir api.SubjectDirectory) *Builder {
	return New(Config{
		Executions: store,
		Events:     store,
		Subjects:   dir,
		Now:        func() time.Time { return buildTime },
	})
}

func TestBuildCreatesPlan(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemoryLedger()
	b := newTestBuilder(store, nil)

	exec, err := b.Build(ctx, testDefinition(), testEvent())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if exec.Status != api.ExecutionPending {
		t.Fatalf("expected pending execution, got %s", exec.Status)
	}
	if exec.Event.Payload["stage"] != "interview" {
		t.Fatal("event payload should be snapshotted onto the execution")
	}

	steps, err := store.ListSteps(ctx, exec.ID)
	if err != nil {
		t.Fatalf("ListSteps failed: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}

	first, second := steps[0], steps[1]
	if first.Status != api.StepScheduled {
		t.Fatalf("first step should be scheduled, got %s", first.Status)
	}
	if first.ReadyAt == nil || !first.ReadyAt.Equal(buildTime) {
		t.Fatalf("first step ReadyAt should equal the event time, got %v", first.ReadyAt)
	}
	if second.Status != api.StepAwaiting {
		t.Fatalf("second step should await its predecessor, got %s", second.Status)
	}
	if second.ReadyAt != nil {
		t.Fatal("awaiting step must not have a ReadyAt yet")
	}
}

func TestBuildFirstStepDelay(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemoryLedger()
	b := newTestBuilder(store, nil)

	def := testDefinition()
	def.Actions[0].DelayMinutes = 30

	exec, err := b.Build(ctx, def, testEvent())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	steps, _ := store.ListSteps(ctx, exec.ID)
	want := buildTime.Add(30 * time.Minute)
	if !steps[0].ReadyAt.Equal(want) {
		t.Fatalf("expected ReadyAt %s, got %s", want, steps[0].ReadyAt)
	}
}

func TestBuildSortsActionsByOrderIndex(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemoryLedger()
	b := newTestBuilder(store, nil)

	def := testDefinition()
	// Declared out of order, with a gap.
	def.Actions = []api.WorkflowAction{
		{Type: api.ActionAddTag, Config: &api.AddTagConfig{Tag: "late"}, OrderIndex: 10},
		{Type: api.ActionSendEmail, Config: &api.SendEmailConfig{Subject: "Hi"}, OrderIndex: 2},
	}

	exec, err := b.Build(ctx, def, testEvent())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	steps, _ := store.ListSteps(ctx, exec.ID)
	if steps[0].ActionType != api.ActionSendEmail || steps[1].ActionType != api.ActionAddTag {
		t.Fatalf("steps not ordered by index: %s then %s", steps[0].ActionType, steps[1].ActionType)
	}
	if steps[0].Status != api.StepScheduled {
		t.Fatal("lowest order index should be the scheduled head step")
	}
}

func TestBuildZeroActionsCompletesImmediately(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemoryLedger()
	b := newTestBuilder(store, nil)

	def := testDefinition()
	def.Actions = nil

	exec, err := b.Build(ctx, def, testEvent())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if exec.Status != api.ExecutionCompleted {
		t.Fatalf("expected completed, got %s", exec.Status)
	}

	steps, _ := store.ListSteps(ctx, exec.ID)
	if len(steps) != 0 {
		t.Fatalf("expected no steps, got %d", len(steps))
	}
}

func TestBuildMissingSubjectFailsExecution(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemoryLedger()
	b := newTestBuilder(store, &stubDirectory{subjects: map[string]*api.Subject{}})

	exec, err := b.Build(ctx, testDefinition(), testEvent())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if exec.Status != api.ExecutionFailed {
		t.Fatalf("expected failed execution, got %s", exec.Status)
	}
	if !strings.Contains(exec.Error, "subject not found") {
		t.Fatalf("expected subject-not-found error recorded, got %q", exec.Error)
	}

	steps, _ := store.ListSteps(ctx, exec.ID)
	for _, step := range steps {
		if step.Status != api.StepSkipped {
			t.Fatalf("expected skipped steps, got %s", step.Status)
		}
	}
}

func TestBuildDuplicateSkipReturnsExisting(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemoryLedger()
	b := newTestBuilder(store, nil)

	def := testDefinition()
	def.DuplicatePolicy = api.DuplicateSkip

	first, err := b.Build(ctx, def, testEvent())
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	second, err := b.Build(ctx, def, testEvent())
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing execution %s, got new %s", first.ID, second.ID)
	}

	execs, _ := store.ListExecutions(ctx, api.ExecutionListOptions{DefinitionID: def.ID})
	if len(execs) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(execs))
	}
}

func TestBuildDuplicateAllowCreatesNew(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemoryLedger()
	b := newTestBuilder(store, nil)

	def := testDefinition() // default policy is allow

	first, err := b.Build(ctx, def, testEvent())
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	second, err := b.Build(ctx, def, testEvent())
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("allow policy should create independent executions")
	}
}

func TestBuildDuplicateSkipIgnoresTerminal(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemoryLedger()
	b := newTestBuilder(store, nil)

	def := testDefinition()
	def.DuplicatePolicy = api.DuplicateSkip

	first, err := b.Build(ctx, def, testEvent())
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	// Drive the first execution to a terminal state.
	if _, err := store.TransitionExecution(ctx, first.ID, api.ExecutionPending, api.ExecutionCancelled, ""); err != nil {
		t.Fatalf("TransitionExecution failed: %v", err)
	}

	second, err := b.Build(ctx, def, testEvent())
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("terminal executions must not suppress new ones")
	}
}

func TestBuildWritesAuditTrail(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemoryLedger()
	b := newTestBuilder(store, nil)

	exec, err := b.Build(ctx, testDefinition(), testEvent())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	events, err := store.ListEvents(ctx, exec.ID)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) < 2 {
		t.Fatalf("expected creation and scheduling audit events, got %d", len(events))
	}
	if events[0].Type != api.AuditExecutionCreated {
		t.Fatalf("first audit event should be execution.created, got %s", events[0].Type)
	}
}
