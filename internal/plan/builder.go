// Package plan turns a matched workflow definition into a concrete,
// time-ordered execution plan for one subject.
package plan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/recruitflow/recruitflow/internal/ledger"
	"github.com/recruitflow/recruitflow/pkg/api"
)

// Builder creates executions with their step plans in the ledger.
type Builder struct {
	executions ledger.ExecutionStore
	events     ledger.EventStore
	subjects   api.SubjectDirectory
	observer   api.Observer

	now func() time.Time
}

// Config describes how to construct a Builder. Subjects may be nil, in
// which case the subject-existence check is skipped (useful for tests and
// deployments where the event feed guarantees live subjects).
type Config struct {
	Executions ledger.ExecutionStore
	Events     ledger.EventStore
	Subjects   api.SubjectDirectory
	Observer   api.Observer

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// New creates a Builder.
func New(cfg Config) *Builder {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	events := cfg.Events
	if events == nil {
		events = ledger.NoopEventStore{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Builder{
		executions: cfg.Executions,
		events:     events,
		subjects:   cfg.Subjects,
		observer:   obs,
		now:        now,
	}
}

// Build creates and persists an execution for the definition and event.
//
// The definition's actions are walked in ascending order index (stable, so
// ties keep declaration order). Only the first step's ready-at time is
// computable up front (event time + its delay); later steps are persisted
// awaiting their predecessor, and scheduled by the executor when it
// completes.
//
// Under DuplicateSkip, an existing non-terminal execution for the same
// (definition, subject) is returned instead of creating a new one.
//
// If the subject no longer exists the execution is still created, but
// immediately failed with its steps skipped, so the audit view records the
// attempt.
func (b *Builder) Build(ctx context.Context, def api.WorkflowDefinition, ev api.Event) (*api.Execution, error) {
	if def.DuplicatePolicy == api.DuplicateSkip {
		existing, err := b.executions.FindNonTerminal(ctx, def.ID, ev.SubjectID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ledger.ErrExecutionNotFound) {
			return nil, fmt.Errorf("check for duplicate execution: %w", err)
		}
	}

	exec := &api.Execution{
		ID:           uuid.NewString(),
		DefinitionID: def.ID,
		OrgID:        def.OrgID,
		SubjectID:    ev.SubjectID,
		TriggerType:  def.TriggerType,
		Event:        ev,
		Status:       api.ExecutionPending,
		StartedAt:    b.now(),
	}

	steps := buildSteps(exec, def, ev)

	subjectErr := b.checkSubject(ctx, def.OrgID, ev.SubjectID)
	switch {
	case subjectErr != nil:
		exec.Status = api.ExecutionFailed
		exec.Error = subjectErr.Error()
		exec.FinishedAt = b.now()
		for _, step := range steps {
			step.Status = api.StepSkipped
			step.LastError = subjectErr.Error()
		}
	case len(steps) == 0:
		// A definition without actions is valid but produces no side
		// effects; the execution completes on the spot.
		exec.Status = api.ExecutionCompleted
		exec.FinishedAt = b.now()
	}

	if err := b.executions.CreateExecution(ctx, exec, steps); err != nil {
		return nil, fmt.Errorf("persist execution: %w", err)
	}

	b.audit(ctx, exec.ID, api.AuditExecutionCreated, -1, string(def.TriggerType))
	b.observer.OnExecutionStart(ctx, exec)

	switch exec.Status {
	case api.ExecutionFailed:
		b.audit(ctx, exec.ID, api.AuditExecutionFailed, -1, exec.Error)
		b.observer.OnExecutionFailed(ctx, exec, subjectErr)
	case api.ExecutionCompleted:
		b.audit(ctx, exec.ID, api.AuditExecutionCompleted, -1, "no actions configured")
		b.observer.OnExecutionCompleted(ctx, exec)
	default:
		if len(steps) > 0 {
			b.audit(ctx, exec.ID, api.AuditStepScheduled, steps[0].OrderIndex,
				fmt.Sprintf("ready at %s", steps[0].ReadyAt.Format(time.RFC3339)))
		}
	}

	return exec, nil
}

// buildSteps materializes the definition's actions as execution steps.
// The builder tolerates gaps in order indexes; only ascending order matters.
func buildSteps(exec *api.Execution, def api.WorkflowDefinition, ev api.Event) []*api.ExecutionStep {
	actions := make([]api.WorkflowAction, len(def.Actions))
	copy(actions, def.Actions)
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].OrderIndex < actions[j].OrderIndex
	})

	steps := make([]*api.ExecutionStep, 0, len(actions))
	for i, action := range actions {
		step := &api.ExecutionStep{
			ID:           uuid.NewString(),
			ExecutionID:  exec.ID,
			OrderIndex:   action.OrderIndex,
			ActionType:   action.Type,
			Config:       action.Config,
			DelayMinutes: action.DelayMinutes,
			Status:       api.StepAwaiting,
		}
		if i == 0 {
			readyAt := ev.OccurredAt.Add(time.Duration(action.DelayMinutes) * time.Minute)
			step.ReadyAt = &readyAt
			step.Status = api.StepScheduled
		}
		steps = append(steps, step)
	}
	return steps
}

func (b *Builder) checkSubject(ctx context.Context, orgID, subjectID string) error {
	if b.subjects == nil || subjectID == "" {
		return nil
	}
	_, err := b.subjects.GetSubject(ctx, orgID, subjectID)
	if err != nil {
		if errors.Is(err, api.ErrSubjectNotFound) {
			return api.ErrSubjectNotFound
		}
		return fmt.Errorf("resolve subject %s: %w", subjectID, err)
	}
	return nil
}

func (b *Builder) audit(ctx context.Context, executionID string, t api.AuditEventType, step int, detail string) {
	_ = b.events.AppendEvent(ctx, api.AuditEvent{
		ExecutionID: executionID,
		At:          b.now(),
		Type:        t,
		Step:        step,
		Detail:      detail,
	})
}
