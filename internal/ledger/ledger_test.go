package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/recruitflow/recruitflow/pkg/api"
)

var storeTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func makeExecution(defID, subjectID string) (*api.Execution, []*api.ExecutionStep) {
	exec := &api.Execution{
		ID:           uuid.NewString(),
		DefinitionID: defID,
		OrgID:        "org-1",
		SubjectID:    subjectID,
		TriggerType:  api.TriggerStageChanged,
		Event: api.Event{
			OrgID:      "org-1",
			Type:       api.TriggerStageChanged,
			SubjectID:  subjectID,
			Payload:    map[string]any{"stage": "interview"},
			OccurredAt: storeTime,
		},
		Status:    api.ExecutionPending,
		StartedAt: storeTime,
	}

	ready := storeTime
	steps := []*api.ExecutionStep{
		{
			ID:          uuid.NewString(),
			ExecutionID: exec.ID,
			OrderIndex:  0,
			ActionType:  api.ActionSendEmail,
			Config:      &api.SendEmailConfig{Subject: "Hi {{name}}"},
			ReadyAt:     &ready,
			Status:      api.StepScheduled,
		},
		{
			ID:           uuid.NewString(),
			ExecutionID:  exec.ID,
			OrderIndex:   1,
			ActionType:   api.ActionAddTag,
			Config:       &api.AddTagConfig{Tag: "contacted"},
			DelayMinutes: 60,
			Status:       api.StepAwaiting,
		},
	}
	return exec, steps
}

// runExecutionStoreSuite exercises the ExecutionStore contract shared by
// every backend.
func runExecutionStoreSuite(t *testing.T, store ExecutionStore) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		exec, steps := makeExecution("def-get", "cand-1")
		require.NoError(t, store.CreateExecution(ctx, exec, steps))

		got, err := store.GetExecution(ctx, exec.ID)
		require.NoError(t, err)
		require.Equal(t, exec.ID, got.ID)
		require.Equal(t, api.ExecutionPending, got.Status)
		require.Equal(t, "interview", got.Event.Payload["stage"])

		_, err = store.GetExecution(ctx, "missing")
		require.ErrorIs(t, err, ErrExecutionNotFound)
	})

	t.Run("ListSteps", func(t *testing.T) {
		exec, steps := makeExecution("def-steps", "cand-1")
		require.NoError(t, store.CreateExecution(ctx, exec, steps))

		got, err := store.ListSteps(ctx, exec.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, 0, got[0].OrderIndex)
		require.Equal(t, 1, got[1].OrderIndex)
		require.Equal(t, api.StepScheduled, got[0].Status)
		require.NotNil(t, got[0].ReadyAt)
		require.Nil(t, got[1].ReadyAt)

		cfg, ok := got[0].Config.(*api.SendEmailConfig)
		require.True(t, ok, "config should round-trip to its typed form, got %T", got[0].Config)
		require.Equal(t, "Hi {{name}}", cfg.Subject)
	})

	t.Run("ListExecutionsFilters", func(t *testing.T) {
		exec1, steps1 := makeExecution("def-list", "cand-a")
		exec2, steps2 := makeExecution("def-list", "cand-b")
		require.NoError(t, store.CreateExecution(ctx, exec1, steps1))
		require.NoError(t, store.CreateExecution(ctx, exec2, steps2))

		byDef, err := store.ListExecutions(ctx, api.ExecutionListOptions{DefinitionID: "def-list"})
		require.NoError(t, err)
		require.Len(t, byDef, 2)

		bySubject, err := store.ListExecutions(ctx, api.ExecutionListOptions{
			DefinitionID: "def-list",
			SubjectID:    "cand-a",
		})
		require.NoError(t, err)
		require.Len(t, bySubject, 1)
		require.Equal(t, exec1.ID, bySubject[0].ID)

		byStatus, err := store.ListExecutions(ctx, api.ExecutionListOptions{
			DefinitionID: "def-list",
			Status:       api.ExecutionCompleted,
		})
		require.NoError(t, err)
		require.Empty(t, byStatus)
	})

	t.Run("FindNonTerminal", func(t *testing.T) {
		exec, steps := makeExecution("def-dup", "cand-dup")
		require.NoError(t, store.CreateExecution(ctx, exec, steps))

		found, err := store.FindNonTerminal(ctx, "def-dup", "cand-dup")
		require.NoError(t, err)
		require.Equal(t, exec.ID, found.ID)

		_, err = store.FindNonTerminal(ctx, "def-dup", "cand-other")
		require.ErrorIs(t, err, ErrExecutionNotFound)

		ok, err := store.TransitionExecution(ctx, exec.ID, api.ExecutionPending, api.ExecutionCancelled, "")
		require.NoError(t, err)
		require.True(t, ok)

		_, err = store.FindNonTerminal(ctx, "def-dup", "cand-dup")
		require.ErrorIs(t, err, ErrExecutionNotFound)
	})

	t.Run("TransitionStepCAS", func(t *testing.T) {
		exec, steps := makeExecution("def-cas", "cand-1")
		require.NoError(t, store.CreateExecution(ctx, exec, steps))
		stepID := steps[0].ID

		ok, err := store.TransitionStep(ctx, stepID, api.StepScheduled, api.StepDue, "")
		require.NoError(t, err)
		require.True(t, ok)

		// Same from-status again: the CAS must fail without error.
		ok, err = store.TransitionStep(ctx, stepID, api.StepScheduled, api.StepDue, "")
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = store.TransitionStep(ctx, stepID, api.StepDue, api.StepRunning, "")
		require.NoError(t, err)
		require.True(t, ok)

		got, err := store.GetStep(ctx, stepID)
		require.NoError(t, err)
		require.Equal(t, api.StepRunning, got.Status)
		require.Equal(t, 1, got.AttemptCount, "transition to running increments attempts")

		ok, err = store.TransitionStep(ctx, stepID, api.StepRunning, api.StepFailed, "smtp boom")
		require.NoError(t, err)
		require.True(t, ok)

		got, err = store.GetStep(ctx, stepID)
		require.NoError(t, err)
		require.Equal(t, "smtp boom", got.LastError)
	})

	t.Run("ScheduleStep", func(t *testing.T) {
		exec, steps := makeExecution("def-sched", "cand-1")
		require.NoError(t, store.CreateExecution(ctx, exec, steps))

		readyAt := storeTime.Add(time.Hour)
		ok, err := store.ScheduleStep(ctx, steps[1].ID, readyAt)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := store.GetStep(ctx, steps[1].ID)
		require.NoError(t, err)
		require.Equal(t, api.StepScheduled, got.Status)
		require.NotNil(t, got.ReadyAt)
		require.True(t, got.ReadyAt.Equal(readyAt))

		// Only awaiting steps can be scheduled.
		ok, err = store.ScheduleStep(ctx, steps[1].ID, readyAt)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("DueSteps", func(t *testing.T) {
		exec, steps := makeExecution("def-due", "cand-1")
		require.NoError(t, store.CreateExecution(ctx, exec, steps))

		due, err := store.DueSteps(ctx, storeTime.Add(-time.Minute))
		require.NoError(t, err)
		require.Empty(t, filterByExec(due, exec.ID), "nothing due before ready-at")

		due, err = store.DueSteps(ctx, storeTime)
		require.NoError(t, err)
		mine := filterByExec(due, exec.ID)
		require.Len(t, mine, 1)
		require.Equal(t, 0, mine[0].OrderIndex)

		// The successor is never due, even with a past ready-at, until its
		// predecessor is succeeded or skipped.
		ok, err := store.ScheduleStep(ctx, steps[1].ID, storeTime)
		require.NoError(t, err)
		require.True(t, ok)

		due, err = store.DueSteps(ctx, storeTime.Add(time.Hour))
		require.NoError(t, err)
		mine = filterByExec(due, exec.ID)
		require.Len(t, mine, 1, "successor gated behind its unfinished predecessor")
		require.Equal(t, 0, mine[0].OrderIndex)

		_, err = store.TransitionStep(ctx, steps[0].ID, api.StepScheduled, api.StepDue, "")
		require.NoError(t, err)
		_, err = store.TransitionStep(ctx, steps[0].ID, api.StepDue, api.StepRunning, "")
		require.NoError(t, err)
		_, err = store.TransitionStep(ctx, steps[0].ID, api.StepRunning, api.StepSucceeded, "")
		require.NoError(t, err)

		due, err = store.DueSteps(ctx, storeTime.Add(time.Hour))
		require.NoError(t, err)
		mine = filterByExec(due, exec.ID)
		require.Len(t, mine, 1)
		require.Equal(t, 1, mine[0].OrderIndex)
	})

	t.Run("NextStep", func(t *testing.T) {
		exec, steps := makeExecution("def-next", "cand-1")
		require.NoError(t, store.CreateExecution(ctx, exec, steps))

		next, err := store.NextStep(ctx, exec.ID, 0)
		require.NoError(t, err)
		require.Equal(t, 1, next.OrderIndex)

		_, err = store.NextStep(ctx, exec.ID, 1)
		require.ErrorIs(t, err, ErrStepNotFound)
	})

	t.Run("SkipPendingSteps", func(t *testing.T) {
		exec, steps := makeExecution("def-skip", "cand-1")
		require.NoError(t, store.CreateExecution(ctx, exec, steps))

		n, err := store.SkipPendingSteps(ctx, exec.ID, "cancelled")
		require.NoError(t, err)
		require.Equal(t, 2, n)

		got, err := store.ListSteps(ctx, exec.ID)
		require.NoError(t, err)
		for _, step := range got {
			require.Equal(t, api.StepSkipped, step.Status)
			require.Equal(t, "cancelled", step.LastError)
		}
		_ = steps
	})

	t.Run("TransitionExecutionStampsFinish", func(t *testing.T) {
		exec, steps := makeExecution("def-finish", "cand-1")
		require.NoError(t, store.CreateExecution(ctx, exec, steps))

		ok, err := store.TransitionExecution(ctx, exec.ID, api.ExecutionPending, api.ExecutionRunning, "")
		require.NoError(t, err)
		require.True(t, ok)

		got, err := store.GetExecution(ctx, exec.ID)
		require.NoError(t, err)
		require.True(t, got.FinishedAt.IsZero(), "non-terminal transition must not stamp finish time")

		ok, err = store.TransitionExecution(ctx, exec.ID, api.ExecutionRunning, api.ExecutionFailed, "step 0 failed")
		require.NoError(t, err)
		require.True(t, ok)

		got, err = store.GetExecution(ctx, exec.ID)
		require.NoError(t, err)
		require.Equal(t, api.ExecutionFailed, got.Status)
		require.Equal(t, "step 0 failed", got.Error)
		require.False(t, got.FinishedAt.IsZero())

		// Terminal states are sticky.
		ok, err = store.TransitionExecution(ctx, exec.ID, api.ExecutionFailed, api.ExecutionRunning, "")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("RecoverInFlight", func(t *testing.T) {
		exec, steps := makeExecution("def-recover", "cand-1")
		require.NoError(t, store.CreateExecution(ctx, exec, steps))

		_, err := store.TransitionStep(ctx, steps[0].ID, api.StepScheduled, api.StepDue, "")
		require.NoError(t, err)
		_, err = store.TransitionStep(ctx, steps[0].ID, api.StepDue, api.StepRunning, "")
		require.NoError(t, err)

		n, err := store.RecoverInFlight(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 1)

		got, err := store.GetStep(ctx, steps[0].ID)
		require.NoError(t, err)
		require.Equal(t, api.StepScheduled, got.Status)
	})
}

// runEventStoreSuite exercises the append-only audit trail contract.
func runEventStoreSuite(t *testing.T, store EventStore) {
	ctx := context.Background()

	execID := uuid.NewString()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendEvent(ctx, api.AuditEvent{
			ExecutionID: execID,
			At:          storeTime.Add(time.Duration(i) * time.Second),
			Type:        api.AuditStepSucceeded,
			Step:        i,
			Detail:      fmt.Sprintf("step %d", i),
		}))
	}

	events, err := store.ListEvents(ctx, execID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		require.Equal(t, i, ev.Step, "events must come back in append order")
		require.Equal(t, execID, ev.ExecutionID)
	}

	other, err := store.ListEvents(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Empty(t, other)
}

func filterByExec(steps []*api.ExecutionStep, execID string) []*api.ExecutionStep {
	var out []*api.ExecutionStep
	for _, s := range steps {
		if s.ExecutionID == execID {
			out = append(out, s)
		}
	}
	return out
}
