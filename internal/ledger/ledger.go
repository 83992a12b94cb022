package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/recruitflow/recruitflow/pkg/api"
)

var (
	// ErrDefinitionNotFound is returned when a workflow definition is not found.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrExecutionNotFound is returned when an execution is not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrStepNotFound is returned when an execution step is not found.
	ErrStepNotFound = errors.New("step not found")
)

// DefinitionStore handles storage of workflow definitions. Definitions are
// authored outside the engine and read-only inputs to it, so the store's
// write surface exists only so the hosting process can publish them.
type DefinitionStore interface {
	SaveDefinition(def api.WorkflowDefinition) error
	GetDefinition(id string) (api.WorkflowDefinition, error)
	// ListActiveDefinitions returns every active definition in the
	// organization with the given trigger type.
	ListActiveDefinitions(orgID string, t api.TriggerType) ([]api.WorkflowDefinition, error)
}

// ExecutionStore is the durable record of executions and their steps: the
// single source of truth for engine state. All state transitions go through
// TransitionStep / TransitionExecution, which are atomic compare-and-swaps —
// when several workers race, exactly one observes ok=true and the rest see a
// no-op. Any in-memory scheduler state is a cache rebuildable from here.
type ExecutionStore interface {
	// CreateExecution persists an execution together with its full step
	// plan in one operation.
	CreateExecution(ctx context.Context, exec *api.Execution, steps []*api.ExecutionStep) error

	GetExecution(ctx context.Context, id string) (*api.Execution, error)
	ListExecutions(ctx context.Context, opts api.ExecutionListOptions) ([]*api.Execution, error)

	// FindNonTerminal returns a pending or running execution for the
	// (definition, subject) pair, or ErrExecutionNotFound.
	FindNonTerminal(ctx context.Context, definitionID, subjectID string) (*api.Execution, error)

	GetStep(ctx context.Context, id string) (*api.ExecutionStep, error)
	// ListSteps returns an execution's steps ordered by order index.
	ListSteps(ctx context.Context, executionID string) ([]*api.ExecutionStep, error)
	// NextStep returns the first step with order index greater than
	// afterOrder, or ErrStepNotFound when the execution has no more steps.
	NextStep(ctx context.Context, executionID string, afterOrder int) (*api.ExecutionStep, error)

	// DueSteps returns scheduled steps with ReadyAt <= now whose
	// predecessor (by order index within the same execution) is succeeded
	// or skipped and whose execution is still non-terminal, ordered by
	// ReadyAt ascending.
	DueSteps(ctx context.Context, now time.Time) ([]*api.ExecutionStep, error)

	// TransitionStep conditionally moves a step from one status to
	// another, recording detail as the step's last error text. The
	// transition to StepRunning also increments the attempt count.
	// Returns ok=false (and no error) when the step is not currently in
	// the from status — the caller lost the race.
	TransitionStep(ctx context.Context, stepID string, from, to api.StepStatus, detail string) (bool, error)

	// ScheduleStep moves an awaiting step to scheduled with the given
	// ready-at time. Returns ok=false when the step is not awaiting.
	ScheduleStep(ctx context.Context, stepID string, readyAt time.Time) (bool, error)

	// TransitionExecution conditionally moves an execution between
	// statuses, recording detail as its error text and stamping the
	// finish time on terminal transitions.
	TransitionExecution(ctx context.Context, executionID string, from, to api.ExecutionStatus, detail string) (bool, error)

	// SkipPendingSteps marks every awaiting/scheduled/due step of the
	// execution as skipped. Running steps are left alone; they finish on
	// their own. Returns the number of steps skipped.
	SkipPendingSteps(ctx context.Context, executionID, detail string) (int, error)

	// RecoverInFlight resets steps stuck in due/running back to scheduled
	// so a restarted scheduler re-releases them. Returns the number of
	// steps reset.
	RecoverInFlight(ctx context.Context) (int, error)
}

// EventStore is an append-only audit trail for execution lifecycle events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.AuditEvent) error
	ListEvents(ctx context.Context, executionID string) ([]api.AuditEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.AuditEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, executionID string) ([]api.AuditEvent, error) {
	return nil, nil
}

// Ledger bundles the three store interfaces so the engine can depend on a
// single abstraction.
type Ledger struct {
	Definitions DefinitionStore
	Executions  ExecutionStore
	Events      EventStore
}
