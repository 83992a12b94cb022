package api

import "context"

// Engine is the high-level entry point of the automation engine: it accepts
// normalized domain events, matches them against registered definitions, and
// creates executions with their time-ordered step plans. Step release and
// action execution are driven separately by the scheduler and executor
// sharing the same ledger.
type Engine interface {
	// RegisterDefinition makes a definition visible to the matcher.
	// Definitions are authored outside the engine; registering an updated
	// definition with the same ID replaces the previous version.
	RegisterDefinition(def WorkflowDefinition) error

	// HandleEvent matches the event against active definitions and builds
	// one execution per match. Definitions whose trigger config is
	// malformed are skipped and logged; they never abort the batch.
	HandleEvent(ctx context.Context, ev Event) ([]*Execution, error)

	// GetExecution looks up an execution by ID.
	GetExecution(ctx context.Context, id string) (*Execution, error)

	// ListExecutions returns executions matching the given options, for
	// the operator-facing audit view.
	ListExecutions(ctx context.Context, opts ExecutionListOptions) ([]*Execution, error)

	// ListSteps returns an execution's steps in order index order.
	ListSteps(ctx context.Context, executionID string) ([]*ExecutionStep, error)

	// AuditTrail returns the append-only audit events for an execution.
	AuditTrail(ctx context.Context, executionID string) ([]AuditEvent, error)

	// CancelExecution marks a non-terminal execution cancelled and skips
	// all of its non-terminal steps. A step already running is allowed to
	// finish; nothing further is released.
	CancelExecution(ctx context.Context, id string) error

	// Recover resets steps stuck in due/running (for example after a
	// process crash) back to scheduled so the next tick re-releases them.
	// It returns the number of steps it reset.
	//
	// It is intended to be called on process startup before starting any
	// scheduler workers, so that no step is legitimately in flight when it
	// runs.
	Recover(ctx context.Context) (int, error)
}
