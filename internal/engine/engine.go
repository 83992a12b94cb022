// Package engine wires the matcher and plan builder behind the public
// Engine interface.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/recruitflow/recruitflow/internal/ledger"
	"github.com/recruitflow/recruitflow/internal/match"
	"github.com/recruitflow/recruitflow/internal/plan"
	"github.com/recruitflow/recruitflow/pkg/api"
)

// Engine implements api.Engine on top of a ledger.
type Engine struct {
	ledger   ledger.Ledger
	matcher  *match.Matcher
	builder  *plan.Builder
	observer api.Observer
	logger   *slog.Logger
	now      func() time.Time
}

// Config describes how to construct an Engine.
type Config struct {
	Ledger   ledger.Ledger
	Subjects api.SubjectDirectory
	Observer api.Observer
	Logger   *slog.Logger

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// New creates an Engine.
func New(cfg Config) *Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Ledger.Events == nil {
		cfg.Ledger.Events = ledger.NoopEventStore{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		ledger:  cfg.Ledger,
		matcher: match.New(cfg.Ledger.Definitions, logger),
		builder: plan.New(plan.Config{
			Executions: cfg.Ledger.Executions,
			Events:     cfg.Ledger.Events,
			Subjects:   cfg.Subjects,
			Observer:   obs,
			Now:        now,
		}),
		observer: obs,
		logger:   logger,
		now:      now,
	}
}

// RegisterDefinition validates and publishes a definition to the matcher.
func (e *Engine) RegisterDefinition(def api.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid definition %q: %w", def.Name, err)
	}
	return e.ledger.Definitions.SaveDefinition(def)
}

// HandleEvent matches the event and builds one execution per matched
// definition. A build failure for one definition does not abort the others;
// the first error is returned alongside the executions that were created.
func (e *Engine) HandleEvent(ctx context.Context, ev api.Event) ([]*api.Execution, error) {
	if !api.KnownTriggerType(ev.Type) {
		return nil, fmt.Errorf("unknown trigger type %q", ev.Type)
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now()
	}

	defs, err := e.matcher.Match(ctx, ev)
	if err != nil {
		return nil, err
	}

	var (
		execs    []*api.Execution
		firstErr error
	)
	for _, def := range defs {
		exec, err := e.builder.Build(ctx, def, ev)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to build execution",
				slog.String("definition_id", def.ID),
				slog.Any("error", err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("definition %s: %w", def.ID, err)
			}
			continue
		}
		execs = append(execs, exec)
	}
	return execs, firstErr
}

func (e *Engine) GetExecution(ctx context.Context, id string) (*api.Execution, error) {
	return e.ledger.Executions.GetExecution(ctx, id)
}

func (e *Engine) ListExecutions(ctx context.Context, opts api.ExecutionListOptions) ([]*api.Execution, error) {
	return e.ledger.Executions.ListExecutions(ctx, opts)
}

func (e *Engine) ListSteps(ctx context.Context, executionID string) ([]*api.ExecutionStep, error) {
	return e.ledger.Executions.ListSteps(ctx, executionID)
}

func (e *Engine) AuditTrail(ctx context.Context, executionID string) ([]api.AuditEvent, error) {
	return e.ledger.Events.ListEvents(ctx, executionID)
}

// CancelExecution moves a pending or running execution to cancelled and
// skips all of its non-terminal steps. A step that is mid-flight finishes
// its attempt but nothing further is released.
func (e *Engine) CancelExecution(ctx context.Context, id string) error {
	exec, err := e.ledger.Executions.GetExecution(ctx, id)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return fmt.Errorf("execution %s is already %s", id, exec.Status)
	}

	cancelled := false
	for _, from := range []api.ExecutionStatus{api.ExecutionPending, api.ExecutionRunning} {
		ok, err := e.ledger.Executions.TransitionExecution(ctx, id, from, api.ExecutionCancelled, "cancelled by operator")
		if err != nil {
			return err
		}
		if ok {
			cancelled = true
			break
		}
	}
	if !cancelled {
		// Raced with a terminal transition; report the final state.
		exec, err := e.ledger.Executions.GetExecution(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("execution %s is already %s", id, exec.Status)
	}

	skipped, err := e.ledger.Executions.SkipPendingSteps(ctx, id, "execution cancelled")
	if err != nil {
		return fmt.Errorf("skip steps of %s: %w", id, err)
	}

	_ = e.ledger.Events.AppendEvent(ctx, api.AuditEvent{
		ExecutionID: id,
		At:          e.now(),
		Type:        api.AuditExecutionCancelled,
		Step:        -1,
		Detail:      fmt.Sprintf("%d steps skipped", skipped),
	})
	return nil
}

// Recover resets steps left in due/running by a crashed process back to
// scheduled. Call it before starting scheduler workers.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	n, err := e.ledger.Executions.RecoverInFlight(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.InfoContext(ctx, "recovered in-flight steps", slog.Int("count", n))
	}
	return n, nil
}

var _ api.Engine = (*Engine)(nil)
