package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay step execution.
type Observer interface {
	// OnExecutionStart is called once when an execution is created by the
	// plan builder, before any step runs.
	OnExecutionStart(ctx context.Context, exec *Execution)

	// OnExecutionCompleted is called when an execution reaches
	// ExecutionCompleted.
	OnExecutionCompleted(ctx context.Context, exec *Execution)

	// OnExecutionFailed is called when an execution transitions to
	// ExecutionFailed.
	OnExecutionFailed(ctx context.Context, exec *Execution, err error)

	// OnStepReleased is called when the scheduler wins the claim on a due
	// step and hands it to the executor.
	OnStepReleased(ctx context.Context, step *ExecutionStep)

	// OnStepStart is called before the executor performs a step's action.
	OnStepStart(ctx context.Context, step *ExecutionStep)

	// OnStepCompleted is called after the action finishes, for both
	// successes and failures (err != nil).
	OnStepCompleted(ctx context.Context, step *ExecutionStep, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnExecutionStart(ctx context.Context, exec *Execution)                {}
func (NoopObserver) OnExecutionCompleted(ctx context.Context, exec *Execution)            {}
func (NoopObserver) OnExecutionFailed(ctx context.Context, exec *Execution, err error)    {}
func (NoopObserver) OnStepReleased(ctx context.Context, step *ExecutionStep)              {}
func (NoopObserver) OnStepStart(ctx context.Context, step *ExecutionStep)                 {}
func (NoopObserver) OnStepCompleted(ctx context.Context, step *ExecutionStep, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnExecutionStart(ctx context.Context, exec *Execution) {
	for _, o := range c.observers {
		o.OnExecutionStart(ctx, exec)
	}
}

func (c *CompositeObserver) OnExecutionCompleted(ctx context.Context, exec *Execution) {
	for _, o := range c.observers {
		o.OnExecutionCompleted(ctx, exec)
	}
}

func (c *CompositeObserver) OnExecutionFailed(ctx context.Context, exec *Execution, err error) {
	for _, o := range c.observers {
		o.OnExecutionFailed(ctx, exec, err)
	}
}

func (c *CompositeObserver) OnStepReleased(ctx context.Context, step *ExecutionStep) {
	for _, o := range c.observers {
		o.OnStepReleased(ctx, step)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, step *ExecutionStep) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, step)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, step *ExecutionStep, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, step, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs execution / step
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnExecutionStart(ctx context.Context, exec *Execution) {
	o.Logger.InfoContext(ctx, "execution_start",
		slog.String("execution_id", exec.ID),
		slog.String("definition_id", exec.DefinitionID),
		slog.String("subject_id", exec.SubjectID),
		slog.String("trigger", string(exec.TriggerType)),
	)
}

func (o *LoggingObserver) OnExecutionCompleted(ctx context.Context, exec *Execution) {
	o.Logger.InfoContext(ctx, "execution_completed",
		slog.String("execution_id", exec.ID),
		slog.String("definition_id", exec.DefinitionID),
	)
}

func (o *LoggingObserver) OnExecutionFailed(ctx context.Context, exec *Execution, err error) {
	o.Logger.ErrorContext(ctx, "execution_failed",
		slog.String("execution_id", exec.ID),
		slog.String("definition_id", exec.DefinitionID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepReleased(ctx context.Context, step *ExecutionStep) {
	o.Logger.DebugContext(ctx, "step_released",
		slog.String("execution_id", step.ExecutionID),
		slog.String("step_id", step.ID),
		slog.Int("order_index", step.OrderIndex),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, step *ExecutionStep) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("execution_id", step.ExecutionID),
		slog.String("step_id", step.ID),
		slog.String("action", string(step.ActionType)),
		slog.Int("order_index", step.OrderIndex),
		slog.Int("attempt", step.AttemptCount),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, step *ExecutionStep, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("execution_id", step.ExecutionID),
		slog.String("step_id", step.ID),
		slog.String("action", string(step.ActionType)),
		slog.Int("order_index", step.OrderIndex),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	executionsStarted   atomic.Int64
	executionsCompleted atomic.Int64
	executionsFailed    atomic.Int64
	stepsSucceeded      atomic.Int64
	stepsFailed         atomic.Int64
	totalStepDuration   atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	ExecutionsStarted   int64
	ExecutionsCompleted int64
	ExecutionsFailed    int64
	ExecutionsInFlight  int64

	StepsSucceeded  int64
	StepsFailed     int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnExecutionStart(ctx context.Context, exec *Execution) {
	m.executionsStarted.Add(1)
}

func (m *BasicMetrics) OnExecutionCompleted(ctx context.Context, exec *Execution) {
	m.executionsCompleted.Add(1)
}

func (m *BasicMetrics) OnExecutionFailed(ctx context.Context, exec *Execution, err error) {
	m.executionsFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, step *ExecutionStep, err error, d time.Duration) {
	if err != nil {
		m.stepsFailed.Add(1)
		return
	}
	m.stepsSucceeded.Add(1)
	m.totalStepDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.executionsStarted.Load()
	completed := m.executionsCompleted.Load()
	failed := m.executionsFailed.Load()
	succeeded := m.stepsSucceeded.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if succeeded > 0 {
		avg = time.Duration(totalNs / succeeded)
	}

	return BasicMetricsSnapshot{
		ExecutionsStarted:   started,
		ExecutionsCompleted: completed,
		ExecutionsFailed:    failed,
		ExecutionsInFlight:  started - completed - failed,
		StepsSucceeded:      succeeded,
		StepsFailed:         m.stepsFailed.Load(),
		AvgStepDuration:     avg,
	}
}
