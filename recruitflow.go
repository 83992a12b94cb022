package recruitflow

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/recruitflow/recruitflow/internal/engine"
	"github.com/recruitflow/recruitflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Event                = api.Event
	TriggerType          = api.TriggerType
	TriggerConfig        = api.TriggerConfig
	ActionType           = api.ActionType
	ActionConfig         = api.ActionConfig
	WorkflowDefinition   = api.WorkflowDefinition
	WorkflowAction       = api.WorkflowAction
	DuplicatePolicy      = api.DuplicatePolicy
	Execution            = api.Execution
	ExecutionStep        = api.ExecutionStep
	ExecutionStatus      = api.ExecutionStatus
	StepStatus           = api.StepStatus
	ExecutionListOptions = api.ExecutionListOptions
	AuditEvent           = api.AuditEvent
	AuditEventType       = api.AuditEventType
	RetryPolicy          = api.RetryPolicy
	Capabilities         = api.Capabilities
	Subject              = api.Subject
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export error helpers used by capability implementations.

var (
	// ErrSubjectNotFound should be returned (possibly wrapped) by
	// SubjectDirectory implementations for missing subjects.
	ErrSubjectNotFound = api.ErrSubjectNotFound

	// Permanent marks an error as non-retryable.
	Permanent = api.Permanent

	// IsPermanent reports whether an error is non-retryable.
	IsPermanent = api.IsPermanent
)

// Re-export trigger types for convenience.

const (
	TriggerCandidateCreated     = api.TriggerCandidateCreated
	TriggerApplicationSubmitted = api.TriggerApplicationSubmitted
	TriggerStageChanged         = api.TriggerStageChanged
	TriggerCandidateInactive    = api.TriggerCandidateInactive
	TriggerTimeBased            = api.TriggerTimeBased
	TriggerScoreThreshold       = api.TriggerScoreThreshold
	TriggerWebhookReceived      = api.TriggerWebhookReceived
)

// Re-export status values for convenience.

const (
	ExecutionPending   = api.ExecutionPending
	ExecutionRunning   = api.ExecutionRunning
	ExecutionCompleted = api.ExecutionCompleted
	ExecutionFailed    = api.ExecutionFailed
	ExecutionCancelled = api.ExecutionCancelled

	StepAwaiting  = api.StepAwaiting
	StepScheduled = api.StepScheduled
	StepDue       = api.StepDue
	StepRunning   = api.StepRunning
	StepSucceeded = api.StepSucceeded
	StepFailed    = api.StepFailed
	StepSkipped   = api.StepSkipped

	DuplicateAllow = api.DuplicateAllow
	DuplicateSkip  = api.DuplicateSkip
)

// Re-export audit event types for convenience.

const (
	AuditExecutionCreated   = api.AuditExecutionCreated
	AuditExecutionStarted   = api.AuditExecutionStarted
	AuditExecutionCompleted = api.AuditExecutionCompleted
	AuditExecutionFailed    = api.AuditExecutionFailed
	AuditExecutionCancelled = api.AuditExecutionCancelled

	AuditStepScheduled = api.AuditStepScheduled
	AuditStepReleased  = api.AuditStepReleased
	AuditStepStarted   = api.AuditStepStarted
	AuditStepSucceeded = api.AuditStepSucceeded
	AuditStepFailed    = api.AuditStepFailed
	AuditStepSkipped   = api.AuditStepSkipped
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(obs)
}

// NewSQLiteEngine returns an Engine that persists executions and audit
// events in a SQLite database. Workflow definitions are kept in-memory.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, obs)
}

// NewPostgresEngine returns an Engine that persists executions in PostgreSQL.
func NewPostgresEngine(db *sql.DB) (Engine, error) {
	return engine.NewPostgresEngine(db)
}

// NewPostgresEngineWithObserver returns a Postgres-backed Engine with the given Observer.
func NewPostgresEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewPostgresEngineWithObserver(db, obs)
}

// NewRedisEngine returns an Engine that persists executions in Redis.
func NewRedisEngine(client *redis.Client) Engine {
	return engine.NewRedisEngine(client)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given Observer.
func NewRedisEngineWithObserver(client *redis.Client, obs Observer) Engine {
	return engine.NewRedisEngineWithObserver(client, obs)
}

// Convenience helpers that just forward to the underlying Engine.

// HandleEvent feeds a domain event to the engine and returns the executions
// it produced.
func HandleEvent(ctx context.Context, eng Engine, ev Event) ([]*Execution, error) {
	return eng.HandleEvent(ctx, ev)
}

// GetExecution fetches an execution by ID.
func GetExecution(ctx context.Context, eng Engine, id string) (*Execution, error) {
	return eng.GetExecution(ctx, id)
}

// ListExecutions lists executions according to the given options.
func ListExecutions(ctx context.Context, eng Engine, opts ExecutionListOptions) ([]*Execution, error) {
	return eng.ListExecutions(ctx, opts)
}

// CancelExecution cancels a non-terminal execution.
func CancelExecution(ctx context.Context, eng Engine, id string) error {
	return eng.CancelExecution(ctx, id)
}

// Recover delegates to eng.Recover.
//
// It is typically called on process startup before starting any workers:
//
//	count, err := recruitflow.Recover(ctx, engine)
func Recover(ctx context.Context, eng Engine) (int, error) {
	return eng.Recover(ctx)
}
