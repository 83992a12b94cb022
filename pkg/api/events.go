package api

import "time"

// AuditEventType identifies an execution audit-trail record.
type AuditEventType string

const (
	AuditExecutionCreated   AuditEventType = "execution.created"
	AuditExecutionStarted   AuditEventType = "execution.started"
	AuditExecutionCompleted AuditEventType = "execution.completed"
	AuditExecutionFailed    AuditEventType = "execution.failed"
	AuditExecutionCancelled AuditEventType = "execution.cancelled"

	AuditStepScheduled AuditEventType = "step.scheduled"
	AuditStepReleased  AuditEventType = "step.released"
	AuditStepStarted   AuditEventType = "step.started"
	AuditStepSucceeded AuditEventType = "step.succeeded"
	AuditStepFailed    AuditEventType = "step.failed"
	AuditStepSkipped   AuditEventType = "step.skipped"
)

// AuditEvent is a minimal append-only record for the operator-facing audit
// view. It is intentionally small and stable; richer history can be layered
// later.
type AuditEvent struct {
	ExecutionID string
	At          time.Time
	Type        AuditEventType

	// Step is the order index of the step involved, or -1 for
	// execution-level events.
	Step int

	// Small, human-oriented details (e.g. action type, error string).
	// Keep this low-volume: do NOT dump large payloads here.
	Detail string
}
