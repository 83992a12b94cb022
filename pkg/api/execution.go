package api

import "time"

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// StepStatus is the lifecycle state of one execution step.
//
// Steps after the first are persisted as StepAwaiting until their
// predecessor finishes; only then is their ready-at time computable and the
// step moved to StepScheduled.
type StepStatus string

const (
	StepAwaiting  StepStatus = "awaiting"
	StepScheduled StepStatus = "scheduled"
	StepDue       StepStatus = "due"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Terminal reports whether the status admits no further transitions.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepSucceeded, StepFailed, StepSkipped:
		return true
	}
	return false
}

// Execution is one run of a workflow definition for one subject, produced by
// one matched event. The event payload is an immutable snapshot taken at
// trigger time.
//
// Executions are created exclusively by the plan builder and mutated only by
// the scheduler and executor through the ledger's conditional transitions.
// They are retained indefinitely for audit.
type Execution struct {
	ID           string
	DefinitionID string
	OrgID        string
	SubjectID    string
	TriggerType  TriggerType

	// Event is the triggering event snapshot.
	Event Event

	Status ExecutionStatus
	Error  string

	StartedAt  time.Time
	FinishedAt time.Time
}

// ExecutionStep is one action's scheduled/executed instance within an
// execution.
//
// ReadyAt is nil while the step awaits its predecessor; it is set to
// predecessor-completion + DelayMinutes when the step becomes scheduled
// (trigger time + delay for the first step).
type ExecutionStep struct {
	ID          string
	ExecutionID string
	OrderIndex  int

	ActionType   ActionType
	Config       ActionConfig
	DelayMinutes int

	ReadyAt *time.Time
	Status  StepStatus

	AttemptCount int
	LastError    string
}

// ExecutionListOptions filters ListExecutions. Zero values mean "no filter".
type ExecutionListOptions struct {
	DefinitionID string
	SubjectID    string
	Status       ExecutionStatus
}
