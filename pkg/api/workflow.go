package api

import (
	"errors"
	"fmt"
	"time"
)

// DuplicatePolicy controls what happens when a new matching event arrives for
// a subject that already has a non-terminal execution of the same definition.
type DuplicatePolicy string

const (
	// DuplicateAllow creates a new, independent execution. This is the
	// default: rule systems expect repeated events (e.g. repeated stage
	// changes) to each run the workflow.
	DuplicateAllow DuplicatePolicy = "allow"

	// DuplicateSkip returns the existing non-terminal execution instead of
	// creating a new one.
	DuplicateSkip DuplicatePolicy = "skip"
)

// WorkflowAction is one side-effecting operation within a definition.
//
// OrderIndex defines execution order (ascending; the builder tolerates gaps).
// DelayMinutes is applied after the previous step completes, or after the
// trigger time for the first step.
type WorkflowAction struct {
	Type         ActionType
	Config       ActionConfig
	OrderIndex   int
	DelayMinutes int
}

// WorkflowDefinition is an authored automation rule: a trigger plus an
// ordered list of delayed actions. Definitions are authored outside the
// engine and are read-only inputs to it; the engine only ever creates and
// mutates executions.
//
// A definition with no actions is valid; its executions complete immediately
// with zero steps and no side effects.
type WorkflowDefinition struct {
	ID          string
	OrgID       string
	Name        string
	Description string

	TriggerType TriggerType
	Trigger     TriggerConfig

	Actions []WorkflowAction

	Active          bool
	DuplicatePolicy DuplicatePolicy

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the definition's structural invariants: known trigger type,
// valid trigger and action configs, non-negative delays, and no duplicate
// order indexes.
func (d *WorkflowDefinition) Validate() error {
	if d.ID == "" {
		return errors.New("definition id is required")
	}
	if d.Name == "" {
		return errors.New("definition name is required")
	}
	if !KnownTriggerType(d.TriggerType) {
		return fmt.Errorf("unknown trigger type: %q", d.TriggerType)
	}
	if d.Trigger != nil {
		if err := d.Trigger.Validate(); err != nil {
			return err
		}
	}

	seen := make(map[int]bool, len(d.Actions))
	for i, a := range d.Actions {
		if a.Config == nil {
			return fmt.Errorf("action %d (%s): config is required", i, a.Type)
		}
		if err := a.Config.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
		if a.DelayMinutes < 0 {
			return fmt.Errorf("action %d (%s): delay must not be negative", i, a.Type)
		}
		if seen[a.OrderIndex] {
			return fmt.Errorf("action %d (%s): duplicate order index %d", i, a.Type, a.OrderIndex)
		}
		seen[a.OrderIndex] = true
	}
	return nil
}
