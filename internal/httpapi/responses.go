package httpapi

import (
	"time"

	"github.com/recruitflow/recruitflow/pkg/api"
)

// Response DTOs keep the wire format stable and snake_cased independently of
// the internal struct layout.

type executionResponse struct {
	ID           string          `json:"id"`
	DefinitionID string          `json:"definition_id"`
	OrgID        string          `json:"org_id"`
	SubjectID    string          `json:"subject_id,omitempty"`
	TriggerType  api.TriggerType `json:"trigger_type"`
	Event        api.Event       `json:"event"`
	Status       string          `json:"status"`
	Error        string          `json:"error,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

type stepResponse struct {
	ID           string           `json:"id"`
	ExecutionID  string           `json:"execution_id"`
	OrderIndex   int              `json:"order_index"`
	ActionType   api.ActionType   `json:"action_type"`
	Config       api.ActionConfig `json:"config"`
	DelayMinutes int              `json:"delay_minutes"`
	ReadyAt      *time.Time       `json:"ready_at,omitempty"`
	Status       string           `json:"status"`
	AttemptCount int              `json:"attempt_count"`
	LastError    string           `json:"last_error,omitempty"`
}

type auditResponse struct {
	ExecutionID string    `json:"execution_id"`
	At          time.Time `json:"at"`
	Type        string    `json:"type"`
	Step        int       `json:"step"`
	Detail      string    `json:"detail,omitempty"`
}

func executionJSON(exec *api.Execution) executionResponse {
	resp := executionResponse{
		ID:           exec.ID,
		DefinitionID: exec.DefinitionID,
		OrgID:        exec.OrgID,
		SubjectID:    exec.SubjectID,
		TriggerType:  exec.TriggerType,
		Event:        exec.Event,
		Status:       string(exec.Status),
		Error:        exec.Error,
		StartedAt:    exec.StartedAt,
	}
	if !exec.FinishedAt.IsZero() {
		t := exec.FinishedAt
		resp.FinishedAt = &t
	}
	return resp
}

func executionsJSON(execs []*api.Execution) []executionResponse {
	out := make([]executionResponse, 0, len(execs))
	for _, exec := range execs {
		out = append(out, executionJSON(exec))
	}
	return out
}

func stepJSON(step *api.ExecutionStep) stepResponse {
	return stepResponse{
		ID:           step.ID,
		ExecutionID:  step.ExecutionID,
		OrderIndex:   step.OrderIndex,
		ActionType:   step.ActionType,
		Config:       step.Config,
		DelayMinutes: step.DelayMinutes,
		ReadyAt:      step.ReadyAt,
		Status:       string(step.Status),
		AttemptCount: step.AttemptCount,
		LastError:    step.LastError,
	}
}

func auditJSON(ev api.AuditEvent) auditResponse {
	return auditResponse{
		ExecutionID: ev.ExecutionID,
		At:          ev.At,
		Type:        string(ev.Type),
		Step:        ev.Step,
		Detail:      ev.Detail,
	}
}
