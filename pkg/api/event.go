package api

import "time"

// TriggerType identifies the class of domain event a workflow reacts to.
type TriggerType string

const (
	TriggerCandidateCreated     TriggerType = "candidate_created"
	TriggerApplicationSubmitted TriggerType = "application_submitted"
	TriggerStageChanged         TriggerType = "stage_changed"
	TriggerCandidateInactive    TriggerType = "candidate_inactive"
	TriggerTimeBased            TriggerType = "time_based"
	TriggerScoreThreshold       TriggerType = "score_threshold"
	TriggerWebhookReceived      TriggerType = "webhook_received"
)

// KnownTriggerType reports whether t is one of the supported trigger types.
func KnownTriggerType(t TriggerType) bool {
	switch t {
	case TriggerCandidateCreated, TriggerApplicationSubmitted, TriggerStageChanged,
		TriggerCandidateInactive, TriggerTimeBased, TriggerScoreThreshold,
		TriggerWebhookReceived:
		return true
	}
	return false
}

// Event is a normalized domain event fed into the engine.
//
// Producers (candidate creation, stage changes, the inactivity sweep, the
// webhook receiver) publish Events; the engine matches them against active
// workflow definitions and builds executions for each match.
//
// Payload carries trigger-specific attributes, for example:
//
//	stage_changed:      {"stage": "interview", "previous_stage": "screening"}
//	score_threshold:    {"score": 87.5}
//	candidate_inactive: {"inactive_days": 31}
//	webhook_received:   {"slug": "ats-sync", ...forwarded body...}
//
// The payload is snapshotted onto each Execution it produces, so later steps
// see the event as it was at trigger time even if the subject has changed.
type Event struct {
	OrgID      string         `json:"org_id"`
	Type       TriggerType    `json:"trigger_type"`
	SubjectID  string         `json:"subject_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
