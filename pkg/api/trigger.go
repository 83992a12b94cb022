package api

import (
	"encoding/json"
	"fmt"
)

// TriggerConfig is the typed configuration attached to a workflow definition,
// specific to its trigger type. Configs are decoded from JSON via
// DecodeTriggerConfig and validated up front so that malformed configuration
// is caught at authoring/plan time, not at execution time.
type TriggerConfig interface {
	// Validate reports whether the config is well-formed.
	Validate() error

	triggerConfig()
}

// CandidateCreatedTrigger has no parameters: every candidate_created event
// in the organization matches.
type CandidateCreatedTrigger struct{}

func (CandidateCreatedTrigger) Validate() error { return nil }
func (CandidateCreatedTrigger) triggerConfig()  {}

// ApplicationSubmittedTrigger has no parameters.
type ApplicationSubmittedTrigger struct{}

func (ApplicationSubmittedTrigger) Validate() error { return nil }
func (ApplicationSubmittedTrigger) triggerConfig()  {}

// StageChangedTrigger matches stage_changed events. An empty or "any" Stage
// matches every stage transition; otherwise the event's new stage must equal
// Stage.
type StageChangedTrigger struct {
	Stage string `json:"stage"`
}

func (StageChangedTrigger) Validate() error { return nil }
func (StageChangedTrigger) triggerConfig()  {}

// InactivityTrigger matches candidate_inactive sweep events whose
// inactive_days payload is at least Days.
type InactivityTrigger struct {
	Days int `json:"days"`
}

func (t InactivityTrigger) Validate() error {
	if t.Days <= 0 {
		return fmt.Errorf("inactivity trigger: days must be positive, got %d", t.Days)
	}
	return nil
}
func (InactivityTrigger) triggerConfig() {}

// ScheduleTrigger fires on a recurring interval. The sweep driver owns the
// cadence: it emits one time_based event per elapsed interval, tagged with
// interval_minutes, and the schedule matches the events of its own interval.
type ScheduleTrigger struct {
	EveryMinutes int `json:"every_minutes"`
}

func (t ScheduleTrigger) Validate() error {
	if t.EveryMinutes <= 0 {
		return fmt.Errorf("schedule trigger: every_minutes must be positive, got %d", t.EveryMinutes)
	}
	return nil
}
func (ScheduleTrigger) triggerConfig() {}

// ScoreThresholdTrigger matches score_threshold events whose score payload
// is greater than or equal to Threshold.
type ScoreThresholdTrigger struct {
	Threshold float64 `json:"threshold"`
}

func (ScoreThresholdTrigger) Validate() error { return nil }
func (ScoreThresholdTrigger) triggerConfig()  {}

// WebhookTrigger matches webhook_received events. An empty Slug matches any
// inbound hook; otherwise the event's slug payload must equal Slug.
type WebhookTrigger struct {
	Slug string `json:"slug"`
}

func (WebhookTrigger) Validate() error { return nil }
func (WebhookTrigger) triggerConfig()  {}

// DecodeTriggerConfig decodes raw JSON trigger parameters into the typed
// config for the given trigger type and validates it. Empty raw input yields
// the type's zero config, which is then validated like any other.
func DecodeTriggerConfig(t TriggerType, raw []byte) (TriggerConfig, error) {
	decode := func(dst TriggerConfig) (TriggerConfig, error) {
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, dst); err != nil {
				return nil, fmt.Errorf("decode %s trigger config: %w", t, err)
			}
		}
		return dst, nil
	}

	var (
		cfg TriggerConfig
		err error
	)
	switch t {
	case TriggerCandidateCreated:
		cfg, err = decode(&CandidateCreatedTrigger{})
	case TriggerApplicationSubmitted:
		cfg, err = decode(&ApplicationSubmittedTrigger{})
	case TriggerStageChanged:
		cfg, err = decode(&StageChangedTrigger{})
	case TriggerCandidateInactive:
		cfg, err = decode(&InactivityTrigger{})
	case TriggerTimeBased:
		cfg, err = decode(&ScheduleTrigger{})
	case TriggerScoreThreshold:
		cfg, err = decode(&ScoreThresholdTrigger{})
	case TriggerWebhookReceived:
		cfg, err = decode(&WebhookTrigger{})
	default:
		return nil, fmt.Errorf("unknown trigger type: %q", t)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EncodeTriggerConfig serializes a typed trigger config back to JSON for
// persistence. A nil config encodes as empty.
func EncodeTriggerConfig(cfg TriggerConfig) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}
	return json.Marshal(cfg)
}
