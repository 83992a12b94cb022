package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/recruitflow/recruitflow/pkg/api"
)

// Events and action configs are stored as JSON rather than a binary codec:
// payloads arrive as JSON from the event feed and webhook receiver, and the
// audit surface serves them back as JSON, so round-tripping through the same
// encoding keeps the stored snapshot inspectable with plain SQL tooling.

// encodeEvent serializes a triggering-event snapshot.
func encodeEvent(ev api.Event) ([]byte, error) {
	return json.Marshal(ev)
}

// decodeEvent restores a triggering-event snapshot.
func decodeEvent(data []byte) (api.Event, error) {
	var ev api.Event
	if len(data) == 0 {
		return ev, nil
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode event snapshot: %w", err)
	}
	return ev, nil
}

// encodeStepConfig serializes a step's typed action config.
func encodeStepConfig(step *api.ExecutionStep) ([]byte, error) {
	data, err := api.EncodeActionConfig(step.Config)
	if err != nil {
		return nil, fmt.Errorf("encode %s config for step %s: %w", step.ActionType, step.ID, err)
	}
	return data, nil
}

// decodeStepConfig restores a step's typed action config from its stored
// action type and JSON parameters.
func decodeStepConfig(step *api.ExecutionStep, raw []byte) error {
	cfg, err := api.DecodeActionConfig(step.ActionType, raw)
	if err != nil {
		return fmt.Errorf("decode %s config for step %s: %w", step.ActionType, step.ID, err)
	}
	step.Config = cfg
	return nil
}
