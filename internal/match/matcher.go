// Package match selects the active workflow definitions interested in a
// domain event. Matching is pure predicate evaluation: no side effects, and
// a definition with malformed trigger configuration is logged and skipped
// without aborting the rest of the batch.
package match

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/recruitflow/recruitflow/internal/ledger"
	"github.com/recruitflow/recruitflow/pkg/api"
)

// Matcher evaluates events against active definitions of the same
// organization and trigger type.
type Matcher struct {
	definitions ledger.DefinitionStore
	logger      *slog.Logger
}

// New creates a Matcher. If logger is nil, slog.Default() is used.
func New(definitions ledger.DefinitionStore, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{definitions: definitions, logger: logger}
}

// Match returns every active definition in the event's organization whose
// trigger type equals the event's and whose trigger config predicate
// evaluates true against the event payload.
func (m *Matcher) Match(ctx context.Context, ev api.Event) ([]api.WorkflowDefinition, error) {
	defs, err := m.definitions.ListActiveDefinitions(ev.OrgID, ev.Type)
	if err != nil {
		return nil, fmt.Errorf("list active definitions: %w", err)
	}

	var matched []api.WorkflowDefinition
	for _, def := range defs {
		ok, err := m.evaluate(def, ev)
		if err != nil {
			m.logger.WarnContext(ctx, "skipping definition with bad trigger config",
				slog.String("definition_id", def.ID),
				slog.String("trigger", string(def.TriggerType)),
				slog.Any("error", err),
			)
			continue
		}
		if ok {
			matched = append(matched, def)
		}
	}
	return matched, nil
}

// evaluate runs the predicate for one definition. It returns an error only
// for malformed configuration; a predicate that simply does not match
// returns (false, nil).
func (m *Matcher) evaluate(def api.WorkflowDefinition, ev api.Event) (bool, error) {
	cfg := def.Trigger
	if cfg == nil {
		// Definitions decoded from storage always carry a config; a nil
		// one from in-process authoring means "zero config".
		var err error
		cfg, err = api.DecodeTriggerConfig(def.TriggerType, nil)
		if err != nil {
			return false, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return false, err
	}

	switch c := cfg.(type) {
	case *api.CandidateCreatedTrigger, api.CandidateCreatedTrigger:
		return true, nil

	case *api.ApplicationSubmittedTrigger, api.ApplicationSubmittedTrigger:
		return true, nil

	case *api.StageChangedTrigger:
		return matchStage(c.Stage, ev), nil
	case api.StageChangedTrigger:
		return matchStage(c.Stage, ev), nil

	case *api.InactivityTrigger:
		return matchInactivity(c.Days, ev)
	case api.InactivityTrigger:
		return matchInactivity(c.Days, ev)

	case *api.ScheduleTrigger:
		return matchCadence(c.EveryMinutes, ev), nil
	case api.ScheduleTrigger:
		return matchCadence(c.EveryMinutes, ev), nil

	case *api.ScoreThresholdTrigger:
		return matchScore(c.Threshold, ev)
	case api.ScoreThresholdTrigger:
		return matchScore(c.Threshold, ev)

	case *api.WebhookTrigger:
		return matchSlug(c.Slug, ev), nil
	case api.WebhookTrigger:
		return matchSlug(c.Slug, ev), nil

	default:
		return false, fmt.Errorf("unsupported trigger config %T", cfg)
	}
}

func matchStage(want string, ev api.Event) bool {
	if want == "" || want == "any" {
		return true
	}
	got, ok := payloadString(ev.Payload, "stage")
	return ok && got == want
}

func matchInactivity(days int, ev api.Event) (bool, error) {
	got, ok := payloadNumber(ev.Payload, "inactive_days")
	if !ok {
		return false, fmt.Errorf("candidate_inactive event missing inactive_days payload")
	}
	return int(got) >= days, nil
}

// matchCadence pairs a schedule with the sweep tick that fired for its
// interval. A time_based event without an interval attribute (one injected
// manually) matches every schedule.
func matchCadence(every int, ev api.Event) bool {
	got, ok := payloadNumber(ev.Payload, "interval_minutes")
	if !ok {
		return true
	}
	return int(got) == every
}

func matchScore(threshold float64, ev api.Event) (bool, error) {
	got, ok := payloadNumber(ev.Payload, "score")
	if !ok {
		return false, fmt.Errorf("score_threshold event missing score payload")
	}
	return got >= threshold, nil
}

func matchSlug(want string, ev api.Event) bool {
	if want == "" {
		return true
	}
	got, ok := payloadString(ev.Payload, "slug")
	return ok && got == want
}

// payloadString fetches a string payload attribute.
func payloadString(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// payloadNumber fetches a numeric payload attribute. JSON decoding yields
// float64, but events built in-process may carry ints.
func payloadNumber(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
