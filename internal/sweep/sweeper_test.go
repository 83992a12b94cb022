package sweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/recruitflow/recruitflow/internal/ledger"
	"github.com/recruitflow/recruitflow/pkg/api"
)

var sweepTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// eventRecorder records events handed to the engine; the embedded interface
// panics on anything else the sweeper should never call.
type eventRecorder struct {
	api.Engine

	mu     sync.Mutex
	events []api.Event
}

func (r *eventRecorder) HandleEvent(ctx context.Context, ev api.Event) ([]*api.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil, nil
}

func (r *eventRecorder) take() []api.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.events
	r.events = nil
	return evs
}

type staticLister struct {
	subjects []*api.Subject
}

func (l *staticLister) ListSubjects(ctx context.Context, orgID string) ([]*api.Subject, error) {
	return l.subjects, nil
}

func scheduleDefinition(id string, everyMinutes int) api.WorkflowDefinition {
	return api.WorkflowDefinition{
		ID:          id,
		OrgID:       "org-1",
		Name:        "digest " + id,
		TriggerType: api.TriggerTimeBased,
		Trigger:     &api.ScheduleTrigger{EveryMinutes: everyMinutes},
		Actions: []api.WorkflowAction{
			{Type: api.ActionAddTag, Config: &api.AddTagConfig{Tag: "swept"}},
		},
		Active: true,
	}
}

func inactivityDefinition(id string, days int) api.WorkflowDefinition {
	return api.WorkflowDefinition{
		ID:          id,
		OrgID:       "org-1",
		Name:        "nudge " + id,
		TriggerType: api.TriggerCandidateInactive,
		Trigger:     &api.InactivityTrigger{Days: days},
		Actions: []api.WorkflowAction{
			{Type: api.ActionAddTag, Config: &api.AddTagConfig{Tag: "stale"}},
		},
		Active: true,
	}
}

func newTestSweeper(t *testing.T, defs []api.WorkflowDefinition, subjects []*api.Subject) (*Sweeper, *eventRecorder) {
	t.Helper()

	store := ledger.NewInMemoryLedger()
	for _, def := range defs {
		if err := store.SaveDefinition(def); err != nil {
			t.Fatalf("SaveDefinition failed: %v", err)
		}
	}
	rec := &eventRecorder{}
	s := New(Config{
		Engine:      rec,
		Definitions: store,
		Subjects:    &staticLister{subjects: subjects},
		OrgIDs:      []string{"org-1"},
	})
	return s, rec
}

func TestSweepFiresSchedulePerSubject(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestSweeper(t,
		[]api.WorkflowDefinition{scheduleDefinition("def-1", 60)},
		[]*api.Subject{{ID: "cand-1"}, {ID: "cand-2"}},
	)

	s.Sweep(ctx, sweepTime)

	events := rec.take()
	if len(events) != 2 {
		t.Fatalf("expected one event per subject, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Type != api.TriggerTimeBased {
			t.Fatalf("expected time_based event, got %s", ev.Type)
		}
		if ev.Payload["interval_minutes"] != 60 {
			t.Fatalf("expected interval tag 60, got %v", ev.Payload["interval_minutes"])
		}
	}
}

func TestSweepRespectsCadence(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestSweeper(t,
		[]api.WorkflowDefinition{scheduleDefinition("def-1", 60)},
		[]*api.Subject{{ID: "cand-1"}},
	)

	s.Sweep(ctx, sweepTime)
	if got := len(rec.take()); got != 1 {
		t.Fatalf("first sweep should fire, got %d events", got)
	}

	s.Sweep(ctx, sweepTime.Add(30*time.Minute))
	if got := len(rec.take()); got != 0 {
		t.Fatalf("interval not elapsed, expected no events, got %d", got)
	}

	s.Sweep(ctx, sweepTime.Add(60*time.Minute))
	if got := len(rec.take()); got != 1 {
		t.Fatalf("interval elapsed, expected 1 event, got %d", got)
	}
}

func TestSweepGroupsSchedulesByInterval(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestSweeper(t,
		[]api.WorkflowDefinition{
			scheduleDefinition("def-hourly-a", 60),
			scheduleDefinition("def-hourly-b", 60),
			scheduleDefinition("def-daily", 1440),
		},
		[]*api.Subject{{ID: "cand-1"}},
	)

	s.Sweep(ctx, sweepTime)

	// Two distinct intervals, so two events; the definitions sharing an
	// interval both match the same event downstream.
	intervals := map[any]int{}
	for _, ev := range rec.take() {
		intervals[ev.Payload["interval_minutes"]]++
	}
	if len(intervals) != 2 || intervals[60] != 1 || intervals[1440] != 1 {
		t.Fatalf("expected one event per cadence group, got %v", intervals)
	}
}

func TestSweepEmitsInactivityEvents(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestSweeper(t,
		[]api.WorkflowDefinition{inactivityDefinition("def-1", 30)},
		[]*api.Subject{
			{ID: "cand-stale", LastActivityAt: sweepTime.AddDate(0, 0, -40)},
			{ID: "cand-fresh", LastActivityAt: sweepTime.AddDate(0, 0, -10)},
			{ID: "cand-never"}, // zero LastActivityAt is not inactivity
		},
	)

	s.Sweep(ctx, sweepTime)

	events := rec.take()
	if len(events) != 1 {
		t.Fatalf("expected 1 inactivity event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != api.TriggerCandidateInactive || ev.SubjectID != "cand-stale" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Payload["inactive_days"] != 40 {
		t.Fatalf("expected inactive_days 40, got %v", ev.Payload["inactive_days"])
	}
}

func TestSweepDeduplicatesInactivityPerDay(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestSweeper(t,
		[]api.WorkflowDefinition{inactivityDefinition("def-1", 30)},
		[]*api.Subject{{ID: "cand-1", LastActivityAt: sweepTime.AddDate(0, 0, -40)}},
	)

	s.Sweep(ctx, sweepTime)
	if got := len(rec.take()); got != 1 {
		t.Fatalf("expected 1 event on first sweep, got %d", got)
	}

	s.Sweep(ctx, sweepTime.Add(time.Hour))
	if got := len(rec.take()); got != 0 {
		t.Fatalf("expected dedupe within 24h, got %d events", got)
	}

	s.Sweep(ctx, sweepTime.Add(24*time.Hour))
	if got := len(rec.take()); got != 1 {
		t.Fatalf("expected re-emission after 24h, got %d events", got)
	}
}

func TestSweepNoDefinitionsNoEvents(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestSweeper(t, nil, []*api.Subject{{ID: "cand-1", LastActivityAt: sweepTime.AddDate(0, 0, -90)}})

	s.Sweep(ctx, sweepTime)
	if got := len(rec.take()); got != 0 {
		t.Fatalf("expected no events without definitions, got %d", got)
	}
}
