// Package sweep synthesizes the events no external producer emits:
// time_based ticks for schedule-triggered workflows and candidate_inactive
// events derived from subject activity timestamps.
//
// The sweeper's cadence bookkeeping is in-memory only. After a restart every
// schedule fires on the next sweep and inactivity events are re-emitted; the
// duplicate policy on the definitions decides whether that produces new
// executions, so losing this state is harmless.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/recruitflow/recruitflow/internal/ledger"
	"github.com/recruitflow/recruitflow/pkg/api"
)

const defaultInterval = time.Minute

// Sweeper periodically scans each configured organization and feeds
// synthesized events into the engine.
type Sweeper struct {
	engine      api.Engine
	definitions ledger.DefinitionStore
	subjects    api.SubjectLister
	logger      *slog.Logger

	orgIDs   []string
	interval time.Duration
	now      func() time.Time

	mu sync.Mutex
	// lastTick records, per org and schedule interval, when that cadence
	// group last fired.
	lastTick map[string]time.Time
	// lastInactive records when a subject last produced an inactivity
	// event, so a long-inactive candidate yields one event per day rather
	// than one per sweep.
	lastInactive map[string]time.Time
}

// Config describes how to construct a Sweeper.
type Config struct {
	Engine      api.Engine
	Definitions ledger.DefinitionStore
	Subjects    api.SubjectLister
	Logger      *slog.Logger

	// OrgIDs are the organizations to sweep.
	OrgIDs []string

	// Interval is the polling interval for Run. Zero means one minute.
	Interval time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// New creates a Sweeper.
func New(cfg Config) *Sweeper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		engine:       cfg.Engine,
		definitions:  cfg.Definitions,
		subjects:     cfg.Subjects,
		logger:       logger,
		orgIDs:       cfg.OrgIDs,
		interval:     interval,
		now:          now,
		lastTick:     make(map[string]time.Time),
		lastInactive: make(map[string]time.Time),
	}
}

// Sweep performs one pass at the given time over every configured
// organization. Errors in one organization are logged and do not stop the
// others.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) {
	for _, orgID := range s.orgIDs {
		if err := s.sweepSchedules(ctx, orgID, now); err != nil {
			s.logger.ErrorContext(ctx, "schedule sweep failed",
				slog.String("org_id", orgID), slog.Any("error", err))
		}
		if err := s.sweepInactivity(ctx, orgID, now); err != nil {
			s.logger.ErrorContext(ctx, "inactivity sweep failed",
				slog.String("org_id", orgID), slog.Any("error", err))
		}
	}
}

// sweepSchedules fires one time_based event per subject for every cadence
// group whose interval has elapsed. Definitions sharing an interval fire
// together off a single event.
func (s *Sweeper) sweepSchedules(ctx context.Context, orgID string, now time.Time) error {
	defs, err := s.definitions.ListActiveDefinitions(orgID, api.TriggerTimeBased)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	if len(defs) == 0 {
		return nil
	}

	intervals := make(map[int]bool)
	for _, def := range defs {
		var schedule api.ScheduleTrigger
		switch cfg := def.Trigger.(type) {
		case *api.ScheduleTrigger:
			schedule = *cfg
		case api.ScheduleTrigger:
			schedule = cfg
		default:
			continue
		}
		if schedule.Validate() != nil {
			continue
		}
		intervals[schedule.EveryMinutes] = true
	}

	var due []int
	s.mu.Lock()
	for minutes := range intervals {
		key := fmt.Sprintf("%s/%d", orgID, minutes)
		last, seen := s.lastTick[key]
		if seen && now.Sub(last) < time.Duration(minutes)*time.Minute {
			continue
		}
		s.lastTick[key] = now
		due = append(due, minutes)
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return nil
	}

	subjects, err := s.subjects.ListSubjects(ctx, orgID)
	if err != nil {
		return fmt.Errorf("list subjects: %w", err)
	}

	for _, minutes := range due {
		for _, subject := range subjects {
			_, err := s.engine.HandleEvent(ctx, api.Event{
				OrgID:      orgID,
				Type:       api.TriggerTimeBased,
				SubjectID:  subject.ID,
				Payload:    map[string]any{"interval_minutes": minutes},
				OccurredAt: now,
			})
			if err != nil {
				s.logger.WarnContext(ctx, "time_based event rejected",
					slog.String("subject_id", subject.ID), slog.Any("error", err))
			}
		}
	}
	return nil
}

// sweepInactivity emits candidate_inactive events for subjects whose last
// activity is older than the smallest threshold any active definition cares
// about. Per-definition thresholds are applied by the matcher.
func (s *Sweeper) sweepInactivity(ctx context.Context, orgID string, now time.Time) error {
	defs, err := s.definitions.ListActiveDefinitions(orgID, api.TriggerCandidateInactive)
	if err != nil {
		return fmt.Errorf("list inactivity definitions: %w", err)
	}
	if len(defs) == 0 {
		return nil
	}

	minDays := 0
	for _, def := range defs {
		var trigger api.InactivityTrigger
		switch cfg := def.Trigger.(type) {
		case *api.InactivityTrigger:
			trigger = *cfg
		case api.InactivityTrigger:
			trigger = cfg
		default:
			continue
		}
		if trigger.Validate() != nil {
			continue
		}
		if minDays == 0 || trigger.Days < minDays {
			minDays = trigger.Days
		}
	}
	if minDays == 0 {
		return nil
	}

	subjects, err := s.subjects.ListSubjects(ctx, orgID)
	if err != nil {
		return fmt.Errorf("list subjects: %w", err)
	}

	for _, subject := range subjects {
		if subject.LastActivityAt.IsZero() {
			continue
		}
		inactiveDays := int(now.Sub(subject.LastActivityAt).Hours() / 24)
		if inactiveDays < minDays {
			continue
		}

		key := orgID + "/" + subject.ID
		s.mu.Lock()
		last, seen := s.lastInactive[key]
		if seen && now.Sub(last) < 24*time.Hour {
			s.mu.Unlock()
			continue
		}
		s.lastInactive[key] = now
		s.mu.Unlock()

		_, err := s.engine.HandleEvent(ctx, api.Event{
			OrgID:      orgID,
			Type:       api.TriggerCandidateInactive,
			SubjectID:  subject.ID,
			Payload:    map[string]any{"inactive_days": inactiveDays},
			OccurredAt: now,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "candidate_inactive event rejected",
				slog.String("subject_id", subject.ID), slog.Any("error", err))
		}
	}
	return nil
}

// Run sweeps once immediately, then on every tick until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.Sweep(ctx, s.now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Sweep(ctx, now)
		}
	}
}
