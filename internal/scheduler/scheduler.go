// Package scheduler releases due execution steps for the executor.
//
// Waiting for a step's ready-at time is a polling model, not a blocking
// sleep per step: delays can span minutes to days and must survive process
// restarts, so the persisted ready-at in the ledger is the only timer state.
// Multiple scheduler workers may tick concurrently; the ledger's conditional
// scheduled → due transition guarantees each step is released exactly once.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/recruitflow/recruitflow/internal/ledger"
	"github.com/recruitflow/recruitflow/pkg/api"
)

// ReleaseFunc receives each step the scheduler wins the claim on.
type ReleaseFunc func(ctx context.Context, step *api.ExecutionStep)

// Scheduler finds scheduled steps whose ready-at has passed and whose
// predecessor has finished, claims them, and hands them to the release
// callback (normally the executor).
type Scheduler struct {
	executions ledger.ExecutionStore
	events     ledger.EventStore
	observer   api.Observer
	logger     *slog.Logger

	tick    time.Duration
	release ReleaseFunc
}

// Config describes how to construct a Scheduler.
type Config struct {
	Executions ledger.ExecutionStore
	Events     ledger.EventStore
	Observer   api.Observer
	Logger     *slog.Logger

	// Tick is the polling interval for Run. Zero means one second.
	Tick time.Duration

	// Release is invoked synchronously for every claimed step.
	Release ReleaseFunc
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	events := cfg.Events
	if events == nil {
		events = ledger.NoopEventStore{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tick := cfg.Tick
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{
		executions: cfg.Executions,
		events:     events,
		observer:   obs,
		logger:     logger,
		tick:       tick,
		release:    cfg.Release,
	}
}

// ReleaseDueSteps performs one scheduling pass at the given time and returns
// the steps this scheduler claimed. Steps are released in ascending
// ready-at order; that keeps global execution roughly chronological, while
// per-execution correctness comes from the ledger's predecessor check.
func (s *Scheduler) ReleaseDueSteps(ctx context.Context, now time.Time) ([]*api.ExecutionStep, error) {
	due, err := s.executions.DueSteps(ctx, now)
	if err != nil {
		return nil, err
	}

	var released []*api.ExecutionStep
	for _, step := range due {
		ok, err := s.executions.TransitionStep(ctx, step.ID, api.StepScheduled, api.StepDue, "")
		if err != nil {
			s.logger.ErrorContext(ctx, "claim step",
				slog.String("step_id", step.ID),
				slog.Any("error", err),
			)
			continue
		}
		if !ok {
			// Another scheduler claimed it first; not an error.
			continue
		}

		step.Status = api.StepDue
		released = append(released, step)

		_ = s.events.AppendEvent(ctx, api.AuditEvent{
			ExecutionID: step.ExecutionID,
			At:          now,
			Type:        api.AuditStepReleased,
			Step:        step.OrderIndex,
			Detail:      string(step.ActionType),
		})
		s.observer.OnStepReleased(ctx, step)

		if s.release != nil {
			s.release(ctx, step)
		}
	}
	return released, nil
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := s.ReleaseDueSteps(ctx, now); err != nil {
				s.logger.ErrorContext(ctx, "scheduling pass failed", slog.Any("error", err))
			}
		}
	}
}
