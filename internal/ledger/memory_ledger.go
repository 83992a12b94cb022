package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/recruitflow/recruitflow/pkg/api"
)

// InMemoryLedger is a goroutine-safe DefinitionStore, ExecutionStore and
// EventStore backed by maps. It is non-durable and intended for tests and
// local development.
//
// All reads return copies so callers never share mutable state with the
// store; the conditional transitions are serialized by the mutex, which
// gives the same exactly-once claim semantics as the SQL backends.
type InMemoryLedger struct {
	mu          sync.RWMutex
	definitions map[string]api.WorkflowDefinition
	executions  map[string]*api.Execution
	steps       map[string]*api.ExecutionStep
	stepsByExec map[string][]string // step IDs sorted by order index
	events      map[string][]api.AuditEvent
}

// NewInMemoryLedger creates an empty InMemoryLedger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		definitions: make(map[string]api.WorkflowDefinition),
		executions:  make(map[string]*api.Execution),
		steps:       make(map[string]*api.ExecutionStep),
		stepsByExec: make(map[string][]string),
		events:      make(map[string][]api.AuditEvent),
	}
}

// Ensure InMemoryLedger implements the store interfaces.
var (
	_ DefinitionStore = (*InMemoryLedger)(nil)
	_ ExecutionStore  = (*InMemoryLedger)(nil)
	_ EventStore      = (*InMemoryLedger)(nil)
)

func (s *InMemoryLedger) SaveDefinition(def api.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.definitions[def.ID] = def
	return nil
}

func (s *InMemoryLedger) GetDefinition(id string) (api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.definitions[id]
	if !ok {
		return api.WorkflowDefinition{}, ErrDefinitionNotFound
	}
	return def, nil
}

func (s *InMemoryLedger) ListActiveDefinitions(orgID string, t api.TriggerType) ([]api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []api.WorkflowDefinition
	for _, def := range s.definitions {
		if !def.Active || def.OrgID != orgID || def.TriggerType != t {
			continue
		}
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *InMemoryLedger) CreateExecution(ctx context.Context, exec *api.Execution, steps []*api.ExecutionStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *exec
	s.executions[e.ID] = &e

	ids := make([]string, 0, len(steps))
	for _, step := range steps {
		st := *step
		s.steps[st.ID] = &st
		ids = append(ids, st.ID)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.steps[ids[i]].OrderIndex < s.steps[ids[j]].OrderIndex
	})
	s.stepsByExec[e.ID] = ids
	return nil
}

func (s *InMemoryLedger) GetExecution(ctx context.Context, id string) (*api.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	e := *exec
	return &e, nil
}

func (s *InMemoryLedger) ListExecutions(ctx context.Context, opts api.ExecutionListOptions) ([]*api.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Execution
	for _, exec := range s.executions {
		if opts.DefinitionID != "" && exec.DefinitionID != opts.DefinitionID {
			continue
		}
		if opts.SubjectID != "" && exec.SubjectID != opts.SubjectID {
			continue
		}
		if opts.Status != "" && exec.Status != opts.Status {
			continue
		}
		e := *exec
		result = append(result, &e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result, nil
}

func (s *InMemoryLedger) FindNonTerminal(ctx context.Context, definitionID, subjectID string) (*api.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, exec := range s.executions {
		if exec.DefinitionID == definitionID && exec.SubjectID == subjectID && !exec.Status.Terminal() {
			e := *exec
			return &e, nil
		}
	}
	return nil, ErrExecutionNotFound
}

func (s *InMemoryLedger) GetStep(ctx context.Context, id string) (*api.ExecutionStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	step, ok := s.steps[id]
	if !ok {
		return nil, ErrStepNotFound
	}
	st := *step
	return &st, nil
}

func (s *InMemoryLedger) ListSteps(ctx context.Context, executionID string) ([]*api.ExecutionStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, ok := s.stepsByExec[executionID]
	if !ok {
		if _, exists := s.executions[executionID]; !exists {
			return nil, ErrExecutionNotFound
		}
		return nil, nil
	}

	result := make([]*api.ExecutionStep, 0, len(ids))
	for _, id := range ids {
		st := *s.steps[id]
		result = append(result, &st)
	}
	return result, nil
}

func (s *InMemoryLedger) NextStep(ctx context.Context, executionID string, afterOrder int) (*api.ExecutionStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.stepsByExec[executionID] {
		if s.steps[id].OrderIndex > afterOrder {
			st := *s.steps[id]
			return &st, nil
		}
	}
	return nil, ErrStepNotFound
}

func (s *InMemoryLedger) DueSteps(ctx context.Context, now time.Time) ([]*api.ExecutionStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*api.ExecutionStep
	for _, step := range s.steps {
		if step.Status != api.StepScheduled || step.ReadyAt == nil || step.ReadyAt.After(now) {
			continue
		}
		exec, ok := s.executions[step.ExecutionID]
		if !ok || exec.Status.Terminal() {
			continue
		}
		if !s.predecessorDone(step) {
			continue
		}
		st := *step
		due = append(due, &st)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ReadyAt.Before(*due[j].ReadyAt) })
	return due, nil
}

// predecessorDone checks that every earlier step in the same execution is
// succeeded or skipped. Caller holds the lock.
func (s *InMemoryLedger) predecessorDone(step *api.ExecutionStep) bool {
	for _, id := range s.stepsByExec[step.ExecutionID] {
		other := s.steps[id]
		if other.OrderIndex >= step.OrderIndex {
			break
		}
		if other.Status != api.StepSucceeded && other.Status != api.StepSkipped {
			return false
		}
	}
	return true
}

func (s *InMemoryLedger) TransitionStep(ctx context.Context, stepID string, from, to api.StepStatus, detail string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.steps[stepID]
	if !ok {
		return false, ErrStepNotFound
	}
	if step.Status != from {
		return false, nil
	}
	step.Status = to
	step.LastError = detail
	if to == api.StepRunning {
		step.AttemptCount++
	}
	return true, nil
}

func (s *InMemoryLedger) ScheduleStep(ctx context.Context, stepID string, readyAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.steps[stepID]
	if !ok {
		return false, ErrStepNotFound
	}
	if step.Status != api.StepAwaiting {
		return false, nil
	}
	t := readyAt
	step.ReadyAt = &t
	step.Status = api.StepScheduled
	return true, nil
}

func (s *InMemoryLedger) TransitionExecution(ctx context.Context, executionID string, from, to api.ExecutionStatus, detail string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[executionID]
	if !ok {
		return false, ErrExecutionNotFound
	}
	if exec.Status != from {
		return false, nil
	}
	exec.Status = to
	if detail != "" {
		exec.Error = detail
	}
	if to.Terminal() {
		exec.FinishedAt = time.Now()
	}
	return true, nil
}

func (s *InMemoryLedger) SkipPendingSteps(ctx context.Context, executionID, detail string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	skipped := 0
	for _, id := range s.stepsByExec[executionID] {
		step := s.steps[id]
		switch step.Status {
		case api.StepAwaiting, api.StepScheduled, api.StepDue:
			step.Status = api.StepSkipped
			step.LastError = detail
			skipped++
		}
	}
	return skipped, nil
}

func (s *InMemoryLedger) RecoverInFlight(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reset := 0
	for _, step := range s.steps {
		if step.Status == api.StepDue || step.Status == api.StepRunning {
			step.Status = api.StepScheduled
			reset++
		}
	}
	return reset, nil
}

func (s *InMemoryLedger) AppendEvent(ctx context.Context, ev api.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.events[ev.ExecutionID] = append(s.events[ev.ExecutionID], ev)
	return nil
}

func (s *InMemoryLedger) ListEvents(ctx context.Context, executionID string) ([]api.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.events[executionID]
	out := make([]api.AuditEvent, len(evs))
	copy(out, evs)
	return out, nil
}
