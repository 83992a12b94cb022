package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recruitflow/recruitflow/pkg/api"
)

// RedisExecutionStore is an ExecutionStore backed by Redis. It uses a simple
// key structure:
//
//	<prefix>exec:<id>              => HASH of execution fields
//	<prefix>step:<id>              => HASH of step fields
//	<prefix>idx:exec:all           => SET of all execution IDs
//	<prefix>idx:pair:<def>:<subj>  => SET of execution IDs for a (definition, subject) pair
//	<prefix>idx:steps:<execID>     => ZSET of step IDs scored by order index
//	<prefix>idx:due                => ZSET of scheduled step IDs scored by ready-at
//	<prefix>idx:inflight           => SET of step IDs currently due/running
//	<prefix>audit:<execID>         => LIST of JSON audit events
//
// The conditional transitions run as Lua scripts so that the status check
// and update are atomic; racing claimants observe 0 and move on, same as the
// SQL backends' conditional UPDATE.
type RedisExecutionStore struct {
	client *redis.Client
	prefix string
}

// Ensure RedisExecutionStore implements the interfaces.
var (
	_ ExecutionStore = (*RedisExecutionStore)(nil)
	_ EventStore     = (*RedisExecutionStore)(nil)
)

// NewRedisExecutionStore creates a RedisExecutionStore.
// prefix is optional but recommended (e.g. "recruitflow:").
func NewRedisExecutionStore(client *redis.Client, prefix string) *RedisExecutionStore {
	if prefix == "" {
		prefix = "recruitflow:"
	}
	return &RedisExecutionStore{client: client, prefix: prefix}
}

func (s *RedisExecutionStore) keyExec(id string) string      { return s.prefix + "exec:" + id }
func (s *RedisExecutionStore) keyStep(id string) string      { return s.prefix + "step:" + id }
func (s *RedisExecutionStore) keyAll() string                { return s.prefix + "idx:exec:all" }
func (s *RedisExecutionStore) keySteps(execID string) string { return s.prefix + "idx:steps:" + execID }
func (s *RedisExecutionStore) keyDue() string                { return s.prefix + "idx:due" }
func (s *RedisExecutionStore) keyInflight() string           { return s.prefix + "idx:inflight" }
func (s *RedisExecutionStore) keyAudit(execID string) string { return s.prefix + "audit:" + execID }
func (s *RedisExecutionStore) keyPair(defID, subjID string) string {
	return s.prefix + "idx:pair:" + defID + ":" + subjID
}

// stepTransitionScript performs the status compare-and-swap on a step hash
// and keeps the due/inflight indexes consistent with the new status.
//
// KEYS: 1=step hash, 2=due zset, 3=inflight set
// ARGV: 1=from, 2=to, 3=detail, 4=stepID, 5=incrAttempt ("1"/"0")
var stepTransitionScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if cur ~= ARGV[1] then
    return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'last_error', ARGV[3])
if ARGV[5] == '1' then
    redis.call('HINCRBY', KEYS[1], 'attempt_count', 1)
end
if ARGV[1] == 'scheduled' then
    redis.call('ZREM', KEYS[2], ARGV[4])
end
if ARGV[2] == 'scheduled' then
    local ra = redis.call('HGET', KEYS[1], 'ready_at')
    if ra then
        redis.call('ZADD', KEYS[2], ra, ARGV[4])
    end
end
if ARGV[2] == 'due' or ARGV[2] == 'running' then
    redis.call('SADD', KEYS[3], ARGV[4])
else
    redis.call('SREM', KEYS[3], ARGV[4])
end
return 1
`)

// scheduleStepScript moves an awaiting step to scheduled and indexes it in
// the due zset.
//
// KEYS: 1=step hash, 2=due zset
// ARGV: 1=readyAt (unix nanos), 2=stepID
var scheduleStepScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if cur ~= 'awaiting' then
    return 0
end
redis.call('HSET', KEYS[1], 'status', 'scheduled', 'ready_at', ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// execTransitionScript performs the status compare-and-swap on an execution
// hash.
//
// KEYS: 1=exec hash
// ARGV: 1=from, 2=to, 3=detail, 4=finishedAt (unix nanos, "0" = none)
var execTransitionScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if cur ~= ARGV[1] then
    return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
if ARGV[3] ~= '' then
    redis.call('HSET', KEYS[1], 'error', ARGV[3])
end
if ARGV[4] ~= '0' then
    redis.call('HSET', KEYS[1], 'finished_at', ARGV[4])
end
return 1
`)

func (s *RedisExecutionStore) CreateExecution(ctx context.Context, exec *api.Execution, steps []*api.ExecutionStep) error {
	event, err := encodeEvent(exec.Event)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.keyExec(exec.ID), map[string]any{
		"definition_id": exec.DefinitionID,
		"org_id":        exec.OrgID,
		"subject_id":    exec.SubjectID,
		"trigger_type":  string(exec.TriggerType),
		"event":         string(event),
		"status":        string(exec.Status),
		"error":         exec.Error,
		"started_at":    exec.StartedAt.UnixNano(),
		"finished_at":   finishedAtNanos(exec.FinishedAt),
	})
	pipe.SAdd(ctx, s.keyAll(), exec.ID)
	pipe.SAdd(ctx, s.keyPair(exec.DefinitionID, exec.SubjectID), exec.ID)

	for _, step := range steps {
		config, err := encodeStepConfig(step)
		if err != nil {
			return err
		}
		fields := map[string]any{
			"execution_id":  step.ExecutionID,
			"order_index":   step.OrderIndex,
			"action_type":   string(step.ActionType),
			"action_config": string(config),
			"delay_minutes": step.DelayMinutes,
			"status":        string(step.Status),
			"attempt_count": step.AttemptCount,
			"last_error":    step.LastError,
		}
		if step.ReadyAt != nil {
			fields["ready_at"] = step.ReadyAt.UnixNano()
		}
		pipe.HSet(ctx, s.keyStep(step.ID), fields)
		pipe.ZAdd(ctx, s.keySteps(exec.ID), redis.Z{Score: float64(step.OrderIndex), Member: step.ID})
		if step.Status == api.StepScheduled && step.ReadyAt != nil {
			pipe.ZAdd(ctx, s.keyDue(), redis.Z{Score: float64(step.ReadyAt.UnixNano()), Member: step.ID})
		}
	}

	_, err = pipe.Exec(ctx)
	return err
}

func finishedAtNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func (s *RedisExecutionStore) loadExecution(ctx context.Context, id string) (*api.Execution, error) {
	fields, err := s.client.HGetAll(ctx, s.keyExec(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrExecutionNotFound
	}

	exec := &api.Execution{
		ID:           id,
		DefinitionID: fields["definition_id"],
		OrgID:        fields["org_id"],
		SubjectID:    fields["subject_id"],
		TriggerType:  api.TriggerType(fields["trigger_type"]),
		Status:       api.ExecutionStatus(fields["status"]),
		Error:        fields["error"],
	}
	if n, err := strconv.ParseInt(fields["started_at"], 10, 64); err == nil {
		exec.StartedAt = time.Unix(0, n)
	}
	if n, err := strconv.ParseInt(fields["finished_at"], 10, 64); err == nil && n != 0 {
		exec.FinishedAt = time.Unix(0, n)
	}

	ev, err := decodeEvent([]byte(fields["event"]))
	if err != nil {
		return nil, err
	}
	exec.Event = ev
	return exec, nil
}

func (s *RedisExecutionStore) loadStep(ctx context.Context, id string) (*api.ExecutionStep, error) {
	fields, err := s.client.HGetAll(ctx, s.keyStep(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrStepNotFound
	}

	step := &api.ExecutionStep{
		ID:          id,
		ExecutionID: fields["execution_id"],
		ActionType:  api.ActionType(fields["action_type"]),
		Status:      api.StepStatus(fields["status"]),
		LastError:   fields["last_error"],
	}
	step.OrderIndex, _ = strconv.Atoi(fields["order_index"])
	step.DelayMinutes, _ = strconv.Atoi(fields["delay_minutes"])
	step.AttemptCount, _ = strconv.Atoi(fields["attempt_count"])
	if raw, ok := fields["ready_at"]; ok && raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t := time.Unix(0, n)
			step.ReadyAt = &t
		}
	}
	if err := decodeStepConfig(step, []byte(fields["action_config"])); err != nil {
		return nil, err
	}
	return step, nil
}

func (s *RedisExecutionStore) GetExecution(ctx context.Context, id string) (*api.Execution, error) {
	return s.loadExecution(ctx, id)
}

func (s *RedisExecutionStore) ListExecutions(ctx context.Context, opts api.ExecutionListOptions) ([]*api.Execution, error) {
	ids, err := s.client.SMembers(ctx, s.keyAll()).Result()
	if err != nil {
		return nil, err
	}

	var executions []*api.Execution
	for _, id := range ids {
		exec, err := s.loadExecution(ctx, id)
		if err != nil {
			if errors.Is(err, ErrExecutionNotFound) {
				continue
			}
			return nil, err
		}
		if opts.DefinitionID != "" && exec.DefinitionID != opts.DefinitionID {
			continue
		}
		if opts.SubjectID != "" && exec.SubjectID != opts.SubjectID {
			continue
		}
		if opts.Status != "" && exec.Status != opts.Status {
			continue
		}
		executions = append(executions, exec)
	}
	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.Before(executions[j].StartedAt)
	})
	return executions, nil
}

func (s *RedisExecutionStore) FindNonTerminal(ctx context.Context, definitionID, subjectID string) (*api.Execution, error) {
	ids, err := s.client.SMembers(ctx, s.keyPair(definitionID, subjectID)).Result()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		exec, err := s.loadExecution(ctx, id)
		if err != nil {
			if errors.Is(err, ErrExecutionNotFound) {
				continue
			}
			return nil, err
		}
		if !exec.Status.Terminal() {
			return exec, nil
		}
	}
	return nil, ErrExecutionNotFound
}

func (s *RedisExecutionStore) GetStep(ctx context.Context, id string) (*api.ExecutionStep, error) {
	return s.loadStep(ctx, id)
}

func (s *RedisExecutionStore) ListSteps(ctx context.Context, executionID string) ([]*api.ExecutionStep, error) {
	ids, err := s.client.ZRange(ctx, s.keySteps(executionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if exists, err := s.client.Exists(ctx, s.keyExec(executionID)).Result(); err != nil {
			return nil, err
		} else if exists == 0 {
			return nil, ErrExecutionNotFound
		}
		return nil, nil
	}

	steps := make([]*api.ExecutionStep, 0, len(ids))
	for _, id := range ids {
		step, err := s.loadStep(ctx, id)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (s *RedisExecutionStore) NextStep(ctx context.Context, executionID string, afterOrder int) (*api.ExecutionStep, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.keySteps(executionID), &redis.ZRangeBy{
		Min:   "(" + strconv.Itoa(afterOrder),
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrStepNotFound
	}
	return s.loadStep(ctx, ids[0])
}

func (s *RedisExecutionStore) DueSteps(ctx context.Context, now time.Time) ([]*api.ExecutionStep, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.keyDue(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixNano(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	var due []*api.ExecutionStep
	for _, id := range ids {
		step, err := s.loadStep(ctx, id)
		if err != nil {
			if errors.Is(err, ErrStepNotFound) {
				continue
			}
			return nil, err
		}
		// The zset can lag behind a racing transition; re-check status.
		if step.Status != api.StepScheduled {
			continue
		}
		exec, err := s.loadExecution(ctx, step.ExecutionID)
		if err != nil {
			if errors.Is(err, ErrExecutionNotFound) {
				continue
			}
			return nil, err
		}
		if exec.Status.Terminal() {
			continue
		}
		ok, err := s.predecessorDone(ctx, step)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		due = append(due, step)
	}
	// ZRANGEBYSCORE already yields ready-at order.
	return due, nil
}

func (s *RedisExecutionStore) predecessorDone(ctx context.Context, step *api.ExecutionStep) (bool, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.keySteps(step.ExecutionID), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.Itoa(step.OrderIndex),
	}).Result()
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		status, err := s.client.HGet(ctx, s.keyStep(id), "status").Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return false, err
		}
		if status != string(api.StepSucceeded) && status != string(api.StepSkipped) {
			return false, nil
		}
	}
	return true, nil
}

func (s *RedisExecutionStore) TransitionStep(ctx context.Context, stepID string, from, to api.StepStatus, detail string) (bool, error) {
	if exists, err := s.client.Exists(ctx, s.keyStep(stepID)).Result(); err != nil {
		return false, err
	} else if exists == 0 {
		return false, ErrStepNotFound
	}

	incr := "0"
	if to == api.StepRunning {
		incr = "1"
	}
	res, err := stepTransitionScript.Run(ctx, s.client,
		[]string{s.keyStep(stepID), s.keyDue(), s.keyInflight()},
		string(from), string(to), detail, stepID, incr,
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisExecutionStore) ScheduleStep(ctx context.Context, stepID string, readyAt time.Time) (bool, error) {
	if exists, err := s.client.Exists(ctx, s.keyStep(stepID)).Result(); err != nil {
		return false, err
	} else if exists == 0 {
		return false, ErrStepNotFound
	}

	res, err := scheduleStepScript.Run(ctx, s.client,
		[]string{s.keyStep(stepID), s.keyDue()},
		readyAt.UnixNano(), stepID,
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisExecutionStore) TransitionExecution(ctx context.Context, executionID string, from, to api.ExecutionStatus, detail string) (bool, error) {
	if exists, err := s.client.Exists(ctx, s.keyExec(executionID)).Result(); err != nil {
		return false, err
	} else if exists == 0 {
		return false, ErrExecutionNotFound
	}

	finishedAt := int64(0)
	if to.Terminal() {
		finishedAt = time.Now().UnixNano()
	}
	res, err := execTransitionScript.Run(ctx, s.client,
		[]string{s.keyExec(executionID)},
		string(from), string(to), detail, strconv.FormatInt(finishedAt, 10),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisExecutionStore) SkipPendingSteps(ctx context.Context, executionID, detail string) (int, error) {
	steps, err := s.ListSteps(ctx, executionID)
	if err != nil {
		if errors.Is(err, ErrExecutionNotFound) {
			return 0, nil
		}
		return 0, err
	}

	skipped := 0
	for _, step := range steps {
		switch step.Status {
		case api.StepAwaiting, api.StepScheduled, api.StepDue:
			ok, err := s.TransitionStep(ctx, step.ID, step.Status, api.StepSkipped, detail)
			if err != nil {
				return skipped, err
			}
			if ok {
				skipped++
			}
		}
	}
	return skipped, nil
}

func (s *RedisExecutionStore) RecoverInFlight(ctx context.Context) (int, error) {
	ids, err := s.client.SMembers(ctx, s.keyInflight()).Result()
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, id := range ids {
		for _, from := range []api.StepStatus{api.StepDue, api.StepRunning} {
			ok, err := s.TransitionStep(ctx, id, from, api.StepScheduled, "")
			if err != nil {
				if errors.Is(err, ErrStepNotFound) {
					break
				}
				return reset, err
			}
			if ok {
				reset++
				break
			}
		}
	}
	return reset, nil
}

func (s *RedisExecutionStore) AppendEvent(ctx context.Context, ev api.AuditEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.keyAudit(ev.ExecutionID), data).Err()
}

func (s *RedisExecutionStore) ListEvents(ctx context.Context, executionID string) ([]api.AuditEvent, error) {
	items, err := s.client.LRange(ctx, s.keyAudit(executionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]api.AuditEvent, 0, len(items))
	for _, item := range items {
		var ev api.AuditEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
