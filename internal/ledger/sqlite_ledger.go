package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/recruitflow/recruitflow/pkg/api"
)

// SQLiteExecutionStore is an ExecutionStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the driver,
// e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteExecutionStore struct {
	db *sql.DB
}

// Ensure SQLiteExecutionStore implements ExecutionStore.
var _ ExecutionStore = (*SQLiteExecutionStore)(nil)

// NewSQLiteExecutionStore initializes the required schema in the given
// database and returns a new SQLiteExecutionStore.
func NewSQLiteExecutionStore(db *sql.DB) (*SQLiteExecutionStore, error) {
	s := &SQLiteExecutionStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteExecutionStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			definition_id TEXT NOT NULL,
			org_id TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			event TEXT,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_executions_def_subject
			ON executions(definition_id, subject_id, status);

		CREATE TABLE IF NOT EXISTS steps (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			order_index INTEGER NOT NULL,
			action_type TEXT NOT NULL,
			action_config TEXT,
			delay_minutes INTEGER NOT NULL,
			ready_at INTEGER,
			status TEXT NOT NULL,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			UNIQUE(execution_id, order_index)
		);
		CREATE INDEX IF NOT EXISTS idx_steps_status_ready ON steps(status, ready_at);
	`)
	return err
}

func (s *SQLiteExecutionStore) CreateExecution(ctx context.Context, exec *api.Execution, steps []*api.ExecutionStep) error {
	event, err := encodeEvent(exec.Event)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var finishedAt sql.NullInt64
	if !exec.FinishedAt.IsZero() {
		finishedAt = sql.NullInt64{Int64: exec.FinishedAt.UnixNano(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO executions (id, definition_id, org_id, subject_id, trigger_type, event, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID,
		exec.DefinitionID,
		exec.OrgID,
		exec.SubjectID,
		string(exec.TriggerType),
		event,
		string(exec.Status),
		exec.Error,
		exec.StartedAt.UnixNano(),
		finishedAt,
	)
	if err != nil {
		return err
	}

	for _, step := range steps {
		config, err := encodeStepConfig(step)
		if err != nil {
			return err
		}
		var readyAt sql.NullInt64
		if step.ReadyAt != nil {
			readyAt = sql.NullInt64{Int64: step.ReadyAt.UnixNano(), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO steps (id, execution_id, order_index, action_type, action_config, delay_minutes, ready_at, status, attempt_count, last_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			step.ID,
			step.ExecutionID,
			step.OrderIndex,
			string(step.ActionType),
			config,
			step.DelayMinutes,
			readyAt,
			string(step.Status),
			step.AttemptCount,
			step.LastError,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

const executionColumns = `id, definition_id, org_id, subject_id, trigger_type, event, status, error, started_at, finished_at`

func scanExecution(row interface{ Scan(...any) error }) (*api.Execution, error) {
	var (
		exec       api.Execution
		trigger    string
		event      []byte
		status     string
		startedAt  int64
		finishedAt sql.NullInt64
	)
	if err := row.Scan(&exec.ID, &exec.DefinitionID, &exec.OrgID, &exec.SubjectID,
		&trigger, &event, &status, &exec.Error, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	exec.TriggerType = api.TriggerType(trigger)
	exec.Status = api.ExecutionStatus(status)
	exec.StartedAt = time.Unix(0, startedAt)
	if finishedAt.Valid {
		exec.FinishedAt = time.Unix(0, finishedAt.Int64)
	}

	ev, err := decodeEvent(event)
	if err != nil {
		return nil, err
	}
	exec.Event = ev
	return &exec, nil
}

func (s *SQLiteExecutionStore) GetExecution(ctx context.Context, id string) (*api.Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)

	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, err
	}
	return exec, nil
}

func (s *SQLiteExecutionStore) ListExecutions(ctx context.Context, opts api.ExecutionListOptions) ([]*api.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions`
	var args []any
	var clauses []string

	if opts.DefinitionID != "" {
		clauses = append(clauses, "definition_id = ?")
		args = append(args, opts.DefinitionID)
	}
	if opts.SubjectID != "" {
		clauses = append(clauses, "subject_id = ?")
		args = append(args, opts.SubjectID)
	}
	if opts.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(opts.Status))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*api.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, exec)
	}
	return executions, rows.Err()
}

func (s *SQLiteExecutionStore) FindNonTerminal(ctx context.Context, definitionID, subjectID string) (*api.Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+executionColumns+` FROM executions
		WHERE definition_id = ? AND subject_id = ? AND status IN ('pending', 'running')
		ORDER BY started_at
		LIMIT 1`, definitionID, subjectID)

	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, err
	}
	return exec, nil
}

const stepColumns = `id, execution_id, order_index, action_type, action_config, delay_minutes, ready_at, status, attempt_count, last_error`

func scanStep(row interface{ Scan(...any) error }) (*api.ExecutionStep, error) {
	var (
		step    api.ExecutionStep
		action  string
		config  []byte
		readyAt sql.NullInt64
		status  string
	)
	if err := row.Scan(&step.ID, &step.ExecutionID, &step.OrderIndex, &action, &config,
		&step.DelayMinutes, &readyAt, &status, &step.AttemptCount, &step.LastError); err != nil {
		return nil, err
	}

	step.ActionType = api.ActionType(action)
	step.Status = api.StepStatus(status)
	if readyAt.Valid {
		t := time.Unix(0, readyAt.Int64)
		step.ReadyAt = &t
	}
	if err := decodeStepConfig(&step, config); err != nil {
		return nil, err
	}
	return &step, nil
}

func (s *SQLiteExecutionStore) GetStep(ctx context.Context, id string) (*api.ExecutionStep, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stepColumns+` FROM steps WHERE id = ?`, id)

	step, err := scanStep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStepNotFound
		}
		return nil, err
	}
	return step, nil
}

func (s *SQLiteExecutionStore) ListSteps(ctx context.Context, executionID string) ([]*api.ExecutionStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stepColumns+` FROM steps
		WHERE execution_id = ?
		ORDER BY order_index`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*api.ExecutionStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *SQLiteExecutionStore) NextStep(ctx context.Context, executionID string, afterOrder int) (*api.ExecutionStep, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stepColumns+` FROM steps
		WHERE execution_id = ? AND order_index > ?
		ORDER BY order_index
		LIMIT 1`, executionID, afterOrder)

	step, err := scanStep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStepNotFound
		}
		return nil, err
	}
	return step, nil
}

func (s *SQLiteExecutionStore) DueSteps(ctx context.Context, now time.Time) ([]*api.ExecutionStep, error) {
	// The predecessor check is the correctness guarantee: a step is only
	// due once every earlier step of its execution is succeeded or
	// skipped. ReadyAt ordering keeps release roughly chronological.
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.execution_id, s.order_index, s.action_type, s.action_config,
		       s.delay_minutes, s.ready_at, s.status, s.attempt_count, s.last_error
		FROM steps s
		JOIN executions e ON e.id = s.execution_id
		WHERE s.status = 'scheduled'
		  AND s.ready_at <= ?
		  AND e.status IN ('pending', 'running')
		  AND NOT EXISTS (
		      SELECT 1 FROM steps p
		      WHERE p.execution_id = s.execution_id
		        AND p.order_index < s.order_index
		        AND p.status NOT IN ('succeeded', 'skipped')
		  )
		ORDER BY s.ready_at`, now.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*api.ExecutionStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *SQLiteExecutionStore) TransitionStep(ctx context.Context, stepID string, from, to api.StepStatus, detail string) (bool, error) {
	query := `UPDATE steps SET status = ?, last_error = ? WHERE id = ? AND status = ?`
	if to == api.StepRunning {
		query = `UPDATE steps SET status = ?, last_error = ?, attempt_count = attempt_count + 1 WHERE id = ? AND status = ?`
	}

	res, err := s.db.ExecContext(ctx, query, string(to), detail, stepID, string(from))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLiteExecutionStore) ScheduleStep(ctx context.Context, stepID string, readyAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE steps SET status = 'scheduled', ready_at = ?
		WHERE id = ? AND status = 'awaiting'`,
		readyAt.UnixNano(), stepID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLiteExecutionStore) TransitionExecution(ctx context.Context, executionID string, from, to api.ExecutionStatus, detail string) (bool, error) {
	var finishedAt sql.NullInt64
	if to.Terminal() {
		finishedAt = sql.NullInt64{Int64: time.Now().UnixNano(), Valid: true}
	}

	query := `UPDATE executions SET status = ?, finished_at = ? WHERE id = ? AND status = ?`
	args := []any{string(to), finishedAt, executionID, string(from)}
	if detail != "" {
		query = `UPDATE executions SET status = ?, finished_at = ?, error = ? WHERE id = ? AND status = ?`
		args = []any{string(to), finishedAt, detail, executionID, string(from)}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLiteExecutionStore) SkipPendingSteps(ctx context.Context, executionID, detail string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE steps SET status = 'skipped', last_error = ?
		WHERE execution_id = ? AND status IN ('awaiting', 'scheduled', 'due')`,
		detail, executionID)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *SQLiteExecutionStore) RecoverInFlight(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE steps SET status = 'scheduled'
		WHERE status IN ('due', 'running')`)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
