package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/recruitflow/recruitflow/pkg/api"
)

// PostgresEventStore stores audit events in PostgreSQL.
type PostgresEventStore struct {
	db *sql.DB
}

var _ EventStore = (*PostgresEventStore)(nil)

func NewPostgresEventStore(db *sql.DB) (*PostgresEventStore, error) {
	s := &PostgresEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			execution_id TEXT NOT NULL,
			at BIGINT NOT NULL,
			type TEXT NOT NULL,
			step INTEGER NOT NULL DEFAULT -1,
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_execution_id ON audit_events(execution_id, id);
	`)
	return err
}

func (s *PostgresEventStore) AppendEvent(ctx context.Context, ev api.AuditEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (execution_id, at, type, step, detail)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.ExecutionID,
		at.UnixNano(),
		string(ev.Type),
		ev.Step,
		ev.Detail,
	)
	return err
}

func (s *PostgresEventStore) ListEvents(ctx context.Context, executionID string) ([]api.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, at, type, step, detail
		FROM audit_events
		WHERE execution_id = $1
		ORDER BY id ASC`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.AuditEvent
	for rows.Next() {
		var (
			id     string
			atN    int64
			typ    string
			step   int
			detail string
		)
		if err := rows.Scan(&id, &atN, &typ, &step, &detail); err != nil {
			return nil, err
		}
		out = append(out, api.AuditEvent{
			ExecutionID: id,
			At:          time.Unix(0, atN),
			Type:        api.AuditEventType(typ),
			Step:        step,
			Detail:      detail,
		})
	}
	return out, rows.Err()
}
