package engine

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/recruitflow/recruitflow/internal/ledger"
	"github.com/recruitflow/recruitflow/pkg/api"
)

// Definitions are kept in-memory for every backend: they are authored
// outside the engine and re-registered by the hosting process on startup,
// so only executions, steps, and audit events need durable storage.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() *Engine {
	return NewInMemoryEngineWithObserver(nil)
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given
// Observer.
func NewInMemoryEngineWithObserver(obs api.Observer) *Engine {
	mem := ledger.NewInMemoryLedger()
	return New(Config{
		Ledger: ledger.Ledger{
			Definitions: mem,
			Executions:  mem,
			Events:      mem,
		},
		Observer: obs,
	})
}

// NewSQLiteEngine returns an Engine that persists executions, steps, and
// audit events in a SQLite database.
func NewSQLiteEngine(db *sql.DB) (*Engine, error) {
	return NewSQLiteEngineWithObserver(db, nil)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given
// Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs api.Observer) (*Engine, error) {
	execs, err := ledger.NewSQLiteExecutionStore(db)
	if err != nil {
		return nil, err
	}
	events, err := ledger.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	return New(Config{
		Ledger: ledger.Ledger{
			Definitions: ledger.NewInMemoryLedger(),
			Executions:  execs,
			Events:      events,
		},
		Observer: obs,
	}), nil
}

// NewPostgresEngine returns an Engine that persists executions, steps, and
// audit events in PostgreSQL.
func NewPostgresEngine(db *sql.DB) (*Engine, error) {
	return NewPostgresEngineWithObserver(db, nil)
}

// NewPostgresEngineWithObserver returns a Postgres-backed Engine with the
// given Observer.
func NewPostgresEngineWithObserver(db *sql.DB, obs api.Observer) (*Engine, error) {
	execs, err := ledger.NewPostgresExecutionStore(db)
	if err != nil {
		return nil, err
	}
	events, err := ledger.NewPostgresEventStore(db)
	if err != nil {
		return nil, err
	}
	return New(Config{
		Ledger: ledger.Ledger{
			Definitions: ledger.NewInMemoryLedger(),
			Executions:  execs,
			Events:      events,
		},
		Observer: obs,
	}), nil
}

// NewRedisEngine returns an Engine that persists executions, steps, and
// audit events in Redis.
func NewRedisEngine(client *redis.Client) *Engine {
	return NewRedisEngineWithObserver(client, nil)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given
// Observer.
func NewRedisEngineWithObserver(client *redis.Client, obs api.Observer) *Engine {
	store := ledger.NewRedisExecutionStore(client, "recruitflow:")
	return New(Config{
		Ledger: ledger.Ledger{
			Definitions: ledger.NewInMemoryLedger(),
			Executions:  store,
			Events:      store,
		},
		Observer: obs,
	})
}

// Stores exposes the underlying ledger so the hosting process can wire the
// scheduler and executor against the same storage.
func (e *Engine) Stores() ledger.Ledger { return e.ledger }
