package recruitflow

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recruitflow/recruitflow/internal/engine"
	"github.com/recruitflow/recruitflow/internal/executor"
	"github.com/recruitflow/recruitflow/internal/scheduler"
	"github.com/recruitflow/recruitflow/internal/sweep"
	"github.com/recruitflow/recruitflow/pkg/api"
	workerpkg "github.com/recruitflow/recruitflow/pkg/worker"
)

// Worker and WorkerConfig are re-exported for bundle configuration.
type (
	Worker       = workerpkg.Worker
	WorkerConfig = workerpkg.Config
)

// BundleConfig configures an engine + scheduler + worker combination.
type BundleConfig struct {
	// Capabilities are the collaborators actions dispatch to. Leaving one
	// nil makes the corresponding action type fail permanently.
	Capabilities Capabilities

	// Observer receives lifecycle callbacks; nil means none.
	Observer Observer

	// Retry applies to every action; zero value means the default policy.
	Retry RetryPolicy

	// Tick is the scheduler polling interval. Zero means one second.
	Tick time.Duration

	// Worker tunes the execution pool.
	Worker WorkerConfig

	// SweepOrgs enables the time_based / candidate_inactive sweeper for
	// the listed organizations. Requires SubjectLister.
	SweepOrgs []string

	// SubjectLister enumerates subjects for the sweeper.
	SubjectLister api.SubjectLister

	// SweepInterval is the sweeper polling interval. Zero means one minute.
	SweepInterval time.Duration

	// Logger is shared by all components; nil means slog.Default().
	Logger *slog.Logger
}

// Bundle wires together an Engine, a Scheduler that releases due steps, and
// a Worker pool that executes them, all sharing one ledger.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:recruitflow.db?_journal=WAL")
//	bundle, err := recruitflow.NewSQLiteBundle(db, recruitflow.BundleConfig{
//	    Capabilities: caps,
//	})
//	// register definitions on bundle.Engine
//	if err := bundle.Start(ctx); err != nil { ... }
//	defer bundle.Stop()
type Bundle struct {
	Engine Engine
	Worker *Worker

	scheduler *scheduler.Scheduler
	executor  *executor.Executor
	sweeper   *sweep.Sweeper

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newBundle(eng *engine.Engine, cfg BundleConfig) *Bundle {
	stores := eng.Stores()

	exec := executor.New(executor.Config{
		Executions:   stores.Executions,
		Events:       stores.Events,
		Capabilities: cfg.Capabilities,
		Observer:     cfg.Observer,
		Logger:       cfg.Logger,
		Retry:        cfg.Retry,
	})
	w := workerpkg.NewWithConfig(exec, cfg.Worker)

	sched := scheduler.New(scheduler.Config{
		Executions: stores.Executions,
		Events:     stores.Events,
		Observer:   cfg.Observer,
		Logger:     cfg.Logger,
		Tick:       cfg.Tick,
		Release: func(ctx context.Context, step *ExecutionStep) {
			_ = w.Submit(ctx, step)
		},
	})

	b := &Bundle{
		Engine:    eng,
		Worker:    w,
		scheduler: sched,
		executor:  exec,
	}

	if len(cfg.SweepOrgs) > 0 && cfg.SubjectLister != nil {
		b.sweeper = sweep.New(sweep.Config{
			Engine:      eng,
			Definitions: stores.Definitions,
			Subjects:    cfg.SubjectLister,
			Logger:      cfg.Logger,
			OrgIDs:      cfg.SweepOrgs,
			Interval:    cfg.SweepInterval,
		})
	}
	return b
}

// NewInMemoryBundle constructs a non-durable bundle for tests and local
// development.
func NewInMemoryBundle(cfg BundleConfig) *Bundle {
	return newBundle(engine.NewInMemoryEngineWithObserver(cfg.Observer), cfg)
}

// NewSQLiteBundle constructs a durable bundle sharing the provided SQLite
// database for executions, steps, and audit events.
func NewSQLiteBundle(db *sql.DB, cfg BundleConfig) (*Bundle, error) {
	eng, err := engine.NewSQLiteEngineWithObserver(db, cfg.Observer)
	if err != nil {
		return nil, err
	}
	return newBundle(eng, cfg), nil
}

// NewPostgresBundle constructs a durable bundle backed by PostgreSQL.
func NewPostgresBundle(db *sql.DB, cfg BundleConfig) (*Bundle, error) {
	eng, err := engine.NewPostgresEngineWithObserver(db, cfg.Observer)
	if err != nil {
		return nil, err
	}
	return newBundle(eng, cfg), nil
}

// NewRedisBundle constructs a durable bundle backed by Redis.
func NewRedisBundle(client *redis.Client, cfg BundleConfig) *Bundle {
	return newBundle(engine.NewRedisEngineWithObserver(client, cfg.Observer), cfg)
}

// Start recovers steps left in flight by a previous process, then runs the
// scheduler, worker pool, and (when configured) the sweeper in background
// goroutines until Stop is called.
func (b *Bundle) Start(ctx context.Context) error {
	if _, err := b.Engine.Recover(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		_ = b.scheduler.Run(runCtx)
	}()
	go func() {
		defer b.wg.Done()
		_ = b.Worker.Run(runCtx)
	}()

	if b.sweeper != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			_ = b.sweeper.Run(runCtx)
		}()
	}
	return nil
}

// Stop cancels the background goroutines and waits for in-flight steps to
// finish. Safe to call without a prior Start.
func (b *Bundle) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	b.wg.Wait()
	b.cancel = nil
}

// Tick performs one synchronous scheduling pass at the given time and
// executes every released step before returning. Intended for tests and
// single-threaded embedders that want deterministic progress.
func (b *Bundle) Tick(ctx context.Context, now time.Time) error {
	if _, err := b.scheduler.ReleaseDueSteps(ctx, now); err != nil {
		return err
	}
	for {
		processed, err := b.Worker.ProcessOne(ctx)
		if err != nil {
			return err
		}
		if !processed {
			return nil
		}
	}
}

// Sweep performs one synchronous sweeper pass at the given time. It is a
// no-op when the bundle has no sweeper configured.
func (b *Bundle) Sweep(ctx context.Context, now time.Time) {
	if b.sweeper != nil {
		b.sweeper.Sweep(ctx, now)
	}
}
