// Command recruitflowd runs the workflow automation engine as a standalone
// HTTP service: it accepts domain events and inbound webhooks, schedules and
// executes workflow steps, and serves the operator-facing audit API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/recruitflow/recruitflow"
	"github.com/recruitflow/recruitflow/internal/config"
	"github.com/recruitflow/recruitflow/internal/httpapi"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "recruitflowd",
		Short: "Recruiting workflow automation daemon",
		Long: `recruitflowd hosts the recruitflow engine behind an HTTP API:
  POST /api/v1/events       feed normalized domain events
  POST /api/v1/hooks/:slug  receive inbound webhooks
  GET  /api/v1/executions   inspect executions, steps, and audit trails`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	bundle, cleanup, err := newBundle(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := bundle.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer bundle.Stop()

	e := echo.New()
	e.HideBanner = true
	httpapi.NewServer(bundle.Engine).Register(e)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.Server.Addr))
		if err := e.Start(cfg.Server.Addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func newBundle(cfg *config.Config, logger *slog.Logger) (*recruitflow.Bundle, func(), error) {
	bundleCfg := recruitflow.BundleConfig{
		Capabilities: recruitflow.Capabilities{
			HTTPClient: &http.Client{Timeout: 10 * time.Second},
		},
		Observer: recruitflow.NewLoggingObserver(logger),
		Tick:     time.Duration(cfg.Scheduler.TickSeconds) * time.Second,
		Worker: recruitflow.WorkerConfig{
			Concurrency: cfg.Worker.Concurrency,
			QueueSize:   cfg.Worker.QueueSize,
			Logger:      logger,
		},
		Logger: logger,
	}

	noop := func() {}
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("using in-memory storage; executions will not survive restarts")
		return recruitflow.NewInMemoryBundle(bundleCfg), noop, nil

	case "sqlite":
		db, err := sql.Open("sqlite", cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		bundle, err := recruitflow.NewSQLiteBundle(db, bundleCfg)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return bundle, func() { db.Close() }, nil

	case "postgres":
		db, err := sql.Open("pgx", cfg.PostgresDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		bundle, err := recruitflow.NewPostgresBundle(db, bundleCfg)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return bundle, func() { db.Close() }, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		return recruitflow.NewRedisBundle(client, bundleCfg), func() { client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
