package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/recruitflow/recruitflow/pkg/api"
)

// StepRunner executes one released step. The engine's executor satisfies it.
type StepRunner interface {
	Execute(ctx context.Context, step *api.ExecutionStep) error
}

// Config tunes a Worker pool.
type Config struct {
	// Concurrency is the number of goroutines executing steps. Zero means 4.
	Concurrency int

	// QueueSize is the submit buffer length. Zero means 64.
	QueueSize int

	// Logger receives execution errors; nil means slog.Default().
	Logger *slog.Logger
}

// Worker executes released steps on a bounded pool of goroutines, decoupling
// the scheduler's tick from slow actions such as webhook calls.
type Worker struct {
	runner StepRunner
	tasks  chan *api.ExecutionStep
	logger *slog.Logger

	concurrency int
}

// New creates a Worker with default configuration.
func New(runner StepRunner) *Worker {
	return NewWithConfig(runner, Config{})
}

// NewWithConfig creates a Worker.
func NewWithConfig(runner StepRunner, cfg Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		runner:      runner,
		tasks:       make(chan *api.ExecutionStep, queueSize),
		logger:      logger,
		concurrency: concurrency,
	}
}

// Submit queues a step for execution. It blocks while the buffer is full and
// returns the context error if ctx is cancelled first.
func (w *Worker) Submit(ctx context.Context, step *api.ExecutionStep) error {
	select {
	case w.tasks <- step:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessOne executes a single queued step if one is available. It returns
// processed=false when the queue is empty; err is the execution error of the
// processed step, if any.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	select {
	case step := <-w.tasks:
		return true, w.runner.Execute(ctx, step)
	default:
		return false, nil
	}
}

// Run executes queued steps until the context is cancelled, then waits for
// in-flight steps to finish.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case step := <-w.tasks:
					if err := w.runner.Execute(ctx, step); err != nil {
						w.logger.ErrorContext(ctx, "step execution error",
							slog.String("step_id", step.ID),
							slog.Any("error", err),
						)
					}
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}
