// Package worker provides the bounded execution pool that drives released
// workflow steps to completion.
//
// The scheduler decides WHEN a step runs; the worker decides WHERE. Released
// steps are submitted to a buffered queue and executed by a fixed number of
// goroutines, so a slow action (a webhook call against a sluggish endpoint,
// an email provider hiccup) never stalls the scheduling tick.
//
// Workers are long-lived components that typically run in dedicated
// goroutines. Multiple workers can safely share one ledger: the ledger's
// conditional status transitions guarantee each step executes exactly once
// even when several pools race.
//
// # Responsibilities
//
// A worker pool is responsible for:
//
//   - Accepting released steps from the scheduler
//   - Executing step actions through the configured StepRunner
//   - Bounding concurrency and buffering bursts
//   - Logging execution errors (outcome recording is the runner's job)
//
// Retry, backoff, and permanent-failure classification live in the step
// runner, not here; the pool sees only the final error of each step.
//
// Most applications construct workers via the bundle helpers in the
// recruitflow package, which wire engines, schedulers, and workers together
// with sensible defaults. This package is useful when embedding a custom
// execution topology.
package worker
