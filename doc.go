// Package recruitflow provides an embeddable workflow automation engine for
// recruiting pipelines.
//
// Recruitflow turns authored automation rules — a trigger plus an ordered
// list of delayed actions — into durable, auditable executions. It runs
// fully in Go, supports multiple persistence backends, and integrates into
// an existing applicant tracking system through a small set of capability
// interfaces.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Engine
//  2. Bundle
//  3. WorkflowBuilder
//  4. Capabilities
//  5. Observer
//
// # Engine
//
// The Engine accepts normalized domain events (candidate created, stage
// changed, score threshold reached, inbound webhooks, and the synthesized
// time-based and inactivity events), matches them against registered
// workflow definitions, and creates an execution with a time-ordered step
// plan for each match. It provides APIs to:
//   - feed events and create executions
//   - read executions, steps, and the per-execution audit trail
//   - cancel in-flight executions
//   - recover steps left mid-flight by a crash
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//
// All execution state lives in the backing store; in-process state is a
// rebuildable cache, so a process restart never loses scheduled steps.
//
// # Bundle
//
// A Bundle wires an Engine together with the scheduler that releases due
// steps and the worker pool that executes them, all against the same store.
// Start runs them in the background; Tick drives them synchronously for
// deterministic tests.
//
// # WorkflowBuilder
//
// WorkflowBuilder provides the declarative API used to define automations:
//
//	recruitflow.NewWorkflow("interview follow-up").
//	    ForOrg("acme").
//	    OnStageChanged("interview").
//	    SendEmail("Next steps, {{name}}", "Hi {{name}}, ...").
//	    Wait(24 * 60).
//	    AddTag("followed-up")
//
// Definitions created with WorkflowBuilder are registered into an Engine
// before use. Re-registering a definition with the same ID replaces it.
//
// # Capabilities
//
// Actions perform their side effects through narrow interfaces supplied by
// the host application: an email sender, a pipeline mutator, a tag store, a
// notifier, and an assigner. The engine never talks to the ATS data model
// directly, which keeps it embeddable and trivially testable with fakes.
//
// Transient action failures (network errors, 5xx responses) are retried
// with exponential backoff; permanent ones (validation, missing candidate,
// 4xx responses) fail the step immediately. A terminally failed step fails
// its execution and skips the remaining steps; earlier side effects are
// never rolled back.
//
// # Observer
//
// Lifecycle callbacks (execution start/completion/failure, step release,
// start, and completion) are exposed through the Observer interface, with
// ready-made logging and atomic-counter metrics implementations.
//
// For examples, see the /examples directory or the project README.
package recruitflow
