// Package executor performs one step's side effect and records the outcome.
//
// Failure semantics are deliberately asymmetric: transient errors (network,
// timeouts, 5xx webhook responses) are retried with bounded exponential
// backoff, while permanent errors (validation, missing subject, 4xx webhook
// responses) fail the step immediately. A terminally failed step fails its
// execution and skips the remaining steps; side effects of earlier steps
// are never rolled back — there is no compensating-transaction mechanism.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/recruitflow/recruitflow/internal/ledger"
	"github.com/recruitflow/recruitflow/pkg/api"
)

const defaultHTTPTimeout = 10 * time.Second

// Executor runs claimed steps against the capability collaborators.
type Executor struct {
	executions ledger.ExecutionStore
	events     ledger.EventStore
	caps       api.Capabilities
	retry      api.RetryPolicy
	observer   api.Observer
	logger     *slog.Logger

	httpClient *http.Client
	now        func() time.Time
}

// Config describes how to construct an Executor.
type Config struct {
	Executions   ledger.ExecutionStore
	Events       ledger.EventStore
	Capabilities api.Capabilities
	Observer     api.Observer
	Logger       *slog.Logger

	// Retry applies to every action; zero value means DefaultRetryPolicy.
	Retry api.RetryPolicy

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// New creates an Executor.
func New(cfg Config) *Executor {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	events := cfg.Events
	if events == nil {
		events = ledger.NoopEventStore{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = api.DefaultRetryPolicy()
	}
	client := cfg.Capabilities.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		executions: cfg.Executions,
		events:     events,
		caps:       cfg.Capabilities,
		retry:      retry,
		observer:   obs,
		logger:     logger,
		httpClient: client,
		now:        now,
	}
}

// Execute claims a due step, performs its action, and advances or fails the
// containing execution. A step another worker already claimed is a silent
// no-op — losing the claim race is not an error.
func (e *Executor) Execute(ctx context.Context, step *api.ExecutionStep) error {
	ok, err := e.executions.TransitionStep(ctx, step.ID, api.StepDue, api.StepRunning, "")
	if err != nil {
		return fmt.Errorf("claim step %s: %w", step.ID, err)
	}
	if !ok {
		return nil
	}
	step.Status = api.StepRunning
	step.AttemptCount++

	exec, err := e.executions.GetExecution(ctx, step.ExecutionID)
	if err != nil {
		return fmt.Errorf("load execution %s: %w", step.ExecutionID, err)
	}

	// Cancellation between release and claim: let the step go quietly.
	if exec.Status == api.ExecutionCancelled {
		_, err := e.executions.TransitionStep(ctx, step.ID, api.StepRunning, api.StepSkipped, "execution cancelled")
		return err
	}

	// First step of the execution moves it from pending to running; the
	// CAS keeps racing workers from stomping a terminal status.
	if exec.Status == api.ExecutionPending {
		if ok, _ := e.executions.TransitionExecution(ctx, exec.ID, api.ExecutionPending, api.ExecutionRunning, ""); ok {
			e.audit(ctx, exec.ID, api.AuditExecutionStarted, step.OrderIndex, "")
		}
	}

	e.audit(ctx, exec.ID, api.AuditStepStarted, step.OrderIndex, string(step.ActionType))
	e.observer.OnStepStart(ctx, step)

	started := e.now()
	actionErr := e.performWithRetry(ctx, exec, step)
	duration := e.now().Sub(started)
	e.observer.OnStepCompleted(ctx, step, actionErr, duration)

	if actionErr != nil {
		return e.failStep(ctx, exec, step, actionErr)
	}
	return e.completeStep(ctx, exec, step)
}

// performWithRetry runs the action under the retry policy. Permanent errors
// short-circuit; transient ones back off exponentially between attempts.
func (e *Executor) performWithRetry(ctx context.Context, exec *api.Execution, step *api.ExecutionStep) error {
	backoff := e.retry.InitialBackoff
	multiplier := e.retry.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	var lastErr error
	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = e.perform(ctx, exec, step)
		if lastErr == nil {
			return nil
		}
		if api.IsPermanent(lastErr) {
			return lastErr
		}
		if attempt == e.retry.MaxAttempts {
			break
		}

		if backoff > 0 {
			delay := backoff
			if e.retry.MaxBackoff > 0 && delay > e.retry.MaxBackoff {
				delay = e.retry.MaxBackoff
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			backoff = time.Duration(float64(backoff) * multiplier)
		}
	}
	return lastErr
}

// perform dispatches one attempt of the step's action.
func (e *Executor) perform(ctx context.Context, exec *api.Execution, step *api.ExecutionStep) error {
	switch cfg := step.Config.(type) {
	case *api.SendEmailConfig:
		return e.sendEmail(ctx, exec, cfg)
	case *api.UpdateStageConfig:
		return e.updateStage(ctx, exec, cfg)
	case *api.AddTagConfig:
		return e.addTag(ctx, exec, cfg)
	case *api.SendNotificationConfig:
		return e.sendNotification(ctx, exec, cfg)
	case *api.WebhookCallConfig:
		return e.webhookCall(ctx, exec, cfg)
	case *api.AssignToUserConfig:
		return e.assignToUser(ctx, exec, cfg)
	default:
		return api.Permanent(fmt.Errorf("unsupported action config %T", step.Config))
	}
}

func (e *Executor) sendEmail(ctx context.Context, exec *api.Execution, cfg *api.SendEmailConfig) error {
	if e.caps.Email == nil {
		return api.Permanent(errors.New("email sender not configured"))
	}
	subject, err := e.resolveSubject(ctx, exec)
	if err != nil {
		return err
	}
	vars := subject.TemplateVars()
	return e.caps.Email.Send(ctx,
		subject.Email,
		RenderTemplate(cfg.Subject, vars),
		RenderTemplate(cfg.Body, vars),
	)
}

func (e *Executor) updateStage(ctx context.Context, exec *api.Execution, cfg *api.UpdateStageConfig) error {
	if e.caps.Pipeline == nil {
		return api.Permanent(errors.New("pipeline mutator not configured"))
	}
	return e.caps.Pipeline.SetStage(ctx, exec.SubjectID, cfg.Stage)
}

func (e *Executor) addTag(ctx context.Context, exec *api.Execution, cfg *api.AddTagConfig) error {
	if e.caps.Tags == nil {
		return api.Permanent(errors.New("tag store not configured"))
	}
	return e.caps.Tags.AddTag(ctx, exec.SubjectID, cfg.Tag)
}

func (e *Executor) sendNotification(ctx context.Context, exec *api.Execution, cfg *api.SendNotificationConfig) error {
	if e.caps.Notifier == nil {
		return api.Permanent(errors.New("notifier not configured"))
	}
	vars := map[string]string{}
	if e.caps.Subjects != nil {
		if subject, err := e.caps.Subjects.GetSubject(ctx, exec.OrgID, exec.SubjectID); err == nil {
			vars = subject.TemplateVars()
		}
	}
	return e.caps.Notifier.Notify(ctx, cfg.TargetUserID, RenderTemplate(cfg.Message, vars))
}

func (e *Executor) webhookCall(ctx context.Context, exec *api.Execution, cfg *api.WebhookCallConfig) error {
	body, err := json.Marshal(exec.Event.Payload)
	if err != nil {
		return api.Permanent(fmt.Errorf("encode webhook body: %w", err))
	}

	reqCtx := ctx
	if cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return api.Permanent(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		// Network errors and timeouts are transient.
		return fmt.Errorf("post %s: %w", cfg.URL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return api.Permanent(fmt.Errorf("webhook %s returned %d", cfg.URL, resp.StatusCode))
	default:
		return fmt.Errorf("webhook %s returned %d", cfg.URL, resp.StatusCode)
	}
}

func (e *Executor) assignToUser(ctx context.Context, exec *api.Execution, cfg *api.AssignToUserConfig) error {
	if e.caps.Assignment == nil {
		return api.Permanent(errors.New("assignment store not configured"))
	}
	return e.caps.Assignment.Assign(ctx, exec.SubjectID, cfg.UserID)
}

func (e *Executor) resolveSubject(ctx context.Context, exec *api.Execution) (*api.Subject, error) {
	if e.caps.Subjects == nil {
		return &api.Subject{ID: exec.SubjectID, OrgID: exec.OrgID}, nil
	}
	subject, err := e.caps.Subjects.GetSubject(ctx, exec.OrgID, exec.SubjectID)
	if err != nil {
		if errors.Is(err, api.ErrSubjectNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve subject %s: %w", exec.SubjectID, err)
	}
	return subject, nil
}

// completeStep marks the step succeeded and either schedules the successor
// (its delay counts from this step's completion time) or completes the
// execution when this was the last step.
func (e *Executor) completeStep(ctx context.Context, exec *api.Execution, step *api.ExecutionStep) error {
	ok, err := e.executions.TransitionStep(ctx, step.ID, api.StepRunning, api.StepSucceeded, "")
	if err != nil {
		return fmt.Errorf("mark step %s succeeded: %w", step.ID, err)
	}
	if !ok {
		return nil
	}
	step.Status = api.StepSucceeded
	e.audit(ctx, exec.ID, api.AuditStepSucceeded, step.OrderIndex, string(step.ActionType))

	next, err := e.executions.NextStep(ctx, exec.ID, step.OrderIndex)
	if err != nil {
		if !errors.Is(err, ledger.ErrStepNotFound) {
			return fmt.Errorf("find successor of step %s: %w", step.ID, err)
		}
		// Last step: the execution is done.
		if ok, err := e.executions.TransitionExecution(ctx, exec.ID, api.ExecutionRunning, api.ExecutionCompleted, ""); err != nil {
			return err
		} else if ok {
			exec.Status = api.ExecutionCompleted
			e.audit(ctx, exec.ID, api.AuditExecutionCompleted, -1, "")
			e.observer.OnExecutionCompleted(ctx, exec)
		}
		return nil
	}

	readyAt := e.now().Add(time.Duration(next.DelayMinutes) * time.Minute)
	if ok, err := e.executions.ScheduleStep(ctx, next.ID, readyAt); err != nil {
		return fmt.Errorf("schedule step %s: %w", next.ID, err)
	} else if ok {
		e.audit(ctx, exec.ID, api.AuditStepScheduled, next.OrderIndex,
			fmt.Sprintf("ready at %s", readyAt.Format(time.RFC3339)))
	}
	return nil
}

// failStep records a terminal step failure: the step fails, the remaining
// steps are skipped, and the execution fails. Side effects of earlier
// succeeded steps remain applied.
func (e *Executor) failStep(ctx context.Context, exec *api.Execution, step *api.ExecutionStep, actionErr error) error {
	detail := actionErr.Error()

	ok, err := e.executions.TransitionStep(ctx, step.ID, api.StepRunning, api.StepFailed, detail)
	if err != nil {
		return fmt.Errorf("mark step %s failed: %w", step.ID, err)
	}
	if !ok {
		return nil
	}
	step.Status = api.StepFailed
	step.LastError = detail
	e.audit(ctx, exec.ID, api.AuditStepFailed, step.OrderIndex, detail)

	skipped, err := e.executions.SkipPendingSteps(ctx, exec.ID, "earlier step failed")
	if err != nil {
		return fmt.Errorf("skip remaining steps of %s: %w", exec.ID, err)
	}
	if skipped > 0 {
		e.audit(ctx, exec.ID, api.AuditStepSkipped, -1, fmt.Sprintf("%d steps skipped", skipped))
	}

	failDetail := fmt.Sprintf("step %d (%s): %s", step.OrderIndex, step.ActionType, detail)
	for _, from := range []api.ExecutionStatus{api.ExecutionRunning, api.ExecutionPending} {
		ok, err := e.executions.TransitionExecution(ctx, exec.ID, from, api.ExecutionFailed, failDetail)
		if err != nil {
			return err
		}
		if ok {
			exec.Status = api.ExecutionFailed
			exec.Error = failDetail
			e.audit(ctx, exec.ID, api.AuditExecutionFailed, step.OrderIndex, detail)
			e.observer.OnExecutionFailed(ctx, exec, actionErr)
			break
		}
	}
	return nil
}

func (e *Executor) audit(ctx context.Context, executionID string, t api.AuditEventType, step int, detail string) {
	_ = e.events.AppendEvent(ctx, api.AuditEvent{
		ExecutionID: executionID,
		At:          e.now(),
		Type:        t,
		Step:        step,
		Detail:      detail,
	})
}
