package recruitflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/recruitflow/recruitflow/pkg/api"
)

// WorkflowBuilder provides a fluent API for defining workflows:
//
//	wf := recruitflow.NewWorkflow("interview follow-up").
//	    ForOrg("acme").
//	    OnStageChanged("interview").
//	    SendEmail("Next steps, {{name}}", "Hi {{name}}, ...").
//	    Wait(24 * 60).
//	    AddTag("followed-up")
//
//	if err := wf.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
type WorkflowBuilder struct {
	def api.WorkflowDefinition

	// pendingDelay is applied to the next appended action, then reset.
	pendingDelay int
}

// NewWorkflow creates a new workflow builder with the given name. The
// definition is active by default and gets a generated ID unless WithID is
// called.
func NewWorkflow(name string) *WorkflowBuilder {
	now := time.Now()
	return &WorkflowBuilder{
		def: api.WorkflowDefinition{
			ID:        uuid.NewString(),
			Name:      name,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// WithID overrides the generated definition ID.
func (b *WorkflowBuilder) WithID(id string) *WorkflowBuilder {
	b.def.ID = id
	return b
}

// ForOrg scopes the workflow to an organization.
func (b *WorkflowBuilder) ForOrg(orgID string) *WorkflowBuilder {
	b.def.OrgID = orgID
	return b
}

// Describe sets the human-readable description.
func (b *WorkflowBuilder) Describe(text string) *WorkflowBuilder {
	b.def.Description = text
	return b
}

// Inactive marks the definition inactive; it will be ignored by the matcher
// until reactivated.
func (b *WorkflowBuilder) Inactive() *WorkflowBuilder {
	b.def.Active = false
	return b
}

// SkipDuplicates makes new matching events reuse an existing non-terminal
// execution for the same subject instead of starting another.
func (b *WorkflowBuilder) SkipDuplicates() *WorkflowBuilder {
	b.def.DuplicatePolicy = api.DuplicateSkip
	return b
}

// Triggers

// OnCandidateCreated fires for every new candidate in the organization.
func (b *WorkflowBuilder) OnCandidateCreated() *WorkflowBuilder {
	return b.trigger(api.TriggerCandidateCreated, &api.CandidateCreatedTrigger{})
}

// OnApplicationSubmitted fires for every submitted application.
func (b *WorkflowBuilder) OnApplicationSubmitted() *WorkflowBuilder {
	return b.trigger(api.TriggerApplicationSubmitted, &api.ApplicationSubmittedTrigger{})
}

// OnStageChanged fires when a candidate moves to the given stage. An empty
// or "any" stage matches every transition.
func (b *WorkflowBuilder) OnStageChanged(stage string) *WorkflowBuilder {
	return b.trigger(api.TriggerStageChanged, &api.StageChangedTrigger{Stage: stage})
}

// OnCandidateInactive fires when a candidate has been inactive for at least
// the given number of days.
func (b *WorkflowBuilder) OnCandidateInactive(days int) *WorkflowBuilder {
	return b.trigger(api.TriggerCandidateInactive, &api.InactivityTrigger{Days: days})
}

// OnSchedule fires on a recurring interval.
func (b *WorkflowBuilder) OnSchedule(everyMinutes int) *WorkflowBuilder {
	return b.trigger(api.TriggerTimeBased, &api.ScheduleTrigger{EveryMinutes: everyMinutes})
}

// OnScoreAbove fires when a candidate's score reaches the threshold.
func (b *WorkflowBuilder) OnScoreAbove(threshold float64) *WorkflowBuilder {
	return b.trigger(api.TriggerScoreThreshold, &api.ScoreThresholdTrigger{Threshold: threshold})
}

// OnWebhook fires for inbound webhooks with the given slug. An empty slug
// matches any hook.
func (b *WorkflowBuilder) OnWebhook(slug string) *WorkflowBuilder {
	return b.trigger(api.TriggerWebhookReceived, &api.WebhookTrigger{Slug: slug})
}

func (b *WorkflowBuilder) trigger(t api.TriggerType, cfg api.TriggerConfig) *WorkflowBuilder {
	b.def.TriggerType = t
	b.def.Trigger = cfg
	return b
}

// Actions

// Wait delays the NEXT appended action by the given number of minutes,
// counted from the previous step's completion (or the trigger for the first
// step).
func (b *WorkflowBuilder) Wait(minutes int) *WorkflowBuilder {
	b.pendingDelay = minutes
	return b
}

// SendEmail appends a send_email action. Subject and body are templates with
// {{name}}-style variables resolved against the candidate.
func (b *WorkflowBuilder) SendEmail(subject, body string) *WorkflowBuilder {
	return b.action(api.ActionSendEmail, &api.SendEmailConfig{Subject: subject, Body: body})
}

// UpdateStage appends an update_stage action.
func (b *WorkflowBuilder) UpdateStage(stage string) *WorkflowBuilder {
	return b.action(api.ActionUpdateStage, &api.UpdateStageConfig{Stage: stage})
}

// AddTag appends an add_tag action.
func (b *WorkflowBuilder) AddTag(tag string) *WorkflowBuilder {
	return b.action(api.ActionAddTag, &api.AddTagConfig{Tag: tag})
}

// Notify appends a send_notification action. Message is a template.
func (b *WorkflowBuilder) Notify(userID, message string) *WorkflowBuilder {
	return b.action(api.ActionSendNotification, &api.SendNotificationConfig{
		TargetUserID: userID,
		Message:      message,
	})
}

// CallWebhook appends a webhook_call action posting the triggering event's
// payload to url.
func (b *WorkflowBuilder) CallWebhook(url string) *WorkflowBuilder {
	return b.action(api.ActionWebhookCall, &api.WebhookCallConfig{URL: url})
}

// AssignTo appends an assign_to_user action.
func (b *WorkflowBuilder) AssignTo(userID string) *WorkflowBuilder {
	return b.action(api.ActionAssignToUser, &api.AssignToUserConfig{UserID: userID})
}

func (b *WorkflowBuilder) action(t api.ActionType, cfg api.ActionConfig) *WorkflowBuilder {
	b.def.Actions = append(b.def.Actions, api.WorkflowAction{
		Type:         t,
		Config:       cfg,
		OrderIndex:   len(b.def.Actions),
		DelayMinutes: b.pendingDelay,
	})
	b.pendingDelay = 0
	return b
}

// Definition returns the underlying WorkflowDefinition.
// Typically used when interacting with lower-level APIs.
func (b *WorkflowBuilder) Definition() WorkflowDefinition {
	return b.def
}

// Register registers the built workflow with the given engine.
func (b *WorkflowBuilder) Register(eng Engine) error {
	return eng.RegisterDefinition(b.def)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *WorkflowBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}
