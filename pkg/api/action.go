package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// ActionType identifies the side effect a workflow action performs.
type ActionType string

const (
	ActionSendEmail        ActionType = "send_email"
	ActionUpdateStage      ActionType = "update_stage"
	ActionAddTag           ActionType = "add_tag"
	ActionSendNotification ActionType = "send_notification"
	ActionWebhookCall      ActionType = "webhook_call"
	ActionAssignToUser     ActionType = "assign_to_user"
)

// ActionConfig is the typed, validated configuration for one action.
// Like TriggerConfig, it is a tagged union keyed by ActionType so that bad
// configuration fails at plan-build time instead of mid-execution.
type ActionConfig interface {
	Validate() error

	actionConfig()
}

// SendEmailConfig renders Subject and Body as templates against the
// subject's current attributes. Template variables use {{name}} syntax;
// unresolved variables are left verbatim and never fail the step.
type SendEmailConfig struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (c SendEmailConfig) Validate() error {
	if c.Subject == "" {
		return errors.New("send_email: subject is required")
	}
	return nil
}
func (SendEmailConfig) actionConfig() {}

// UpdateStageConfig moves the subject to Stage in the pipeline.
type UpdateStageConfig struct {
	Stage string `json:"stage"`
}

func (c UpdateStageConfig) Validate() error {
	if c.Stage == "" {
		return errors.New("update_stage: stage is required")
	}
	return nil
}
func (UpdateStageConfig) actionConfig() {}

// AddTagConfig appends Tag to the subject's tag set. Adding a tag the
// subject already carries is a no-op success.
type AddTagConfig struct {
	Tag string `json:"tag"`
}

func (c AddTagConfig) Validate() error {
	if c.Tag == "" {
		return errors.New("add_tag: tag is required")
	}
	return nil
}
func (AddTagConfig) actionConfig() {}

// SendNotificationConfig delivers Message to TargetUserID. Message is
// rendered as a template like email bodies.
type SendNotificationConfig struct {
	TargetUserID string `json:"target_user_id"`
	Message      string `json:"message"`
}

func (c SendNotificationConfig) Validate() error {
	if c.TargetUserID == "" {
		return errors.New("send_notification: target_user_id is required")
	}
	return nil
}
func (SendNotificationConfig) actionConfig() {}

// WebhookCallConfig posts the execution's event payload to URL.
// TimeoutSeconds bounds the request; zero means the executor default.
type WebhookCallConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

func (c WebhookCallConfig) Validate() error {
	if c.URL == "" {
		return errors.New("webhook_call: url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("webhook_call: invalid url %q", c.URL)
	}
	if c.TimeoutSeconds < 0 {
		return errors.New("webhook_call: timeout_seconds must not be negative")
	}
	return nil
}
func (WebhookCallConfig) actionConfig() {}

// AssignToUserConfig sets the subject's owner to UserID.
type AssignToUserConfig struct {
	UserID string `json:"user_id"`
}

func (c AssignToUserConfig) Validate() error {
	if c.UserID == "" {
		return errors.New("assign_to_user: user_id is required")
	}
	return nil
}
func (AssignToUserConfig) actionConfig() {}

// DecodeActionConfig decodes raw JSON action parameters into the typed
// config for the given action type and validates it.
func DecodeActionConfig(t ActionType, raw []byte) (ActionConfig, error) {
	decode := func(dst ActionConfig) (ActionConfig, error) {
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, dst); err != nil {
				return nil, fmt.Errorf("decode %s action config: %w", t, err)
			}
		}
		return dst, nil
	}

	var (
		cfg ActionConfig
		err error
	)
	switch t {
	case ActionSendEmail:
		cfg, err = decode(&SendEmailConfig{})
	case ActionUpdateStage:
		cfg, err = decode(&UpdateStageConfig{})
	case ActionAddTag:
		cfg, err = decode(&AddTagConfig{})
	case ActionSendNotification:
		cfg, err = decode(&SendNotificationConfig{})
	case ActionWebhookCall:
		cfg, err = decode(&WebhookCallConfig{})
	case ActionAssignToUser:
		cfg, err = decode(&AssignToUserConfig{})
	default:
		return nil, fmt.Errorf("unknown action type: %q", t)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EncodeActionConfig serializes a typed action config back to JSON for
// persistence.
func EncodeActionConfig(cfg ActionConfig) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}
	return json.Marshal(cfg)
}
