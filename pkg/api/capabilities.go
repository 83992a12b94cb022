package api

import (
	"context"
	"net/http"
	"time"
)

// Subject is the entity an execution acts upon (typically a candidate).
// The engine reads subjects through a SubjectDirectory; it never mutates
// them directly — mutations go through the capability collaborators.
type Subject struct {
	ID             string
	OrgID          string
	Name           string
	Email          string
	Stage          string
	Score          float64
	Tags           []string
	Owner          string
	LastActivityAt time.Time

	// Attributes are free-form extra fields available to templates.
	Attributes map[string]string
}

// TemplateVars flattens the subject into the variable set available to
// email and notification templates. Custom attributes never shadow the
// built-in variables.
func (s *Subject) TemplateVars() map[string]string {
	vars := make(map[string]string, len(s.Attributes)+5)
	for k, v := range s.Attributes {
		vars[k] = v
	}
	vars["id"] = s.ID
	vars["name"] = s.Name
	vars["email"] = s.Email
	vars["stage"] = s.Stage
	vars["owner"] = s.Owner
	return vars
}

// SubjectDirectory resolves subjects for template rendering and existence
// checks. Implementations return ErrSubjectNotFound (possibly wrapped) for
// missing subjects.
type SubjectDirectory interface {
	GetSubject(ctx context.Context, orgID, subjectID string) (*Subject, error)
}

// SubjectLister enumerates an organization's subjects; the sweep driver
// uses it to synthesize time_based and candidate_inactive events.
type SubjectLister interface {
	ListSubjects(ctx context.Context, orgID string) ([]*Subject, error)
}

// EmailSender delivers rendered emails. Transport is outside the engine.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// PipelineMutator moves a subject to another pipeline stage.
type PipelineMutator interface {
	SetStage(ctx context.Context, subjectID, stage string) error
}

// TagStore appends a tag to a subject's tag set. Duplicate adds are a
// no-op success (set semantics).
type TagStore interface {
	AddTag(ctx context.Context, subjectID, tag string) error
}

// Notifier delivers an in-app notification to a user.
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}

// Assigner sets the subject's owner.
type Assigner interface {
	Assign(ctx context.Context, subjectID, userID string) error
}

// Capabilities bundles every collaborator the executor dispatches to.
// HTTPClient is used for webhook_call actions; if nil, a default client
// with the executor's timeout is used.
type Capabilities struct {
	Subjects   SubjectDirectory
	Email      EmailSender
	Pipeline   PipelineMutator
	Tags       TagStore
	Notifier   Notifier
	Assignment Assigner
	HTTPClient *http.Client
}
