package api

import "testing"

func validDefinition() WorkflowDefinition {
	return WorkflowDefinition{
		ID:          "def-1",
		OrgID:       "org-1",
		Name:        "welcome",
		TriggerType: TriggerCandidateCreated,
		Trigger:     &CandidateCreatedTrigger{},
		Actions: []WorkflowAction{
			{Type: ActionSendEmail, Config: &SendEmailConfig{Subject: "Hi"}, OrderIndex: 0},
			{Type: ActionAddTag, Config: &AddTagConfig{Tag: "new"}, OrderIndex: 1, DelayMinutes: 30},
		},
		Active: true,
	}
}

func TestWorkflowDefinitionValidate(t *testing.T) {
	def := validDefinition()
	if err := def.Validate(); err != nil {
		t.Fatalf("valid definition rejected: %v", err)
	}
}

func TestWorkflowDefinitionValidateNoActions(t *testing.T) {
	def := validDefinition()
	def.Actions = nil
	if err := def.Validate(); err != nil {
		t.Fatalf("definition without actions should be valid: %v", err)
	}
}

func TestWorkflowDefinitionValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*WorkflowDefinition)
	}{
		{"missing id", func(d *WorkflowDefinition) { d.ID = "" }},
		{"missing name", func(d *WorkflowDefinition) { d.Name = "" }},
		{"unknown trigger", func(d *WorkflowDefinition) { d.TriggerType = "bogus" }},
		{"nil action config", func(d *WorkflowDefinition) { d.Actions[0].Config = nil }},
		{"invalid action config", func(d *WorkflowDefinition) {
			d.Actions[0].Config = &SendEmailConfig{}
		}},
		{"negative delay", func(d *WorkflowDefinition) { d.Actions[1].DelayMinutes = -1 }},
		{"duplicate order index", func(d *WorkflowDefinition) { d.Actions[1].OrderIndex = 0 }},
		{"invalid trigger config", func(d *WorkflowDefinition) {
			d.TriggerType = TriggerCandidateInactive
			d.Trigger = &InactivityTrigger{Days: 0}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := validDefinition()
			tc.mutate(&def)
			if err := def.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []ExecutionStatus{ExecutionCompleted, ExecutionFailed, ExecutionCancelled} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []ExecutionStatus{ExecutionPending, ExecutionRunning} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	for _, s := range []StepStatus{StepSucceeded, StepFailed, StepSkipped} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []StepStatus{StepAwaiting, StepScheduled, StepDue, StepRunning} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
