package recruitflow

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recruitflow/recruitflow/pkg/api"

	_ "modernc.org/sqlite"
)

// An accepted event survives a process restart: the execution and its step
// plan are in SQLite, so a fresh bundle over the same file picks up where the
// old one stopped.
func TestSQLiteBundleSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "recruitflow_test.db")

	ats := newMemoryATS(&api.Subject{ID: "cand-1", OrgID: "acme", Name: "Dana", Email: "dana@example.com"})
	cfg := BundleConfig{
		Capabilities: Capabilities{Subjects: ats, Email: ats, Tags: ats},
		Retry:        Retry(1).Immediate().Policy(),
	}

	now := time.Now()

	// --- Phase 1: accept the event, execute nothing.

	db1, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)

	bundle1, err := NewSQLiteBundle(db1, cfg)
	require.NoError(t, err)

	NewWorkflow("welcome").
		WithID("def-restart").
		ForOrg("acme").
		OnCandidateCreated().
		SendEmail("Welcome, {{name}}", "Hi {{name}}").
		AddTag("welcomed").
		MustRegister(bundle1.Engine)

	execs, err := bundle1.Engine.HandleEvent(ctx, Event{
		OrgID:      "acme",
		Type:       TriggerCandidateCreated,
		SubjectID:  "cand-1",
		OccurredAt: now,
	})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	id := execs[0].ID

	require.NoError(t, db1.Close())

	// --- Phase 2: "restart" with a new DB handle and bundle.

	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db2.Close()

	bundle2, err := NewSQLiteBundle(db2, cfg)
	require.NoError(t, err)

	exec, err := bundle2.Engine.GetExecution(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ExecutionPending, exec.Status)

	_, err = bundle2.Engine.Recover(ctx)
	require.NoError(t, err)

	require.NoError(t, bundle2.Tick(ctx, now))
	require.Equal(t, []string{"dana@example.com: Welcome, Dana"}, ats.sentEmails())

	// The successor has no delay, so the next tick finishes the execution.
	require.NoError(t, bundle2.Tick(ctx, now.Add(time.Minute)))
	require.Equal(t, []string{"welcomed"}, ats.tagsOf("cand-1"))

	exec, err = bundle2.Engine.GetExecution(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ExecutionCompleted, exec.Status)

	steps, err := bundle2.Engine.ListSteps(ctx, id)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	for _, step := range steps {
		require.Equal(t, StepSucceeded, step.Status)
	}
}
