package ledger

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/recruitflow/recruitflow/internal/testutil"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openPostgres(t *testing.T) *sql.DB {
	t.Helper()

	dsn := testutil.GetPostgresEndpoint(t)
	if dsn == "" {
		t.Skip("docker unavailable, skipping postgres store tests")
	}

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPostgresExecutionStore(t *testing.T) {
	store, err := NewPostgresExecutionStore(openPostgres(t))
	require.NoError(t, err)

	runExecutionStoreSuite(t, store)
}

func TestPostgresEventStore(t *testing.T) {
	store, err := NewPostgresEventStore(openPostgres(t))
	require.NoError(t, err)

	runEventStoreSuite(t, store)
}
