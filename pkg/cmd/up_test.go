package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/cmd/testutil"
	"github.com/stagehand/stagehand/pkg/executor"
	"github.com/stagehand/stagehand/pkg/migrator"
	"github.com/stretchr/testify/require"
)

func TestUpCommand_Structure(t *testing.T) {
	command := up(Version{Version: "test-1.0.0"})

	require.Equal(t, "up", command.Name)
	require.Equal(t, "Apply pending migration phases", command.Usage)
	require.NotNil(t, command.Before)
	require.NotNil(t, command.Action)

	var names []string
	for _, flag := range command.Flags {
		names = append(names, flag.Names()[0])
	}
	require.Contains(t, names, "url")
	require.Contains(t, names, "to")
	require.Contains(t, names, "resume")
	require.Contains(t, names, "dry-run")
}

func TestUpCommand_NoRevisions(t *testing.T) {
	fixture := testutil.TestProject(t)

	// The URL points nowhere. An empty migrations directory returns before
	// the command ever connects.
	err := runStagehand(t, fixture.ConfigPath(), "up", "--url", "postgres://127.0.0.1:1/unreachable")
	require.NoError(t, err)
}

func TestUpCommand_InvalidTarget(t *testing.T) {
	fixture := testutil.TestProject(t).
		WithRevision(1, "create-accounts", docCreateAccounts)

	// Target validation happens before connecting, so the bad URL is never
	// dialed.
	err := runStagehand(t, fixture.ConfigPath(), "up",
		"--url", "postgres://127.0.0.1:1/unreachable",
		"--to", "3.mid",
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), `invalid --to spec "3.mid"`)
}

func TestDisplayStatement(t *testing.T) {
	tests := []struct {
		description string
		stmt        string
		expected    string
	}{
		{
			description: "short statements pass through",
			stmt:        "CREATE TABLE accounts (id BIGINT);",
			expected:    "CREATE TABLE accounts (id BIGINT);",
		},
		{
			description: "multi-line statements flatten to one line",
			stmt:        "CREATE TABLE accounts (\n  id BIGINT NOT NULL,\n  email TEXT\n);",
			expected:    "CREATE TABLE accounts ( id BIGINT NOT NULL, email TEXT );",
		},
		{
			description: "long statements truncate with an ellipsis",
			stmt:        strings.Repeat("x", 100),
			expected:    strings.Repeat("x", 77) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			require.Equal(t, tt.expected, displayStatement(tt.stmt))
		})
	}
}

func TestReportForwardResult(t *testing.T) {
	boom := errors.New("phase 2.pre.0.1 failed")

	tests := []struct {
		description string
		result      *executor.Result
		runErr      error
		expectedErr error
	}{
		{
			description: "nil result passes the error through",
			runErr:      boom,
			expectedErr: boom,
		},
		{
			description: "nil result without an error",
		},
		{
			description: "successful run",
			result: &executor.Result{
				Applied: []migrator.PhaseIndex{{Revision: 1, PreDeploy: true}},
				Skipped: 2,
			},
		},
		{
			description: "no-op run",
			result:      &executor.Result{Skipped: 5},
		},
		{
			description: "partial run keeps the error",
			result: &executor.Result{
				Applied: []migrator.PhaseIndex{{Revision: 1, PreDeploy: true}},
			},
			runErr:      boom,
			expectedErr: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			err := reportForwardResult(tt.result, tt.runErr)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestUpCommand_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start a real PostgreSQL container for integration testing
	_, url := testutil.StartPostgresContainer(t)

	fixture := testutil.TestProject(t).
		WithRevision(1, "create-accounts", docCreateAccounts).
		WithSnapshot(1, "-- schema after revision 1\n").
		WithRevision(2, "add-account-status", docAddStatus).
		WithSnapshot(2, "-- schema after revision 2\n")

	// Verification pool, independent of the pools the commands open.
	pool := openTestPool(t, url)

	t.Run("status before install", func(t *testing.T) {
		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "status", "--url", url))
	})

	t.Run("up before install", func(t *testing.T) {
		err := runStagehand(t, fixture.ConfigPath(), "up", "--url", url)
		require.Error(t, err)
		require.Contains(t, err.Error(), "control schema is not installed")
	})

	t.Run("install control schema", func(t *testing.T) {
		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "init", "--url", url))
		require.True(t, schemaExists(t, pool, "stagehand"))
	})

	t.Run("reinstall fails", func(t *testing.T) {
		err := runStagehand(t, fixture.ConfigPath(), "init", "--url", url)
		require.Error(t, err)
		require.Contains(t, err.Error(), "already installed")
	})

	t.Run("up to the first revision", func(t *testing.T) {
		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "up", "--url", url, "--to", "1"))

		require.True(t, tableExists(t, pool, "accounts"))
		require.False(t, columnExists(t, pool, "accounts", "status"))
		require.Equal(t, 1, auditRowCount(t, pool))
		require.Equal(t, 1, registeredRevisionCount(t, pool))

		// Seed a row so the next revision's backfill has work to do.
		_, err := pool.Exec(ctx, `INSERT INTO accounts (id, email) VALUES (1, 'casey@example.com')`)
		require.NoError(t, err)
	})

	t.Run("up applies the remaining phases", func(t *testing.T) {
		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "up", "--url", url))

		require.True(t, columnExists(t, pool, "accounts", "status"))
		require.True(t, indexExists(t, pool, "accounts_status_idx"))

		// The seeded row was backfilled before NOT NULL landed.
		var status string
		require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM accounts WHERE id = 1`).Scan(&status))
		require.Equal(t, "active", status)

		var nullable string
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT is_nullable FROM information_schema.columns
			 WHERE table_schema = 'public' AND table_name = 'accounts' AND column_name = 'status'`,
		).Scan(&nullable))
		require.Equal(t, "NO", nullable)

		// create table, add column, backfill, set not null, create index.
		require.Equal(t, 5, auditRowCount(t, pool))
		require.Equal(t, 5, appliedPhaseCount(t, pool))
		require.Equal(t, 2, registeredRevisionCount(t, pool))
		require.Equal(t, 0, shimSchemaCount(t, pool))
	})

	t.Run("up again is a no-op", func(t *testing.T) {
		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "up", "--url", url))
		require.Equal(t, 5, auditRowCount(t, pool))
	})

	t.Run("dry run leaves a new revision untouched", func(t *testing.T) {
		fixture.
			WithRevision(3, "create-events", docCreateEvents).
			WithSnapshot(3, "-- schema after revision 3\n")

		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "up", "--url", url, "--dry-run"))

		require.False(t, tableExists(t, pool, "events"))
		require.Equal(t, 5, auditRowCount(t, pool))
	})

	t.Run("up stops at the pre-deploy stage", func(t *testing.T) {
		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "up", "--url", url, "--to", "3.pre"))

		require.True(t, tableExists(t, pool, "events"))
		require.False(t, indexExists(t, pool, "events_account_id_idx"))
		require.Equal(t, 6, auditRowCount(t, pool))
		require.Equal(t, 3, registeredRevisionCount(t, pool))

		// The revision is unfinished, so its staging schema survives the run.
		require.True(t, schemaExists(t, pool, "stagehand_shim_3"))
	})

	t.Run("up finishes the revision", func(t *testing.T) {
		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "up", "--url", url))

		require.True(t, indexExists(t, pool, "events_account_id_idx"))
		require.Equal(t, 7, auditRowCount(t, pool))
		require.False(t, schemaExists(t, pool, "stagehand_shim_3"))
	})

	t.Run("status after apply", func(t *testing.T) {
		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "status", "--url", url))
		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "status", "--url", url, "--verbose"))
	})

	t.Run("revert the post-deploy stage", func(t *testing.T) {
		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "revert", "--url", url, "--to", "3.pre"))

		// Only the index phase unwinds; the table from the pre stage stays.
		require.False(t, indexExists(t, pool, "events_account_id_idx"))
		require.True(t, tableExists(t, pool, "events"))
		require.Equal(t, 7, auditRowCount(t, pool))
		require.Equal(t, 6, appliedPhaseCount(t, pool))

		// The revision is incomplete again, so its staging schema is back.
		require.True(t, schemaExists(t, pool, "stagehand_shim_3"))
	})

	t.Run("revert everything", func(t *testing.T) {
		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "revert", "--url", url, "--to", "0"))

		require.False(t, tableExists(t, pool, "accounts"))
		require.False(t, tableExists(t, pool, "events"))
		require.Equal(t, 0, shimSchemaCount(t, pool))

		// Reverting mutates the existing ledger rows instead of deleting them.
		require.Equal(t, 7, auditRowCount(t, pool))
		require.Equal(t, 0, appliedPhaseCount(t, pool))

		// Only migration phases unwind; the control schema stays put.
		require.True(t, schemaExists(t, pool, "stagehand"))
	})

	t.Run("revert again is a no-op", func(t *testing.T) {
		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "revert", "--url", url, "--to", "0"))
		require.Equal(t, 7, auditRowCount(t, pool))
	})

	t.Run("up reapplies after a full revert", func(t *testing.T) {
		require.NoError(t, runStagehand(t, fixture.ConfigPath(), "up", "--url", url))

		require.True(t, tableExists(t, pool, "accounts"))
		require.True(t, tableExists(t, pool, "events"))

		// Each phase gets a fresh ledger row; the reverted history remains.
		require.Equal(t, 14, auditRowCount(t, pool))
		require.Equal(t, 7, appliedPhaseCount(t, pool))
		require.Equal(t, 3, registeredRevisionCount(t, pool))
	})

	t.Run("connection failure", func(t *testing.T) {
		err := runStagehand(t, fixture.ConfigPath(), "up",
			"--url", "postgres://127.0.0.1:1/nope?connect_timeout=1")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to connect to PostgreSQL")
	})
}

// openTestPool opens a pgx pool for verifying database state directly,
// closed when the test finishes.
func openTestPool(t *testing.T, url string) *pgxpool.Pool {
	t.Helper()

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err, "Failed to open verification pool")
	t.Cleanup(pool.Close)
	return pool
}

// queryCount runs a count query against the verification pool.
func queryCount(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) int {
	t.Helper()

	var count int
	require.NoError(t, pool.QueryRow(context.Background(), sql, args...).Scan(&count))
	return count
}

func tableExists(t *testing.T, pool *pgxpool.Pool, table string) bool {
	t.Helper()
	return queryCount(t, pool,
		`SELECT count(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1`,
		table) > 0
}

func columnExists(t *testing.T, pool *pgxpool.Pool, table, column string) bool {
	t.Helper()
	return queryCount(t, pool,
		`SELECT count(*) FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2`,
		table, column) > 0
}

func indexExists(t *testing.T, pool *pgxpool.Pool, index string) bool {
	t.Helper()
	return queryCount(t, pool,
		`SELECT count(*) FROM pg_indexes WHERE schemaname = 'public' AND indexname = $1`,
		index) > 0
}

func schemaExists(t *testing.T, pool *pgxpool.Pool, schema string) bool {
	t.Helper()
	return queryCount(t, pool,
		`SELECT count(*) FROM information_schema.schemata WHERE schema_name = $1`,
		schema) > 0
}

func shimSchemaCount(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	return queryCount(t, pool,
		`SELECT count(*) FROM information_schema.schemata WHERE schema_name LIKE 'stagehand_shim_%'`)
}

func auditRowCount(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	return queryCount(t, pool, `SELECT count(*) FROM stagehand.migration_audit`)
}

// appliedPhaseCount counts ledger rows that are finished and not reverted.
func appliedPhaseCount(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	return queryCount(t, pool,
		`SELECT count(*) FROM stagehand.migration_audit
		 WHERE finished_at IS NOT NULL AND revert_finished_at IS NULL`)
}

// registeredRevisionCount counts registry rows across every revision.
func registeredRevisionCount(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	return queryCount(t, pool, `SELECT count(*) FROM stagehand.migrations`)
}
