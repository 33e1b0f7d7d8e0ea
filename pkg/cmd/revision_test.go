package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stagehand/stagehand/pkg/cmd/testutil"
	"github.com/stagehand/stagehand/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestRevisionCommand_Structure(t *testing.T) {
	command := revision()

	require.Equal(t, "revision", command.Name)
	require.Equal(t, "Create a new revision with a schema snapshot", command.Usage)
	require.NotNil(t, command.Before)
	require.NotNil(t, command.Action)

	var names []string
	for _, flag := range command.Flags {
		names = append(names, flag.Names()[0])
	}
	require.Contains(t, names, "url")
	require.Contains(t, names, "message")
}

func TestRevisionCommand_RequiresMessage(t *testing.T) {
	command := revision()

	err := testutil.RunCommand(t, command, []string{"--url", "postgres://localhost:5432/app"})
	require.Error(t, err)
	require.Contains(t, err.Error(), `"message"`)
	require.Contains(t, err.Error(), "not set")
}

func TestRevisionCommand_RequiresDumpCommand(t *testing.T) {
	fixture := testutil.TestProject(t).
		WithConfig(func(cfg *config.Config) {
			cfg.SchemaDumpCommand = ""
		})

	// The missing dump command is reported before any connection attempt, so
	// the unreachable URL never matters.
	err := runStagehand(t, fixture.ConfigPath(), "revision",
		"--url", "postgres://127.0.0.1:1/unreachable",
		"-m", "add account status",
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "schema_dump_command is not set")
}

func TestRevisionCommand_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Start a real PostgreSQL container for integration testing
	_, url := testutil.StartPostgresContainer(t)

	// A fake dump command keeps the test independent of pg_dump while still
	// exercising the temp-database replay.
	fixture := testutil.TestProject(t).
		WithConfig(func(cfg *config.Config) {
			cfg.SchemaDumpCommand = `echo "-- captured schema"`
		}).
		WithRevision(1, "create-accounts", docCreateAccounts).
		WithSnapshot(1, "-- schema after revision 1\n")

	err := runStagehand(t, fixture.ConfigPath(), "revision", "--url", url, "-m", "add account status")
	require.NoError(t, err)

	testutil.RequireRevisionCount(t, fixture.MigrationsDir(), 2)

	testutil.RequireFileExists(t,
		filepath.Join(fixture.MigrationsDir(), "2-add-account-status.yml"),
		testutil.RequireFileContains(t, "message: add account status"),
		testutil.RequireFileContains(t, "pre_deploy:"),
	)
	testutil.RequireFileExists(t,
		filepath.Join(fixture.MigrationsDir(), "2-schema.sql"),
		testutil.RequireFileContains(t, "-- captured schema"),
	)

	// The scratch database used for the replay is dropped on the way out.
	pool := openTestPool(t, url)
	require.Equal(t, 0, queryCount(t, pool,
		`SELECT count(*) FROM pg_database WHERE datname LIKE 'stagehand_tmp_%'`))
}
