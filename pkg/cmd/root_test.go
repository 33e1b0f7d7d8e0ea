package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stagehand/stagehand/pkg/consts"
	"github.com/stretchr/testify/require"
)

// Migration documents shared by the command tests. Each one round-trips
// through a real database in the integration tests, so the statements have to
// hold up on PostgreSQL, not just parse.
const (
	docCreateAccounts = `message: create accounts table
pre_deploy:
  - create_table:
      name: accounts
      columns:
        - name: id
          type: BIGINT
        - name: email
          type: TEXT
      primary_key:
        - id
`

	docAddStatus = `message: add account status
pre_deploy:
  - add_column:
      table: accounts
      name: status
      type: TEXT
      backfill: "'active'"
post_deploy:
  - add_index:
      table: accounts
      name: accounts_status_idx
      columns:
        - status
`

	docCreateEvents = `message: create events table
pre_deploy:
  - create_table:
      name: events
      columns:
        - name: id
          type: BIGINT
        - name: account_id
          type: BIGINT
      primary_key:
        - id
post_deploy:
  - add_index:
      table: events
      name: events_account_id_idx
      columns:
        - account_id
`
)

// runStagehand drives the full application the way a shell invocation would,
// root flags and project detection included.
func runStagehand(t *testing.T, configPath string, args ...string) error {
	t.Helper()

	full := append([]string{"stagehand", "--config", configPath}, args...)
	return Run(context.Background(), Version{Version: "test"}, full)
}

func TestCommands_RequireProject(t *testing.T) {
	tests := []struct {
		description string
		args        []string
	}{
		{
			description: "up",
			args:        []string{"up", "--url", "postgres://localhost:5432/app"},
		},
		{
			description: "revert",
			args:        []string{"revert", "--url", "postgres://localhost:5432/app", "--to", "1"},
		},
		{
			description: "status",
			args:        []string{"status", "--url", "postgres://localhost:5432/app"},
		},
		{
			description: "revision",
			args:        []string{"revision", "--url", "postgres://localhost:5432/app", "-m", "add things"},
		},
		{
			description: "dev up",
			args:        []string{"dev", "up"},
		},
		{
			description: "dev down",
			args:        []string{"dev", "down"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			// The config path points into an empty directory, so project
			// detection finds nothing.
			configPath := filepath.Join(t.TempDir(), consts.ConfigFile)

			err := runStagehand(t, configPath, tt.args...)
			require.Error(t, err)
			require.Contains(t, err.Error(), "stagehand.yaml not found")
			require.Contains(t, err.Error(), "stagehand init")
		})
	}
}
