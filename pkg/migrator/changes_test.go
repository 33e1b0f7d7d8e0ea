package migrator_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stagehand/stagehand/pkg/migrator"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"
)

// TestGoldenFiles renders every phase of each testdata document and locks
// the generated DDL programs against golden files. Inputs are migration
// documents named *.in.yml; the expected rendering lives in the matching
// *.sql file.
func TestGoldenFiles(t *testing.T) {
	pattern := filepath.Join("testdata", "*.in.yml")
	matches, err := filepath.Glob(pattern)
	require.NoError(t, err)
	require.NotEmpty(t, matches, "No *.in.yml files found in testdata directory")

	for _, inputFile := range matches {
		basename := filepath.Base(inputFile)
		outputName := strings.TrimSuffix(basename, ".in.yml") + ".sql"

		t.Run(outputName, func(t *testing.T) {
			f, err := os.Open(inputFile)
			require.NoError(t, err)
			defer func() { _ = f.Close() }()

			doc, err := migrator.ParseMigration(f)
			require.NoError(t, err, "Failed to parse document from %s", inputFile)

			entries := doc.Phases(migrator.PhaseIndex{Revision: 3, PreDeploy: true})
			golden.Assert(t, renderEntries(entries), outputName)
		})
	}
}

// renderEntries prints each phase's position, apply program, and revert
// program in a stable textual form for golden comparison.
func renderEntries(entries []migrator.PhaseEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "-- %s %s: %s\n", e.Index.String(), e.Change.Summary(), e.Phase.Name)
		for _, stmt := range e.Phase.Apply {
			b.WriteString(stmt)
			b.WriteString("\n")
		}
		if e.Phase.CanRevert() {
			b.WriteString("-- revert\n")
			for _, stmt := range e.Phase.Revert {
				b.WriteString(stmt)
				b.WriteString("\n")
			}
		} else {
			b.WriteString("-- revert: impossible\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func TestChangeValidate(t *testing.T) {
	tests := []struct {
		name    string
		change  migrator.Change
		wantErr string
	}{
		{
			name:    "no_kind_set",
			change:  migrator.Change{},
			wantErr: "exactly one change kind",
		},
		{
			name: "multiple_kinds_set",
			change: migrator.Change{
				AddColumn:  &migrator.AddColumn{Table: "accounts", Name: "status", Type: "TEXT", Nullable: true},
				DropColumn: &migrator.DropColumn{Table: "accounts", Name: "status"},
			},
			wantErr: "exactly one change kind",
		},
		{
			name: "create_table_without_columns",
			change: migrator.Change{
				CreateTable: &migrator.CreateTable{Name: "accounts"},
			},
			wantErr: "at least one column",
		},
		{
			name: "create_table_with_invalid_name",
			change: migrator.Change{
				CreateTable: &migrator.CreateTable{
					Name:    "Accounts Table",
					Columns: []migrator.Column{{Name: "id", Type: "BIGINT"}},
				},
			},
			wantErr: "invalid table name",
		},
		{
			name: "add_column_not_null_without_backfill",
			change: migrator.Change{
				AddColumn: &migrator.AddColumn{Table: "accounts", Name: "status", Type: "TEXT"},
			},
			wantErr: "needs a backfill or default",
		},
		{
			name: "add_column_missing_type",
			change: migrator.Change{
				AddColumn: &migrator.AddColumn{Table: "accounts", Name: "status", Nullable: true},
			},
			wantErr: "type is required",
		},
		{
			name: "add_index_without_columns",
			change: migrator.Change{
				AddIndex: &migrator.AddIndex{Table: "accounts", Name: "accounts_email_key"},
			},
			wantErr: "at least one column",
		},
		{
			name: "create_view_without_query",
			change: migrator.Change{
				CreateView: &migrator.CreateView{Name: "active_accounts", As: "  "},
			},
			wantErr: "as query is required",
		},
		{
			name: "run_ddl_phase_without_apply",
			change: migrator.Change{
				RunDDL: &migrator.RunDDL{Name: "noop", Phases: []migrator.Phase{{Name: "empty"}}},
			},
			wantErr: "no apply statements",
		},
		{
			name: "valid_add_column",
			change: migrator.Change{
				AddColumn: &migrator.AddColumn{
					Table:    "accounts",
					Name:     "status",
					Type:     "TEXT",
					Backfill: "'active'",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.change.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestChangeKindAndSummary(t *testing.T) {
	change := migrator.Change{
		CreateView: &migrator.CreateView{Name: "active_accounts", As: "SELECT 1"},
	}
	require.Equal(t, "create_view", change.Kind())
	require.Equal(t, `create view "active_accounts"`, change.Summary())

	invalid := migrator.Change{}
	require.Equal(t, "invalid", invalid.Kind())
	require.Nil(t, invalid.Phases(1))
}

func TestAddColumnPhaseShapes(t *testing.T) {
	t.Run("nullable_without_backfill_is_single_phase", func(t *testing.T) {
		change := migrator.Change{
			AddColumn: &migrator.AddColumn{Table: "accounts", Name: "note", Type: "TEXT", Nullable: true},
		}
		phases := change.Phases(1)
		require.Len(t, phases, 1)
		require.Equal(t, "add column", phases[0].Name)
		require.True(t, phases[0].CanRevert())
	})

	t.Run("not_null_with_backfill_is_three_phases", func(t *testing.T) {
		change := migrator.Change{
			AddColumn: &migrator.AddColumn{
				Table:    "accounts",
				Name:     "status",
				Type:     "TEXT",
				Backfill: "'active'",
			},
		}
		phases := change.Phases(1)
		require.Len(t, phases, 3)
		require.Equal(t, []string{"add column", "backfill", "set not null"}, []string{
			phases[0].Name, phases[1].Name, phases[2].Name,
		})

		// The backfill reverts by doing nothing: destroying written data is
		// the drop phase's job.
		require.True(t, phases[1].CanRevert())
		require.Empty(t, phases[1].Revert)
	})
}

func TestDropColumnIsIrreversible(t *testing.T) {
	change := migrator.Change{
		DropColumn: &migrator.DropColumn{Table: "accounts", Name: "legacy_state"},
	}
	phases := change.Phases(1)
	require.Len(t, phases, 1)
	require.False(t, phases[0].CanRevert())
}

func TestRunDDLShimSubstitution(t *testing.T) {
	change := migrator.Change{
		RunDDL: &migrator.RunDDL{
			Name: "stage table",
			Phases: []migrator.Phase{{
				Name:   "stage",
				Apply:  []string{"CREATE TABLE {shim}.totals (n INT)"},
				Revert: []string{"DROP TABLE {shim}.totals"},
			}},
		},
	}

	phases := change.Phases(7)
	require.Equal(t, "CREATE TABLE stagehand_shim_7.totals (n INT)", phases[0].Apply[0])
	require.Equal(t, "DROP TABLE stagehand_shim_7.totals", phases[0].Revert[0])

	// The same document renders a different staging schema per revision.
	phases = change.Phases(8)
	require.Equal(t, "CREATE TABLE stagehand_shim_8.totals (n INT)", phases[0].Apply[0])
}

func TestCreateViewUsesShimSchema(t *testing.T) {
	change := migrator.Change{
		CreateView: &migrator.CreateView{Name: "active_accounts", As: "SELECT 1"},
	}

	phases := change.Phases(5)
	require.Len(t, phases, 2)
	require.Contains(t, phases[0].Apply[0], `"stagehand_shim_5"."active_accounts"`)
	require.Contains(t, phases[1].Apply[0], `SET SCHEMA "public"`)
	require.Contains(t, phases[1].Revert[0], `SET SCHEMA "stagehand_shim_5"`)
}
