package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/executor"
	"github.com/stagehand/stagehand/pkg/migrator"
	"github.com/urfave/cli/v3"
)

// up creates the up command for applying pending migration phases.
//
// Command flags:
//   - --url, -u: PostgreSQL connection string (required)
//   - --to: stop after this position instead of running everything
//   - --resume: re-execute the phase a crashed run left unfinished
//   - --dry-run: show what would be executed without applying changes
//
// Example usage:
//
//	# Apply every pending phase
//	stagehand up --url postgres://localhost:5432/app
//
//	# Stop after revision 3's pre-deploy stage
//	stagehand up --url postgres://localhost:5432/app --to 3.pre
//
//	# Show what would run without touching the database
//	stagehand up --url postgres://localhost:5432/app --dry-run
func up(version Version) *cli.Command {
	return &cli.Command{
		Name:  "up",
		Usage: "Apply pending migration phases",
		Description: `Apply pending phases to the target database, in order, up to --to.

Phases run one at a time and every transition is recorded in the audit
ledger. A phase that is already applied is skipped; a phase left unfinished
by a crashed run stops the command until an operator confirms the database
state and re-runs with --resume.

Positions are written as revision[.stage[.change[.phase]]]:

  3          through the end of revision 3
  3.pre      through the end of revision 3's pre-deploy stage
  3.pre.2    through the end of change 2 in that stage
  3.pre.2.1  through that exact phase

Before a revision's post-deploy stage runs, tracked application connections
are checked against the revision's schema snapshot. Stale connections warn
by default; set crash_on_incompatible_version in stagehand.yaml to make them
fatal instead.`,
		Before: requireProject,
		Flags: []cli.Flag{
			urlFlag,
			&cli.StringFlag{
				Name:  "to",
				Usage: "Stop after this position (e.g. 3, 3.pre, 3.pre.2, 3.pre.2.1)",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.BoolFlag{
				Name:  "resume",
				Usage: "Re-execute the phase a crashed run left unfinished",
				Value: false,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Show what would be executed without applying changes",
				Value: false,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runUp(ctx, cmd, version)
		},
	}
}

func runUp(ctx context.Context, cmd *cli.Command, version Version) error {
	slog.Info("Starting forward run",
		"url", cmd.String("url"),
		"to", cmd.String("to"),
		"dry_run", cmd.Bool("dry-run"),
		"resume", cmd.Bool("resume"),
	)

	revisions, err := currentProject.RevisionList()
	if err != nil {
		return err
	}

	cfg, err := currentProject.Config()
	if err != nil {
		return err
	}

	if revisions.Len() == 0 {
		fmt.Printf("No revisions found in %s\n", cfg.MigrationsDir)
		return nil
	}

	target, err := parseTargetFlag(cmd)
	if err != nil {
		return err
	}

	client, err := connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	exec, err := newExecutor(client, version)
	if err != nil {
		return err
	}

	if cmd.Bool("dry-run") {
		return runUpDryRun(ctx, exec, revisions, target)
	}

	result, err := exec.Up(ctx, revisions, executor.UpOptions{
		Target: target,
		Resume: cmd.Bool("resume"),
	})
	if errors.Is(err, executor.ErrNotInstalled) {
		return errNotInstalled()
	}

	return reportForwardResult(result, err)
}

func runUpDryRun(ctx context.Context, exec *executor.Executor, revisions *migrator.RevisionList, target migrator.PhaseSlice) error {
	plan, err := exec.Plan(ctx, revisions, target)
	if errors.Is(err, executor.ErrNotInstalled) {
		return errNotInstalled()
	}
	if err != nil {
		return err
	}

	fmt.Println("Dry run: showing phases that would be executed")
	fmt.Println()

	pendingCount := 0
	skippedCount := 0
	inFlightCount := 0

	for _, phase := range plan.Phases {
		switch phase.Status {
		case executor.StatusApplied:
			fmt.Printf("  ⏭  %s (already applied)\n", phase.Index)
			skippedCount++

		case executor.StatusInFlight:
			fmt.Printf("  ⚠️  %s (unfinished run started %s)\n",
				phase.Index, phase.Audit.StartedAt.Format(time.RFC3339))
			inFlightCount++

		case executor.StatusReverted:
			fmt.Printf("  ▶  %s %s (%s, previously reverted)\n",
				phase.Index, phase.Change.Summary(), phase.Phase.Name)
			pendingCount++
			printStatementPreview(phase.Phase.Apply)

		default:
			fmt.Printf("  ▶  %s %s (%s)\n", phase.Index, phase.Change.Summary(), phase.Phase.Name)
			pendingCount++
			printStatementPreview(phase.Phase.Apply)
		}
	}

	fmt.Println()
	fmt.Printf("Summary: %d phases would be executed, %d already applied\n", pendingCount, skippedCount)

	if inFlightCount > 0 {
		fmt.Println()
		fmt.Println("⚠️  An unfinished phase holds the ledger's in-flight slot.")
		fmt.Println("   Confirm the database state, then run 'stagehand up --url <url> --resume'.")
		return nil
	}

	if pendingCount == 0 {
		fmt.Println("All phases are up to date.")
	}

	return nil
}

// printStatementPreview shows the first few DDL statements of a phase.
func printStatementPreview(stmts []string) {
	for i, stmt := range stmts {
		if i >= 3 { // Show max 3 statements
			fmt.Printf("     ... and %d more statements\n", len(stmts)-3)
			break
		}
		fmt.Printf("     %s\n", displayStatement(stmt))
	}
}

// displayStatement flattens a DDL statement onto one line and truncates it
// for preview output.
func displayStatement(stmt string) string {
	flat := strings.Join(strings.Fields(stmt), " ")
	if len(flat) > 80 {
		flat = flat[:77] + "..."
	}
	return flat
}

func reportForwardResult(result *executor.Result, runErr error) error {
	if result == nil {
		return runErr
	}

	fmt.Println()
	for _, index := range result.Applied {
		fmt.Printf("  ✅ %s applied\n", index)
	}

	fmt.Println()
	fmt.Printf("Summary: %d applied, %d skipped\n", len(result.Applied), result.Skipped)

	if runErr != nil {
		fmt.Println()
		fmt.Println("❌ The run stopped early. Review the error, confirm the database state, then resume.")
		return runErr
	}

	if len(result.Applied) > 0 {
		fmt.Println()
		fmt.Println("✅ All phases applied successfully.")
	} else {
		fmt.Println()
		fmt.Println("ℹ️  Everything is up to date.")
	}

	return nil
}

// errNotInstalled renders the executor's missing-control-schema sentinel as
// actionable command output.
func errNotInstalled() error {
	return errors.New("control schema is not installed; run 'stagehand init --url <url>' first")
}
