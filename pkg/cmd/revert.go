package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/executor"
	"github.com/urfave/cli/v3"
)

// revert creates the revert command for undoing applied migration phases.
//
// Command flags:
//   - --url, -u: PostgreSQL connection string (required)
//   - --to: position that remains applied after the run (required)
//
// Example usage:
//
//	# Undo everything after revision 2
//	stagehand revert --url postgres://localhost:5432/app --to 2
//
//	# Undo revision 3's post-deploy stage, keeping its pre-deploy stage
//	stagehand revert --url postgres://localhost:5432/app --to 3.pre
//
//	# Undo every applied phase
//	stagehand revert --url postgres://localhost:5432/app --to 0
func revert(version Version) *cli.Command {
	return &cli.Command{
		Name:  "revert",
		Usage: "Undo applied migration phases",
		Description: `Undo applied phases, newest first, until only the phases at or before
--to remain applied.

The whole walk is validated before anything runs: a phase without a revert
program, or one whose forward run never finished, aborts the command with
nothing undone. A phase whose previous revert crashed mid-way is picked up
where it stopped.

--to accepts the same position grammar as up; --to 0 reverts everything.`,
		Before: requireProject,
		Flags: []cli.Flag{
			urlFlag,
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Position that remains applied (e.g. 2, 3.pre, 0 for everything)",
				Required: true,
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runRevert(ctx, cmd, version)
		},
	}
}

func runRevert(ctx context.Context, cmd *cli.Command, version Version) error {
	slog.Info("Starting revert", "url", cmd.String("url"), "to", cmd.String("to"))

	revisions, err := currentProject.RevisionList()
	if err != nil {
		return err
	}

	to, err := parseTargetFlag(cmd)
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

	result, err := exec.Revert(ctx, revisions, executor.RevertOptions{To: to})
	if errors.Is(err, executor.ErrNotInstalled) {
		return errNotInstalled()
	}

	return reportRevertResult(result, err)
}

func reportRevertResult(result *executor.Result, runErr error) error {
	if result == nil {
		return runErr
	}

	fmt.Println()
	for _, index := range result.Reverted {
		fmt.Printf("  ✅ %s reverted\n", index)
	}

	fmt.Println()
	fmt.Printf("Summary: %d reverted, %d skipped\n", len(result.Reverted), result.Skipped)

	if runErr != nil {
		fmt.Println()
		fmt.Println("❌ The revert stopped early. Review the error, confirm the database state, then re-run.")
		return runErr
	}

	if len(result.Reverted) > 0 {
		fmt.Println()
		fmt.Println("✅ All phases reverted successfully.")
	} else {
		fmt.Println()
		fmt.Println("ℹ️  Nothing to revert.")
	}

	return nil
}
