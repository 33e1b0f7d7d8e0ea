package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/consts"
	"github.com/stagehand/stagehand/pkg/migrator"
	"github.com/stagehand/stagehand/pkg/postgres"
	"github.com/urfave/cli/v3"
)

// revision creates the revision command for authoring a new revision.
//
// Command flags:
//   - --url, -u: PostgreSQL connection string (required)
//   - --message, -m: one-line description of the revision (required)
//
// Example usage:
//
//	stagehand revision --url postgres://localhost:5432/app -m "add account status"
func revision() *cli.Command {
	return &cli.Command{
		Name:  "revision",
		Usage: "Create a new revision with a schema snapshot",
		Description: `Create the next revision: a skeleton migration document plus a schema
snapshot capturing the database state the revision starts from.

The snapshot is produced without touching the real database. A scratch
database is created next to it, the incantation file and every existing
revision are replayed into the scratch copy, and schema_dump_command runs
against the result. The connected role needs the CREATEDB privilege.

The skeleton's pre_deploy and post_deploy stages start empty; edit the
document, then apply it with 'stagehand up'.`,
		Before: requireProject,
		Flags: []cli.Flag{
			urlFlag,
			&cli.StringFlag{
				Name:     "message",
				Aliases:  []string{"m"},
				Usage:    "One-line description of the revision",
				Required: true,
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		Action: runRevision,
	}
}

func runRevision(ctx context.Context, cmd *cli.Command) error {
	message := cmd.String("message")
	slog.Info("Creating revision", "message", message)

	cfg, err := currentProject.Config()
	if err != nil {
		return err
	}
	if cfg.SchemaDumpCommand == "" {
		return errors.Errorf("schema_dump_command is not set in %s; the revision command needs it to capture snapshots", consts.ConfigFile)
	}

	revisions, err := currentProject.RevisionList()
	if err != nil {
		return err
	}

	client, err := connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	snapshot, err := buildSnapshot(ctx, client, cfg.SchemaDumpCommand, revisions)
	if err != nil {
		return err
	}

	// Nothing below ran if the replay failed, so a broken revision set never
	// leaves a half-authored skeleton behind.
	files, err := currentProject.CreateRevision(message)
	if err != nil {
		return err
	}

	if err := os.WriteFile(files.SnapshotPath, []byte(snapshot), consts.ModeFile); err != nil {
		return errors.Wrapf(err, "failed to write schema snapshot %s", files.SnapshotPath)
	}

	fmt.Printf("Created revision %d\n", files.Number)
	fmt.Printf("  📄 %s\n", files.MigrationPath)
	fmt.Printf("  📸 %s\n", files.SnapshotPath)
	fmt.Println()
	fmt.Println("Edit the migration document, then run 'stagehand up --url <url>' to apply it.")
	return nil
}

// buildSnapshot replays the project's revisions into a scratch database and
// dumps the resulting schema.
func buildSnapshot(ctx context.Context, client *postgres.Client, dumpCommand string, revisions *migrator.RevisionList) (string, error) {
	tempURL, dropTemp, err := client.CreateTempDatabase(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := dropTemp(ctx); err != nil {
			slog.Warn("Failed to drop temp database", "error", err)
		}
	}()

	temp, err := postgres.Connect(ctx, tempURL)
	if err != nil {
		return "", errors.Wrap(err, "failed to connect to temp database")
	}
	defer temp.Close()

	incantation, err := currentProject.IncantationSQL()
	if err != nil {
		return "", err
	}
	if err := temp.ApplyIncantation(ctx, incantation); err != nil {
		return "", err
	}

	if err := replayRevisions(ctx, temp, revisions); err != nil {
		return "", err
	}

	slog.Info("Replayed revisions into temp database", "revisions", revisions.Len())

	dump, err := postgres.RunSchemaDump(ctx, dumpCommand, tempURL)
	if err != nil {
		return "", err
	}
	return dump, nil
}

// replayRevisions executes every phase of every revision in order, shim
// schemas included, reproducing the schema the migrations build on a real
// database.
func replayRevisions(ctx context.Context, client *postgres.Client, revisions *migrator.RevisionList) error {
	for _, rev := range revisions.Ordered() {
		phases, err := rev.Phases()
		if err != nil {
			return err
		}

		if err := client.CreateShimSchema(ctx, rev.Number); err != nil {
			return errors.Wrapf(err, "failed to create shim schema for revision %d", rev.Number)
		}

		for _, entry := range phases {
			if err := client.ExecDDL(ctx, entry.Phase.Apply...); err != nil {
				return errors.Wrapf(err, "replay of phase %s (%s) failed", entry.Index, entry.Phase.Name)
			}
		}

		if err := client.DropShimSchema(ctx, rev.Number); err != nil {
			return errors.Wrapf(err, "failed to drop shim schema for revision %d", rev.Number)
		}
	}
	return nil
}
