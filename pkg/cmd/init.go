package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/project"
	"github.com/urfave/cli/v3"
)

// initCommand creates the init command for scaffolding a new project.
//
// Command flags:
//   - --url, -u: optional; also install the control schema at this database
//
// Example usage:
//
//	# Scaffold the project files only
//	stagehand init
//
//	# Scaffold and install the control schema
//	stagehand init --url postgres://localhost:5432/app
func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize a new stagehand project",
		Description: `Create the stagehand project structure in the config file's directory.

Initialization is idempotent: existing files are preserved and only missing
pieces are created. The scaffold contains:
- stagehand.yaml with documented defaults
- migrations/ for revision documents and schema snapshots
- migrations/incantation.sql for objects that predate revision 1

With --url the command also installs the control schema (the migration
registry, the audit ledger, and the connection tracking table) into the
target database and applies the incantation file. Installation is a one-time
operation: it fails if the control schema already exists.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "also install the control schema at this PostgreSQL URL",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		Action: runInit,
	}
}

func runInit(ctx context.Context, cmd *cli.Command) error {
	proj := currentProject
	if proj == nil {
		proj = project.New(filepath.Dir(cmd.String("config")))
	}

	if err := proj.Initialize(); err != nil {
		return errors.Wrap(err, "failed to initialize project")
	}

	fmt.Printf("Initialized stagehand project in %s\n", proj.Root())

	url := cmd.String("url")
	if url == "" {
		fmt.Println("Run 'stagehand init --url <url>' to install the control schema")
		return nil
	}

	client, err := connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.CreateControlSchema(ctx); err != nil {
		return errors.Wrap(err, "failed to install control schema")
	}

	incantation, err := proj.IncantationSQL()
	if err != nil {
		return err
	}

	if err := client.ApplyIncantation(ctx, incantation); err != nil {
		return err
	}

	fmt.Println("Installed control schema")
	return nil
}
