package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/config"
	"github.com/stagehand/stagehand/pkg/consts"
	"github.com/stagehand/stagehand/pkg/project"
	"github.com/urfave/cli/v3"
)

var currentProject *project.Project

// Version carries build identification stamped into the binary at release
// time.
type Version struct {
	Version   string
	Commit    string
	Timestamp string
}

// Run creates and executes the main stagehand CLI application with the given
// version and command-line arguments. This function serves as the main entry
// point for all CLI operations and handles global configuration.
//
// The function creates a CLI application with:
//   - Global --config flag for specifying the project configuration file
//   - Project auto-detection based on the config file's presence
//   - Command registration and routing
//   - Context propagation for cancellation support
//
// Global Flags:
//   - --config, -c: Project configuration file (defaults to stagehand.yaml,
//     also read from STAGEHAND_CONFIG)
//
// The application detects stagehand projects by looking for the configured
// file. If found, it loads the configuration and initializes the global
// currentProject for use by subcommands; commands that need a project guard
// with requireProject.
//
// Example usage:
//
//	# Run in current directory (auto-detect project)
//	err := Run(ctx, version, []string{"stagehand", "init"})
//
//	# Run against a project elsewhere
//	err := Run(ctx, version, []string{"stagehand", "--config", "/path/to/project/stagehand.yaml", "status"})
//
// Returns an error if command execution fails or if project detection
// encounters issues.
func Run(ctx context.Context, version Version, args []string) error {
	cli.VersionPrinter = func(cmd *cli.Command) {
		fmt.Fprintln(cmd.Writer, "Version:", version.Version)
		fmt.Fprintln(cmd.Writer, "Commit:", version.Commit)
		fmt.Fprintln(cmd.Writer, "Date:", version.Timestamp)
	}

	app := &cli.Command{
		Name:  "stagehand",
		Usage: "Phased expand/contract schema migrations for PostgreSQL",
		Description: `stagehand manages PostgreSQL schema changes as numbered revisions whose
changes split into pre-deploy and post-deploy phases. Every phase is recorded
individually in an audit ledger, so runs can stop at any phase boundary,
resume after a crash, and revert in mirror order.`,
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "the stagehand config file",
				Sources: cli.EnvVars(consts.EnvConfigFile),
				Value:   consts.ConfigFile,
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			currentProject = nil

			configPath := cmd.String("config")
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				// Not a project yet; init can create one
				return ctx, nil
			} else if err != nil {
				return ctx, err
			}

			cfg, err := config.LoadConfigFile(configPath)
			if err != nil {
				return ctx, err
			}

			currentProject = project.NewWithConfig(filepath.Dir(configPath), cfg)
			return ctx, nil
		},
		Commands: []*cli.Command{
			initCommand(),
			up(version),
			revert(version),
			status(version),
			revision(),
			dev(version),
		},
	}

	return app.Run(ctx, args)
}

func requireProject(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if currentProject == nil {
		return ctx, errors.Errorf("%s not found; run 'stagehand init' first", consts.ConfigFile)
	}

	return ctx, nil
}
