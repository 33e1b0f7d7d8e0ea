package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/consts"
	"github.com/stagehand/stagehand/pkg/executor"
	"github.com/stagehand/stagehand/pkg/migrator"
	"github.com/stagehand/stagehand/pkg/postgres"
	"github.com/urfave/cli/v3"
)

// urlFlag is the database target shared by every command that talks to
// PostgreSQL. DATABASE_URL satisfies the requirement when the flag is not
// given.
var urlFlag = &cli.StringFlag{
	Name:     "url",
	Aliases:  []string{"u"},
	Usage:    "PostgreSQL connection string",
	Required: true,
	Sources:  cli.EnvVars(consts.EnvDatabaseURL),
	Config: cli.StringConfig{
		TrimSpace: true,
	},
}

// connect opens a pooled client for the command's --url.
func connect(ctx context.Context, cmd *cli.Command) (*postgres.Client, error) {
	client, err := postgres.Connect(ctx, cmd.String("url"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to PostgreSQL")
	}

	return client, nil
}

// newExecutor builds an executor for the current project against the client.
func newExecutor(client *postgres.Client, version Version) (*executor.Executor, error) {
	cfg, err := currentProject.Config()
	if err != nil {
		return nil, err
	}

	return executor.New(executor.Config{
		DB:                         client,
		Version:                    version.Version,
		CrashOnIncompatibleVersion: cfg.CrashOnIncompatibleVersion,
	}), nil
}

// parseTargetFlag parses the command's --to flag. An empty value returns the
// unbounded slice.
func parseTargetFlag(cmd *cli.Command) (migrator.PhaseSlice, error) {
	spec := cmd.String("to")
	if spec == "" {
		return migrator.PhaseSlice{}, nil
	}

	slice, err := migrator.ParseTarget(spec)
	if err != nil {
		return migrator.PhaseSlice{}, errors.Wrapf(err, "invalid --to spec %q", spec)
	}

	return slice, nil
}
