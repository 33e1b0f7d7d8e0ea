package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/client"
	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/consts"
	"github.com/stagehand/stagehand/pkg/docker"
	"github.com/stagehand/stagehand/pkg/executor"
	"github.com/stagehand/stagehand/pkg/postgres"
	"github.com/urfave/cli/v3"
)

const devContainerName = "stagehand-dev"

// dev creates the dev command group for managing a local PostgreSQL
// development server.
//
// Example usage:
//
//	# Start a disposable server with every revision applied
//	stagehand dev up
//
//	# Stop and remove it
//	stagehand dev down
func dev(version Version) *cli.Command {
	return &cli.Command{
		Name:   "dev",
		Usage:  "Manage a local PostgreSQL development server",
		Before: requireProject,
		Commands: []*cli.Command{
			devUp(version),
			devDown(),
		},
	}
}

func devUp(version Version) *cli.Command {
	return &cli.Command{
		Name:  "up",
		Usage: "Start a PostgreSQL development server and apply all revisions",
		Description: `Start a disposable PostgreSQL container, install the control schema, and
run every revision forward. The container keeps running after the command
exits so applications can connect to it.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runDevUp(ctx, version)
		},
	}
}

func devDown() *cli.Command {
	return &cli.Command{
		Name:   "down",
		Usage:  "Stop and remove the PostgreSQL development server",
		Action: runDevDown,
	}
}

func runDevUp(ctx context.Context, version Version) error {
	dockerClient, err := newDockerClient()
	if err != nil {
		return err
	}

	if isDevContainerRunning(ctx, dockerClient) {
		fmt.Println("PostgreSQL development server is already running")
		fmt.Println("Use 'stagehand dev down' to stop it first")
		return nil
	}

	container, err := startPostgresContainer(ctx)
	if err != nil {
		return err
	}
	// No container.Stop here: the server outlives the command.

	url, err := container.ConnectionString(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get container connection string")
	}

	pg, err := postgres.Connect(ctx, url)
	if err != nil {
		return errors.Wrap(err, "failed to connect to PostgreSQL")
	}
	defer pg.Close()

	fmt.Printf("PostgreSQL server started: %s\n", url)

	if err := setupDevDatabase(ctx, pg, version); err != nil {
		return err
	}

	printConnectionDetails(url)
	return nil
}

func runDevDown(ctx context.Context, cmd *cli.Command) error {
	dockerClient, err := newDockerClient()
	if err != nil {
		return err
	}

	// Remove the container in any state, not just running; a stopped one
	// still holds the name.
	if _, ok := findDevContainer(ctx, dockerClient); !ok {
		fmt.Println("No PostgreSQL development server is currently running")
		return nil
	}

	if err := stopDevContainer(ctx, dockerClient); err != nil {
		fmt.Printf("Warning: failed to stop container: %v\n", err)
		fmt.Printf("You may need to remove it manually with: docker rm -f %s\n", devContainerName)
		return nil
	}

	fmt.Println("PostgreSQL development server stopped")
	return nil
}

func startPostgresContainer(ctx context.Context) (*docker.Container, error) {
	fmt.Println("Starting PostgreSQL container...")

	container := docker.NewWithOptions(docker.Options{
		Name: devContainerName,
	})

	if err := container.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to start PostgreSQL container")
	}
	return container, nil
}

// setupDevDatabase installs the control schema when missing and runs every
// revision forward.
func setupDevDatabase(ctx context.Context, pg *postgres.Client, version Version) error {
	installed, err := pg.IsInstalled(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check for control schema")
	}

	if !installed {
		fmt.Println("Installing control schema...")
		if err := pg.CreateControlSchema(ctx); err != nil {
			return errors.Wrap(err, "failed to install control schema")
		}

		incantation, err := currentProject.IncantationSQL()
		if err != nil {
			return err
		}
		if err := pg.ApplyIncantation(ctx, incantation); err != nil {
			return err
		}
	}

	revisions, err := currentProject.RevisionList()
	if err != nil {
		return err
	}

	if revisions.Len() == 0 {
		fmt.Println("No revisions found")
		return nil
	}

	fmt.Printf("Applying %d revision(s)...\n", revisions.Len())

	exec, err := newExecutor(pg, version)
	if err != nil {
		return err
	}

	result, err := exec.Up(ctx, revisions, executor.UpOptions{})
	if err != nil {
		return err
	}

	fmt.Printf("Applied %d phase(s), skipped %d\n", len(result.Applied), result.Skipped)
	fmt.Println("All revisions applied successfully!")
	return nil
}

func printConnectionDetails(url string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("PostgreSQL Development Server Started")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("URL: %s\n", url)
	fmt.Printf("\nexport %s=%s\n", consts.EnvDatabaseURL, url)
	fmt.Println("\nUse 'stagehand dev down' to stop the server")
	fmt.Println(strings.Repeat("=", 60))
}

// newDockerClient opens an API client from the environment, the same way
// testcontainers resolves the daemon.
func newDockerClient() (*client.Client, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Docker client")
	}
	return dockerClient, nil
}

func isDevContainerRunning(ctx context.Context, dockerClient docker.DockerClient) bool {
	info, ok := findDevContainer(ctx, dockerClient)
	return ok && info.IsRunning()
}

// findDevContainer looks up the dev container in any state.
func findDevContainer(ctx context.Context, dockerClient docker.DockerClient) (*docker.ContainerInfo, bool) {
	info, err := docker.NewEngine(dockerClient).Get(ctx, devContainerName)
	if err != nil {
		return nil, false
	}
	return info, true
}

func stopDevContainer(ctx context.Context, dockerClient docker.DockerClient) error {
	if err := docker.NewEngine(dockerClient).Stop(ctx, devContainerName); err != nil {
		return errors.Wrapf(err, "failed to stop %s container", devContainerName)
	}
	return nil
}
