package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	// DefaultDatabase is the database created in dev containers.
	DefaultDatabase = "stagehand_dev"

	defaultUsername = "postgres"
	defaultPassword = "postgres"
)

type (
	// Options configures a PostgreSQL dev container.
	Options struct {
		// Version is the PostgreSQL version to run (default: 16).
		Version string

		// Database is the database to create (default: stagehand_dev).
		Database string

		// Name, when set, names the container and reuses a running
		// container with that name instead of starting a fresh one.
		Name string
	}

	// Container manages a PostgreSQL container for dev and test runs.
	Container struct {
		options   Options
		container *postgres.PostgresContainer
	}
)

// New creates a container with default options.
func New() *Container {
	return &Container{}
}

// NewWithOptions creates a container with custom options.
//
// Example:
//
//	container := docker.NewWithOptions(docker.Options{
//		Version: "16",
//		Name:    "stagehand-dev",
//	})
//	if err := container.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer container.Stop(ctx)
func NewWithOptions(opts Options) *Container {
	return &Container{options: opts}
}

// Start starts the PostgreSQL container and waits for it to accept
// connections.
func (c *Container) Start(ctx context.Context) error {
	if c.container != nil {
		return errors.New("container is already running")
	}

	version := c.options.Version
	if version == "" {
		version = "16"
	}
	database := c.options.Database
	if database == "" {
		database = DefaultDatabase
	}

	customizers := []testcontainers.ContainerCustomizer{
		postgres.WithDatabase(database),
		postgres.WithUsername(defaultUsername),
		postgres.WithPassword(defaultPassword),
		postgres.BasicWaitStrategies(),
		testcontainers.WithStartupTimeout(5 * time.Minute),
	}

	if c.options.Name != "" {
		customizers = append(customizers, testcontainers.WithReuseByName(c.options.Name))
	}

	container, err := postgres.Run(ctx,
		fmt.Sprintf("postgres:%s-alpine", version),
		customizers...,
	)
	if err != nil {
		return errors.Wrap(err, "failed to start PostgreSQL container")
	}

	c.container = container
	return nil
}

// Stop terminates and removes the container.
func (c *Container) Stop(ctx context.Context) error {
	if c.container == nil {
		return nil
	}

	err := c.container.Terminate(ctx)
	c.container = nil

	if err != nil {
		return errors.Wrap(err, "failed to stop PostgreSQL container")
	}
	return nil
}

// ConnectionString returns a URL for connecting to the running container.
func (c *Container) ConnectionString(ctx context.Context) (string, error) {
	if c.container == nil {
		return "", errors.New("container is not running")
	}

	url, err := c.container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return "", errors.Wrap(err, "failed to get connection string")
	}
	return url, nil
}

// IsRunning reports whether the container has been started.
func (c *Container) IsRunning() bool {
	return c.container != nil
}
