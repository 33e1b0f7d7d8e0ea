package docker

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/utils"
)

type (
	// DockerClient is the part of the Docker API the engine uses. It is
	// satisfied by *client.Client and allows for easy mocking in tests.
	DockerClient interface {
		ContainerStop(context.Context, string, container.StopOptions) error
		ContainerRemove(context.Context, string, container.RemoveOptions) error
		ContainerInspect(context.Context, string) (container.InspectResponse, error)
	}

	// Engine manages containers by name through the Docker daemon, covering
	// the part of the dev-server lifecycle testcontainers does not: finding
	// and removing a container that an earlier process started.
	Engine struct {
		client DockerClient
	}

	// ContainerInfo describes one container.
	ContainerInfo struct {
		Name  string
		Image string
		State string
	}
)

// NewEngine creates an Engine on top of a connected Docker client.
//
// Example:
//
//	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer cli.Close()
//
//	engine := docker.NewEngine(cli)
func NewEngine(cl DockerClient) *Engine {
	return &Engine{
		client: cl,
	}
}

// Get looks up a container by name or ID.
func (e *Engine) Get(ctx context.Context, nameOrID string) (*ContainerInfo, error) {
	inspect, err := e.client.ContainerInspect(ctx, nameOrID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to inspect container: %s", nameOrID)
	}

	info := &ContainerInfo{
		Name: strings.TrimPrefix(inspect.Name, "/"),
	}
	if inspect.Config != nil {
		info.Image = inspect.Config.Image
	}
	if inspect.State != nil {
		info.State = inspect.State.Status
	}
	return info, nil
}

// Stop stops and removes a container by name or ID.
func (e *Engine) Stop(ctx context.Context, nameOrID string) error {
	if err := e.client.ContainerStop(ctx, nameOrID, container.StopOptions{
		Timeout: utils.Ptr(30),
	}); err != nil {
		return errors.Wrapf(err, "failed to stop container: %s", nameOrID)
	}

	if err := e.client.ContainerRemove(ctx, nameOrID, container.RemoveOptions{
		Force: true,
	}); err != nil {
		return errors.Wrapf(err, "failed to remove container: %s", nameOrID)
	}

	return nil
}

// IsRunning reports whether the container's state is running.
func (c *ContainerInfo) IsRunning() bool {
	return c.State == "running"
}
