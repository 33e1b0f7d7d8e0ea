package testutil

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/docker"
	"github.com/stretchr/testify/require"
)

// ErrContainerNotFound is the default error for mock container lookups.
var ErrContainerNotFound = errors.New("container not found")

// SkipIfNoDocker skips the test if Docker is not available.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("Docker not available")
	}

	cmd := exec.CommandContext(t.Context(), "docker", "ps")
	if err := cmd.Run(); err != nil {
		t.Skip("Docker daemon not running")
	}
}

// StartPostgresContainer starts a disposable PostgreSQL container for the
// test and returns it with its connection URL. The container is removed when
// the test finishes.
func StartPostgresContainer(t *testing.T) (*docker.Container, string) {
	t.Helper()

	SkipIfNoDocker(t)

	// Subtest names contain slashes, which Docker rejects in container names.
	name := strings.ReplaceAll(strings.ToLower(t.Name()), "/", "-")
	pg := docker.NewWithOptions(docker.Options{
		Name: "stagehand-test-" + name,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	require.NoError(t, pg.Start(ctx), "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		_ = pg.Stop(context.Background())
	})

	url, err := pg.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get container connection string")

	return pg, url
}

// MockDockerClient implements docker.DockerClient with overridable behavior
// per call.
type MockDockerClient struct {
	ContainerStopFunc    func(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemoveFunc  func(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspectFunc func(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// NewMockDockerClient creates a mock Docker client whose lookups fail with
// ErrContainerNotFound until overridden.
func NewMockDockerClient() *MockDockerClient {
	return &MockDockerClient{}
}

// ContainerStop implements docker.DockerClient.
func (m *MockDockerClient) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	if m.ContainerStopFunc != nil {
		return m.ContainerStopFunc(ctx, containerID, options)
	}
	return nil
}

// ContainerRemove implements docker.DockerClient.
func (m *MockDockerClient) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	if m.ContainerRemoveFunc != nil {
		return m.ContainerRemoveFunc(ctx, containerID, options)
	}
	return nil
}

// ContainerInspect implements docker.DockerClient.
func (m *MockDockerClient) ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error) {
	if m.ContainerInspectFunc != nil {
		return m.ContainerInspectFunc(ctx, containerID)
	}
	return container.InspectResponse{}, ErrContainerNotFound
}
