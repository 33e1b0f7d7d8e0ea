package docker_test

import (
	"context"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/cmd/testutil"
	"github.com/stagehand/stagehand/pkg/docker"
	"github.com/stretchr/testify/require"
)

func TestEngineGet(t *testing.T) {
	tests := []struct {
		description string
		state       string
		wantRunning bool
	}{
		{
			description: "running container",
			state:       "running",
			wantRunning: true,
		},
		{
			description: "stopped container still resolves",
			state:       "exited",
			wantRunning: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			mock := testutil.NewMockDockerClient()
			mock.ContainerInspectFunc = func(ctx context.Context, containerID string) (container.InspectResponse, error) {
				require.Equal(t, "stagehand-dev", containerID)
				return container.InspectResponse{
					ContainerJSONBase: &container.ContainerJSONBase{
						Name:  "/stagehand-dev",
						State: &container.State{Status: tt.state},
					},
					Config: &container.Config{Image: "postgres:16-alpine"},
				}, nil
			}

			engine := docker.NewEngine(mock)

			info, err := engine.Get(context.Background(), "stagehand-dev")
			require.NoError(t, err)
			require.Equal(t, "stagehand-dev", info.Name)
			require.Equal(t, "postgres:16-alpine", info.Image)
			require.Equal(t, tt.wantRunning, info.IsRunning())
		})
	}
}

func TestEngineGet_NotFound(t *testing.T) {
	engine := docker.NewEngine(testutil.NewMockDockerClient())

	_, err := engine.Get(context.Background(), "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to inspect container: missing")
}

func TestEngineStop(t *testing.T) {
	var stopped, removed []string

	mock := testutil.NewMockDockerClient()
	mock.ContainerStopFunc = func(ctx context.Context, containerID string, options container.StopOptions) error {
		require.NotNil(t, options.Timeout)
		require.Equal(t, 30, *options.Timeout)
		stopped = append(stopped, containerID)
		return nil
	}
	mock.ContainerRemoveFunc = func(ctx context.Context, containerID string, options container.RemoveOptions) error {
		require.True(t, options.Force)
		removed = append(removed, containerID)
		return nil
	}

	engine := docker.NewEngine(mock)

	require.NoError(t, engine.Stop(context.Background(), "stagehand-dev"))
	require.Equal(t, []string{"stagehand-dev"}, stopped)
	require.Equal(t, []string{"stagehand-dev"}, removed)
}

func TestEngineStop_Errors(t *testing.T) {
	t.Run("stop failure", func(t *testing.T) {
		var removed bool

		mock := testutil.NewMockDockerClient()
		mock.ContainerStopFunc = func(ctx context.Context, containerID string, options container.StopOptions) error {
			return errors.New("daemon unreachable")
		}
		mock.ContainerRemoveFunc = func(ctx context.Context, containerID string, options container.RemoveOptions) error {
			removed = true
			return nil
		}

		engine := docker.NewEngine(mock)

		err := engine.Stop(context.Background(), "stagehand-dev")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to stop container: stagehand-dev")
		require.False(t, removed, "remove should not run after a failed stop")
	})

	t.Run("remove failure", func(t *testing.T) {
		mock := testutil.NewMockDockerClient()
		mock.ContainerRemoveFunc = func(ctx context.Context, containerID string, options container.RemoveOptions) error {
			return errors.New("container busy")
		}

		engine := docker.NewEngine(mock)

		err := engine.Stop(context.Background(), "stagehand-dev")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to remove container: stagehand-dev")
	})
}
