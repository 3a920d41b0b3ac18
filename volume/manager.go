// Package volume manages the named data volumes behind database
// containers. A volume's name is a pure function of its environment, so
// repeated starts always land on the same data.
package volume

import (
	"context"
	"fmt"
	"log/slog"

	"graphdock"

	"github.com/containerd/errdefs"
	dockervolume "github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
)

// Manager creates and removes environment data volumes.
type Manager struct {
	docker client.APIClient
}

func NewManager(docker client.APIClient) *Manager {
	return &Manager{docker: docker}
}

// Ensure returns the name of the environment's data volume, creating it
// with the identity labels when absent. An existing volume is reused as
// is, whatever its labels.
func (m *Manager) Ensure(ctx context.Context, env graphdock.Environment) (string, error) {
	name := env.VolumeName()

	_, err := m.docker.VolumeInspect(ctx, name)
	if err == nil {
		return name, nil
	}
	if !errdefs.IsNotFound(err) {
		return "", fmt.Errorf("inspect volume %s: %w", name, err)
	}

	slog.With("component", "volume", "environment", env.String()).Info("Creating data volume.", "volume", name)
	if _, err := m.docker.VolumeCreate(ctx, dockervolume.CreateOptions{
		Name:   name,
		Labels: env.Labels(),
	}); err != nil {
		return "", fmt.Errorf("create volume %s: %w", name, err)
	}
	return name, nil
}

// Remove deletes the environment's data volume. Only the destructive
// cleanup path calls this; a missing volume is a no-op.
func (m *Manager) Remove(ctx context.Context, env graphdock.Environment) error {
	name := env.VolumeName()
	if err := m.docker.VolumeRemove(ctx, name, false); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove volume %s: %w", name, err)
	}
	return nil
}
