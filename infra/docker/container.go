// Package docker provides shared helpers for driving the Docker Engine
// API: container create/start with image pull retry, label-based
// discovery, in-container exec, and file transfer over tar streams.
//
// Everything takes client.APIClient so tests can substitute fakes.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// NewClient builds an engine client from the environment (DOCKER_HOST and
// friends) with API version negotiation.
func NewClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return cli, nil
}

// CreateAndStart creates a container and starts it. If the image is not
// found locally, it pulls the image and retries the create.
func CreateAndStart(
	ctx context.Context,
	docker client.APIClient,
	name, img string,
	containerCfg *container.Config,
	hostCfg *container.HostConfig,
	networkCfg *network.NetworkingConfig,
) (string, error) {
	created, err := docker.ContainerCreate(ctx, containerCfg, hostCfg, networkCfg, (*ocispec.Platform)(nil), name)
	if errdefs.IsNotFound(err) {
		if err = PullImage(ctx, docker, img); err != nil {
			return "", err
		}
		created, err = docker.ContainerCreate(ctx, containerCfg, hostCfg, networkCfg, nil, name)
		if err != nil {
			return "", fmt.Errorf("create container after pull: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	if err := docker.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}
	return created.ID, nil
}

// PullImage pulls an image and waits for the pull to finish.
func PullImage(ctx context.Context, docker client.APIClient, img string) error {
	slog.Info("Pulling image.", "image", img)

	progress, err := docker.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer progress.Close()

	// The pull completes only once the progress stream is drained.
	if _, err := io.Copy(io.Discard, progress); err != nil {
		return fmt.Errorf("pull image %s: read progress: %w", img, err)
	}
	return nil
}

// StopAndRemove stops and removes a container. Both steps treat NotFound
// as success, so the call is idempotent.
func StopAndRemove(ctx context.Context, docker client.APIClient, name string) error {
	err := docker.ContainerStop(ctx, name, container.StopOptions{})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("stop container %s: %w", name, err)
	}
	err = docker.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	return nil
}

// FindByLabel lists containers (running or not) carrying every given label.
func FindByLabel(ctx context.Context, docker client.APIClient, labels map[string]string) ([]container.Summary, error) {
	args := filters.NewArgs()
	for key, value := range labels {
		args.Add("label", key+"="+value)
	}
	out, err := docker.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	return out, nil
}
