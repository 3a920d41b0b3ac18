// Package cmdutil builds the object graph shared by graphdock commands.
package cmdutil

import (
	"fmt"
	"time"

	"graphdock"
	"graphdock/config"
	"graphdock/infra/docker"
	"graphdock/lifecycle"
	"graphdock/ports"
	"graphdock/snapshot"
	"graphdock/volume"
)

// App bundles the configured managers a command needs. Construct with
// Setup, release with Close.
type App struct {
	Config    *config.Config
	Ports     *ports.Allocator
	Volumes   *volume.Manager
	Lifecycle *lifecycle.Manager
	Snapshots *snapshot.Manager
	Catalog   *snapshot.Catalog
}

// Setup loads the configuration, connects to the container runtime and
// wires the managers together.
func Setup() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	dockerClient, err := docker.NewClient()
	if err != nil {
		return nil, fmt.Errorf("connect to container runtime: %w", err)
	}

	allocator := ports.New(cfg.PortsFile(), cfg.BoltPort, cfg.HTTPPort)
	volumes := volume.NewManager(dockerClient)
	manager := lifecycle.NewManager(dockerClient, allocator, volumes,
		lifecycle.WithImage(cfg.Image),
		lifecycle.WithHealthTimeout(time.Duration(cfg.HealthTimeout)),
		lifecycle.WithHealthInterval(time.Duration(cfg.HealthInterval)),
	)
	catalog, err := snapshot.OpenCatalog(cfg.CatalogFile())
	if err != nil {
		return nil, err
	}
	snapshots := snapshot.NewManager(dockerClient, snapshot.WithCatalog(catalog))

	return &App{
		Config:    cfg,
		Ports:     allocator,
		Volumes:   volumes,
		Lifecycle: manager,
		Snapshots: snapshots,
		Catalog:   catalog,
	}, nil
}

// Close releases everything Setup opened.
func (a *App) Close() error {
	return a.Catalog.Close()
}

// EnvironmentArg resolves the optional positional environment argument,
// falling back to the default environment.
func EnvironmentArg(args []string) (graphdock.Environment, error) {
	env := graphdock.DefaultEnvironment
	if len(args) > 0 {
		env = graphdock.Environment(args[0])
	}
	if err := env.Validate(); err != nil {
		return "", err
	}
	return env, nil
}
