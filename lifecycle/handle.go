package lifecycle

import (
	"context"
	"fmt"
	"time"

	"graphdock"
	"graphdock/graph"
)

// Handle is a live connection to a verified running instance. It carries
// the container identity and an authenticated database client; closing it
// drops the connection and nothing else.
type Handle struct {
	env         graphdock.Environment
	containerID string
	volume      string
	boltPort    int
	httpPort    int
	createdAt   time.Time
	client      *graph.Client
}

// Environment returns the logical identity the handle belongs to.
func (h *Handle) Environment() graphdock.Environment { return h.env }

// ContainerID returns the backing container's ID.
func (h *Handle) ContainerID() string { return h.containerID }

// Volume returns the name of the mounted data volume.
func (h *Handle) Volume() string { return h.volume }

// BoltPort returns the host port mapped to the bolt endpoint.
func (h *Handle) BoltPort() int { return h.boltPort }

// HTTPPort returns the host port mapped to the browser endpoint.
func (h *Handle) HTTPPort() int { return h.httpPort }

// BoltURI returns the bolt endpoint on the host.
func (h *Handle) BoltURI() string { return boltURI(h.boltPort) }

// HTTPURI returns the browser endpoint on the host.
func (h *Handle) HTTPURI() string { return fmt.Sprintf("http://127.0.0.1:%d", h.httpPort) }

// CreatedAt returns when the backing container was created.
func (h *Handle) CreatedAt() time.Time { return h.createdAt }

// Client returns the authenticated database client held by the handle.
func (h *Handle) Client() *graph.Client { return h.client }

// Stats reports node and relationship counts over the handle's client.
func (h *Handle) Stats(ctx context.Context) (graph.Stats, error) {
	return h.client.Stats(ctx)
}

// ServerVersion reports the engine version over the handle's client.
func (h *Handle) ServerVersion(ctx context.Context) (string, error) {
	return h.client.ServerVersion(ctx)
}

// StopDatabase takes the instance's database offline while the container
// keeps running.
func (h *Handle) StopDatabase(ctx context.Context) error {
	return h.client.StopDatabase(ctx, graph.DefaultDatabase)
}

// StartDatabase brings the instance's database back online.
func (h *Handle) StartDatabase(ctx context.Context) error {
	return h.client.StartDatabase(ctx, graph.DefaultDatabase)
}

// Close disconnects the database client. It never touches the container.
func (h *Handle) Close(ctx context.Context) error {
	if h.client == nil {
		return nil
	}
	return h.client.Close(ctx)
}

func boltURI(port int) string {
	return fmt.Sprintf("bolt://127.0.0.1:%d", port)
}
