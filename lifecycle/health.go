package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"graphdock"
	"graphdock/infra/docker"
)

// AuthProber verifies an instance accepts connections and the expected
// credential. The production implementation is graph.Prober; tests
// substitute fakes so no driver is involved.
type AuthProber interface {
	Probe(ctx context.Context, uri, user, password string) error
}

// waitHealthy blocks until the instance answers an authenticated probe,
// the container dies, or the bounded wait elapses. A credential rejection
// aborts immediately; the instance is never recreated to recover.
func (m *Manager) waitHealthy(ctx context.Context, containerID string, boltPort int, password string) error {
	log := slog.With("component", "lifecycle", "container", shortID(containerID))
	uri := boltURI(boltPort)

	deadline := time.NewTimer(m.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			msg := fmt.Sprintf("instance not ready after %s", m.timeout)
			if lastErr != nil {
				msg += ": " + lastErr.Error()
			}
			if logs := docker.TailLogs(ctx, m.docker, containerID, 10); logs != "" {
				msg += "\n" + logs
			}
			log.Warn("Readiness timeout.", "detail", msg)
			return fmt.Errorf("%s: %w", msg, graphdock.ErrTimeout)
		case <-ticker.C:
			info, err := m.docker.ContainerInspect(ctx, containerID)
			if err != nil {
				lastErr = err
				continue
			}
			if info.State != nil && !info.State.Running {
				msg := fmt.Sprintf("container exited with status %d", info.State.ExitCode)
				if logs := docker.TailLogs(ctx, m.docker, containerID, 20); logs != "" {
					msg += "\n" + logs
				}
				log.Error("Container exited before readiness.", "exit_code", info.State.ExitCode)
				return fmt.Errorf("%s: %w", msg, graphdock.ErrUnhealthy)
			}

			if err := m.prober.Probe(ctx, uri, graphdock.Username, password); err != nil {
				if errors.Is(err, graphdock.ErrAuthMismatch) {
					log.Error("Instance rejected the expected credential.", "uri", uri)
					return fmt.Errorf("verify %s: %w", uri, err)
				}
				lastErr = err
				continue
			}
			log.Debug("Readiness probe succeeded.", "uri", uri)
			return nil
		}
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
