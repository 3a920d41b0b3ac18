package docker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Exec runs a command inside the named container and returns its stdout.
// A non-zero exit becomes an error carrying the exit code and whatever the
// command wrote to stderr.
func Exec(ctx context.Context, docker client.APIClient, name string, cmd ...string) ([]byte, error) {
	created, err := docker.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create exec in %s: %w", name, err)
	}

	stream, err := docker.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("attach exec in %s: %w", name, err)
	}

	var stdout, stderr bytes.Buffer
	_, copyErr := stdcopy.StdCopy(&stdout, &stderr, stream.Reader)
	stream.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("read exec output from %s: %w", name, copyErr)
	}

	state, err := docker.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("inspect exec in %s: %w", name, err)
	}
	if state.ExitCode != 0 {
		detail := string(bytes.TrimSpace(stderr.Bytes()))
		if detail == "" {
			detail = "no output on stderr"
		}
		return nil, fmt.Errorf("exec %v in %s: exit code %d: %s", cmd, name, state.ExitCode, detail)
	}
	return stdout.Bytes(), nil
}
