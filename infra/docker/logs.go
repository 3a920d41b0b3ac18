package docker

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// TailLogs returns the last lines of a container's output for error
// reporting. Best effort: any failure yields an empty string.
func TailLogs(ctx context.Context, docker client.APIClient, name string, lines int) string {
	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true, Tail: strconv.Itoa(lines)}
	rc, err := docker.ContainerLogs(ctx, name, opts)
	if err != nil {
		return ""
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	return string(bytes.TrimSpace(stripStreamFraming(data)))
}

// stripStreamFraming removes the engine's 8-byte multiplexing header from
// each chunk of a log stream.
func stripStreamFraming(data []byte) []byte {
	var clean []byte
	for len(data) >= 8 {
		size := int(data[4])<<24 | int(data[5])<<16 | int(data[6])<<8 | int(data[7])
		data = data[8:]
		if size > len(data) {
			size = len(data)
		}
		clean = append(clean, data[:size]...)
		data = data[size:]
	}
	return clean
}
