package docker

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// CopyFileFrom streams a single file out of a container into dst. The
// engine wraps copied paths in a tar stream; the entry matching the
// requested file name is extracted, everything else is skipped.
func CopyFileFrom(ctx context.Context, docker client.APIClient, name, srcPath string, dst io.Writer) (int64, error) {
	rc, _, err := docker.CopyFromContainer(ctx, name, srcPath)
	if err != nil {
		return 0, fmt.Errorf("copy %s from container: %w", srcPath, err)
	}
	defer rc.Close()

	base := path.Base(srcPath)
	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read copy stream for %s: %w", srcPath, err)
		}
		if hdr.Typeflag != tar.TypeReg || path.Base(hdr.Name) != base {
			continue
		}
		n, err := io.Copy(dst, tr)
		if err != nil {
			return n, fmt.Errorf("stream %s: %w", srcPath, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s missing from copy stream", srcPath)
}

// CopyFileTo streams src into the container as dstDir/fileName. The tar
// header needs the exact size up front, so callers stat local files first.
func CopyFileTo(ctx context.Context, docker client.APIClient, name, dstDir, fileName string, src io.Reader, size int64) error {
	pr, pw := io.Pipe()
	go func() {
		tw := tar.NewWriter(pw)
		hdr := &tar.Header{Name: fileName, Mode: 0o644, Size: size}
		if err := tw.WriteHeader(hdr); err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(tw, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(tw.Close())
	}()

	if err := docker.CopyToContainer(ctx, name, dstDir, pr, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("copy %s into container: %w", fileName, err)
	}
	return nil
}
