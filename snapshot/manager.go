// Package snapshot exports and imports instance data as portable archives.
// An archive couples the engine's native dump with a metadata document, so
// it can be validated against a target before anything destructive happens.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"graphdock"
	"graphdock/graph"
	"graphdock/infra/docker"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/client"
)

// Scratch locations inside the container. Both live on the container's
// writable layer, not the data volume, so they vanish with the container.
const (
	exportScratchDir = "/tmp/graphdock-export"
	importScratchDir = "/tmp/graphdock-import"
)

// Data directories the load sequence wipes before restoring a dump.
const (
	dataDatabaseDir     = "/data/databases/neo4j"
	dataTransactionsDir = "/data/transactions/neo4j"
)

// Source is the view of a running instance the snapshot manager needs.
// *lifecycle.Handle implements it.
type Source interface {
	ContainerID() string
	Environment() graphdock.Environment
	Stats(ctx context.Context) (graph.Stats, error)
	ServerVersion(ctx context.Context) (string, error)
	StopDatabase(ctx context.Context) error
	StartDatabase(ctx context.Context) error
}

// Options control import behavior.
type Options struct {
	// Validate gates the import on archive/target compatibility.
	Validate bool
	// Force overrides a failed validation.
	Force bool
	// Backup exports the target's current data before overwriting it.
	Backup bool
}

// Manager moves data between running instances and archive files on the
// host.
type Manager struct {
	docker  client.APIClient
	catalog *Catalog
}

// Option adjusts manager construction.
type Option func(*Manager)

// WithCatalog records every produced archive in the given catalog.
func WithCatalog(c *Catalog) Option {
	return func(m *Manager) { m.catalog = c }
}

// NewManager returns a snapshot manager over the given runtime client.
func NewManager(dockerClient client.APIClient, opts ...Option) *Manager {
	m := &Manager{docker: dockerClient}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Export dumps the source's database and packs it with metadata into a
// compressed archive at destPath. The database goes offline for the
// duration of the dump and is brought back regardless of the outcome.
// Export is not cancellable once the dump has started.
func (m *Manager) Export(ctx context.Context, source Source, destPath string) (Metadata, error) {
	env := source.Environment()
	log := slog.With("component", "snapshot", "environment", env.String())

	if err := m.requireRunning(ctx, source.ContainerID(), env); err != nil {
		return Metadata{}, err
	}

	stats, err := source.Stats(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("collect stats: %w", err)
	}
	version, err := source.ServerVersion(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("read engine version: %w", err)
	}
	size, err := m.dataSize(ctx, source.ContainerID())
	if err != nil {
		return Metadata{}, err
	}

	log.Info("Exporting snapshot.", "destination", destPath, "nodes", stats.Nodes, "relationships", stats.Relationships)

	if err := source.StopDatabase(ctx); err != nil {
		return Metadata{}, fmt.Errorf("stop database for dump: %w", err)
	}
	dumpErr := m.dumpInContainer(ctx, source.ContainerID())
	if err := source.StartDatabase(ctx); err != nil {
		if dumpErr == nil {
			return Metadata{}, fmt.Errorf("restart database after dump: %w", err)
		}
		log.Warn("Restarting database after failed dump also failed.", "error", err)
	}
	if dumpErr != nil {
		return Metadata{}, dumpErr
	}

	scratch, err := os.MkdirTemp("", "graphdock-export-*")
	if err != nil {
		return Metadata{}, fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	dumpPath := filepath.Join(scratch, dumpFile)
	if err := m.copyDumpOut(ctx, source.ContainerID(), dumpPath); err != nil {
		return Metadata{}, err
	}
	_, _ = docker.Exec(ctx, m.docker, source.ContainerID(), "rm", "-rf", exportScratchDir)

	meta := Metadata{
		FormatVersion:     FormatVersion,
		EngineVersion:     version,
		Environment:       env.String(),
		ExportedAt:        time.Now().UTC(),
		NodeCount:         stats.Nodes,
		RelationshipCount: stats.Relationships,
		DataSizeBytes:     size,
	}
	if err := packArchive(destPath, meta, dumpPath); err != nil {
		return Metadata{}, err
	}

	if m.catalog != nil {
		if err := m.catalog.Record(destPath, meta); err != nil {
			log.Warn("Recording snapshot in catalog failed.", "error", err)
		}
	}

	log.Info("Snapshot exported.", "destination", destPath, "bytes", size)
	return meta, nil
}

// Import replaces the target's database with the contents of the archive
// at archivePath. The compatibility gate runs before anything destructive;
// past the database stop there is no rollback, and every step names itself
// in its error so a partial import is diagnosable. Import is not
// cancellable once the load has started.
func (m *Manager) Import(ctx context.Context, target Source, archivePath string, opts Options) error {
	env := target.Environment()
	log := slog.With("component", "snapshot", "environment", env.String())

	if err := m.requireRunning(ctx, target.ContainerID(), env); err != nil {
		return err
	}

	scratch, err := os.MkdirTemp("", "graphdock-import-*")
	if err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	meta, err := unpackArchive(archivePath, scratch)
	if err != nil {
		return err
	}

	if opts.Validate && !opts.Force {
		targetVersion, err := target.ServerVersion(ctx)
		if err != nil {
			return fmt.Errorf("read target engine version: %w", err)
		}
		if err := meta.Validate(targetVersion); err != nil {
			return err
		}
	}

	if opts.Backup {
		backupPath := backupPath(archivePath, env)
		if _, err := m.Export(ctx, target, backupPath); err != nil {
			if errors.Is(err, graphdock.ErrResourceBusy) || errors.Is(err, graphdock.ErrUnhealthy) {
				return fmt.Errorf("pre-import backup: %w", err)
			}
			log.Warn("Pre-import backup failed, continuing.", "destination", backupPath, "error", err)
		} else {
			log.Info("Wrote pre-import backup.", "destination", backupPath)
		}
	}

	log.Info("Importing snapshot.", "archive", archivePath, "nodes", meta.NodeCount, "relationships", meta.RelationshipCount)

	if err := target.StopDatabase(ctx); err != nil {
		return fmt.Errorf("stop database: %w", err)
	}
	// Destructive from here on. No rollback: a failure leaves the database
	// offline with the error naming the exact step that broke.
	id := target.ContainerID()
	if _, err := docker.Exec(ctx, m.docker, id, "rm", "-rf", dataDatabaseDir, dataTransactionsDir); err != nil {
		return fmt.Errorf("remove data directories: %w", err)
	}
	if _, err := docker.Exec(ctx, m.docker, id, "mkdir", "-p", importScratchDir); err != nil {
		return fmt.Errorf("create load scratch directory: %w", err)
	}
	if err := m.copyDumpIn(ctx, id, filepath.Join(scratch, dumpFile)); err != nil {
		return err
	}
	if _, err := docker.Exec(ctx, m.docker, id,
		"neo4j-admin", "database", "load", graph.DefaultDatabase,
		"--from-path="+importScratchDir, "--overwrite-destination=true"); err != nil {
		return fmt.Errorf("load database: %w", err)
	}
	_, _ = docker.Exec(ctx, m.docker, id, "rm", "-rf", importScratchDir)
	if err := target.StartDatabase(ctx); err != nil {
		return fmt.Errorf("restart database: %w", err)
	}

	log.Info("Snapshot imported.", "archive", archivePath)
	return nil
}

func (m *Manager) requireRunning(ctx context.Context, containerID string, env graphdock.Environment) error {
	info, err := m.docker.ContainerInspect(ctx, containerID)
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("environment %s is not running: %w", env, graphdock.ErrResourceBusy)
	}
	if err != nil {
		return fmt.Errorf("inspect container for %s: %w", env, err)
	}
	if info.State == nil || !info.State.Running {
		return fmt.Errorf("environment %s is not running: %w", env, graphdock.ErrResourceBusy)
	}
	return nil
}

func (m *Manager) dataSize(ctx context.Context, containerID string) (int64, error) {
	out, err := docker.Exec(ctx, m.docker, containerID, "du", "-sb", "/data/databases")
	if err != nil {
		return 0, fmt.Errorf("measure data size: %w", err)
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0, fmt.Errorf("measure data size: empty du output")
	}
	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("measure data size: parse %q: %w", fields[0], err)
	}
	return size, nil
}

func (m *Manager) dumpInContainer(ctx context.Context, containerID string) error {
	if _, err := docker.Exec(ctx, m.docker, containerID, "rm", "-rf", exportScratchDir); err != nil {
		return fmt.Errorf("clear dump scratch directory: %w", err)
	}
	if _, err := docker.Exec(ctx, m.docker, containerID, "mkdir", "-p", exportScratchDir); err != nil {
		return fmt.Errorf("create dump scratch directory: %w", err)
	}
	if _, err := docker.Exec(ctx, m.docker, containerID,
		"neo4j-admin", "database", "dump", graph.DefaultDatabase,
		"--to-path="+exportScratchDir); err != nil {
		return fmt.Errorf("dump database: %w", err)
	}
	return nil
}

func (m *Manager) copyDumpOut(ctx context.Context, containerID, dumpPath string) (err error) {
	out, err := os.Create(dumpPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", dumpPath, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", dumpPath, cerr)
		}
	}()
	src := exportScratchDir + "/" + dumpFile
	if _, err := docker.CopyFileFrom(ctx, m.docker, containerID, src, out); err != nil {
		return streamFailed(fmt.Errorf("copy dump out of container: %w", err))
	}
	return nil
}

func (m *Manager) copyDumpIn(ctx context.Context, containerID, dumpPath string) error {
	dump, err := os.Open(dumpPath)
	if err != nil {
		return fmt.Errorf("open unpacked dump: %w", err)
	}
	defer dump.Close()
	st, err := dump.Stat()
	if err != nil {
		return fmt.Errorf("stat unpacked dump: %w", err)
	}
	if err := docker.CopyFileTo(ctx, m.docker, containerID, importScratchDir, dumpFile, dump, st.Size()); err != nil {
		return streamFailed(fmt.Errorf("copy dump into container: %w", err))
	}
	return nil
}

// backupPath places the pre-import backup next to the archive being
// imported, stamped so repeated imports never clobber an earlier backup.
func backupPath(archivePath string, env graphdock.Environment) string {
	stamp := time.Now().UTC().Format("20060102-150405")
	name := fmt.Sprintf("%s-pre-import-%s.tar.gz", env, stamp)
	return filepath.Join(filepath.Dir(archivePath), name)
}
