package snapshot

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"graphdock"
	"graphdock/graph"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// fakeSource stands in for a lifecycle handle.
type fakeSource struct {
	id      string
	env     graphdock.Environment
	stats   graph.Stats
	version string

	stopErr  error
	startErr error
	stops    int
	starts   int
}

func (s *fakeSource) ContainerID() string                  { return s.id }
func (s *fakeSource) Environment() graphdock.Environment   { return s.env }
func (s *fakeSource) Stats(context.Context) (graph.Stats, error) {
	return s.stats, nil
}
func (s *fakeSource) ServerVersion(context.Context) (string, error) {
	return s.version, nil
}
func (s *fakeSource) StopDatabase(context.Context) error {
	s.stops++
	return s.stopErr
}
func (s *fakeSource) StartDatabase(context.Context) error {
	s.starts++
	return s.startErr
}

// fakeDocker serves inspect, exec and copy calls for one container.
type fakeDocker struct {
	client.APIClient

	mu         sync.Mutex
	running    bool
	inspectErr error
	execCmds   map[string][]string
	execs      []string
	nextExec   int

	// failCmd makes every exec whose joined command starts with it exit 1.
	failCmd string
	// duSize is served as du output for data size measurement.
	duSize string

	copyFromData []byte
	copyToDir    string
	copyToBody   bytes.Buffer
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{running: true, execCmds: map[string][]string{}, duSize: "2048"}
}

func (f *fakeDocker) ContainerInspect(_ context.Context, id string) (container.InspectResponse, error) {
	if f.inspectErr != nil {
		return container.InspectResponse{}, f.inspectErr
	}
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:    id,
			State: &container.State{Running: f.running},
		},
	}, nil
}

func (f *fakeDocker) ContainerExecCreate(_ context.Context, _ string, cfg container.ExecOptions) (types.IDResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextExec++
	id := fmt.Sprintf("exec-%d", f.nextExec)
	f.execCmds[id] = cfg.Cmd
	f.execs = append(f.execs, strings.Join(cfg.Cmd, " "))
	return types.IDResponse{ID: id}, nil
}

func (f *fakeDocker) ContainerExecAttach(_ context.Context, execID string, _ container.ExecAttachOptions) (types.HijackedResponse, error) {
	f.mu.Lock()
	cmd := f.execCmds[execID]
	f.mu.Unlock()

	var framed bytes.Buffer
	if f.fails(cmd) {
		_, _ = stdcopy.NewStdWriter(&framed, stdcopy.Stderr).Write([]byte("command failed\n"))
	} else if len(cmd) > 0 && cmd[0] == "du" {
		_, _ = stdcopy.NewStdWriter(&framed, stdcopy.Stdout).Write([]byte(f.duSize + "\t/data/databases\n"))
	}
	return types.HijackedResponse{
		Reader: bufio.NewReader(bytes.NewReader(framed.Bytes())),
		Conn:   &nopConn{},
	}, nil
}

func (f *fakeDocker) ContainerExecInspect(_ context.Context, execID string) (container.ExecInspect, error) {
	f.mu.Lock()
	cmd := f.execCmds[execID]
	f.mu.Unlock()
	if f.fails(cmd) {
		return container.ExecInspect{ExitCode: 1}, nil
	}
	return container.ExecInspect{ExitCode: 0}, nil
}

func (f *fakeDocker) fails(cmd []string) bool {
	return f.failCmd != "" && strings.HasPrefix(strings.Join(cmd, " "), f.failCmd)
}

func (f *fakeDocker) CopyFromContainer(_ context.Context, _, srcPath string) (io.ReadCloser, container.PathStat, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: path.Base(srcPath), Mode: 0o644, Size: int64(len(f.copyFromData))}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, container.PathStat{}, err
	}
	if _, err := tw.Write(f.copyFromData); err != nil {
		return nil, container.PathStat{}, err
	}
	if err := tw.Close(); err != nil {
		return nil, container.PathStat{}, err
	}
	return io.NopCloser(&buf), container.PathStat{}, nil
}

func (f *fakeDocker) CopyToContainer(_ context.Context, _, dstPath string, content io.Reader, _ container.CopyToContainerOptions) error {
	f.copyToDir = dstPath
	_, err := io.Copy(&f.copyToBody, content)
	return err
}

// nopConn implements net.Conn for hijacked exec responses.
type nopConn struct{}

func (nopConn) Read([]byte) (int, error)         { return 0, io.EOF }
func (nopConn) Write(b []byte) (int, error)      { return len(b), nil }
func (nopConn) Close() error                     { return nil }
func (nopConn) LocalAddr() net.Addr              { return nil }
func (nopConn) RemoteAddr() net.Addr             { return nil }
func (nopConn) SetDeadline(time.Time) error      { return nil }
func (nopConn) SetReadDeadline(time.Time) error  { return nil }
func (nopConn) SetWriteDeadline(time.Time) error { return nil }

func devSource() *fakeSource {
	return &fakeSource{
		id:      "cid-1",
		env:     graphdock.Environment("development"),
		stats:   graph.Stats{Nodes: 42, Relationships: 7},
		version: "5.26.0",
	}
}

func writeTestArchive(t *testing.T, dir string, meta Metadata, dump []byte) string {
	t.Helper()
	dumpPath := filepath.Join(t.TempDir(), "neo4j.dump")
	if err := os.WriteFile(dumpPath, dump, 0o644); err != nil {
		t.Fatal(err)
	}
	archivePath := filepath.Join(dir, "snapshot.tar.gz")
	if err := packArchive(archivePath, meta, dumpPath); err != nil {
		t.Fatalf("packArchive: %v", err)
	}
	return archivePath
}

func hasExec(f *fakeDocker, want string) bool {
	for _, cmd := range f.execs {
		if cmd == want {
			return true
		}
	}
	return false
}

func TestExport_PacksArchive(t *testing.T) {
	fake := newFakeDocker()
	fake.copyFromData = []byte("dump-bytes")
	fake.duSize = "123456"
	source := devSource()
	m := NewManager(fake)

	destPath := filepath.Join(t.TempDir(), "snaps", "development.tar.gz")
	meta, err := m.Export(context.Background(), source, destPath)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if meta.FormatVersion != FormatVersion {
		t.Errorf("FormatVersion = %q, want %q", meta.FormatVersion, FormatVersion)
	}
	if meta.EngineVersion != "5.26.0" {
		t.Errorf("EngineVersion = %q", meta.EngineVersion)
	}
	if meta.Environment != "development" {
		t.Errorf("Environment = %q", meta.Environment)
	}
	if meta.NodeCount != 42 || meta.RelationshipCount != 7 {
		t.Errorf("counts = %d/%d, want 42/7", meta.NodeCount, meta.RelationshipCount)
	}
	if meta.DataSizeBytes != 123456 {
		t.Errorf("DataSizeBytes = %d, want 123456", meta.DataSizeBytes)
	}
	if source.stops != 1 || source.starts != 1 {
		t.Errorf("database stops/starts = %d/%d, want 1/1", source.stops, source.starts)
	}
	if !hasExec(fake, "neo4j-admin database dump neo4j --to-path=/tmp/graphdock-export") {
		t.Errorf("dump command missing from execs: %v", fake.execs)
	}

	got, err := unpackArchive(destPath, t.TempDir())
	if err != nil {
		t.Fatalf("unpackArchive: %v", err)
	}
	if got.NodeCount != 42 {
		t.Errorf("archived NodeCount = %d, want 42", got.NodeCount)
	}
}

func TestExport_StopsDatabaseOnlyAroundDump(t *testing.T) {
	fake := newFakeDocker()
	fake.copyFromData = []byte("dump-bytes")
	source := devSource()
	m := NewManager(fake)

	if _, err := m.Export(context.Background(), source, filepath.Join(t.TempDir(), "s.tar.gz")); err != nil {
		t.Fatalf("Export: %v", err)
	}
	// Stats and size run before the stop, so du must come before the dump.
	if len(fake.execs) == 0 || !strings.HasPrefix(fake.execs[0], "du ") {
		t.Errorf("first exec = %v, want du measurement", fake.execs)
	}
}

func TestExport_RequiresRunningInstance(t *testing.T) {
	fake := newFakeDocker()
	fake.running = false
	source := devSource()
	m := NewManager(fake)

	_, err := m.Export(context.Background(), source, filepath.Join(t.TempDir(), "s.tar.gz"))
	if !errors.Is(err, graphdock.ErrResourceBusy) {
		t.Fatalf("Export error = %v, want ErrResourceBusy", err)
	}
	if source.stops != 0 {
		t.Errorf("database stopped despite refusal")
	}
}

func TestExport_MissingContainerIsResourceBusy(t *testing.T) {
	fake := newFakeDocker()
	fake.inspectErr = errdefs.ErrNotFound
	source := devSource()
	m := NewManager(fake)

	_, err := m.Export(context.Background(), source, filepath.Join(t.TempDir(), "s.tar.gz"))
	if !errors.Is(err, graphdock.ErrResourceBusy) {
		t.Fatalf("Export error = %v, want ErrResourceBusy", err)
	}
	if source.stops != 0 {
		t.Errorf("database stopped despite missing container")
	}
}

func TestExport_RestartsDatabaseAfterFailedDump(t *testing.T) {
	fake := newFakeDocker()
	fake.failCmd = "neo4j-admin database dump"
	source := devSource()
	m := NewManager(fake)

	_, err := m.Export(context.Background(), source, filepath.Join(t.TempDir(), "s.tar.gz"))
	if err == nil || !strings.Contains(err.Error(), "dump database") {
		t.Fatalf("Export error = %v, want dump failure", err)
	}
	if source.starts != 1 {
		t.Errorf("database restarts = %d, want 1 after failed dump", source.starts)
	}
}

func TestExport_RecordsInCatalog(t *testing.T) {
	catalog, err := OpenCatalog(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	defer catalog.Close()

	fake := newFakeDocker()
	fake.copyFromData = []byte("dump-bytes")
	source := devSource()
	m := NewManager(fake, WithCatalog(catalog))

	destPath := filepath.Join(t.TempDir(), "development.tar.gz")
	if _, err := m.Export(context.Background(), source, destPath); err != nil {
		t.Fatalf("Export: %v", err)
	}

	entries, err := catalog.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("catalog entries = %d, want 1", len(entries))
	}
	if entries[0].Path != destPath {
		t.Errorf("cataloged path = %q, want %q", entries[0].Path, destPath)
	}
	if entries[0].NodeCount != 42 {
		t.Errorf("cataloged NodeCount = %d, want 42", entries[0].NodeCount)
	}
}

func TestImport_ReplacesDatabase(t *testing.T) {
	fake := newFakeDocker()
	source := devSource()
	meta := testMetadata()
	meta.EngineVersion = "5.20.1"
	archivePath := writeTestArchive(t, t.TempDir(), meta, []byte("dump-bytes"))
	m := NewManager(fake)

	if err := m.Import(context.Background(), source, archivePath, Options{Validate: true}); err != nil {
		t.Fatalf("Import: %v", err)
	}

	if source.stops != 1 || source.starts != 1 {
		t.Errorf("database stops/starts = %d/%d, want 1/1", source.stops, source.starts)
	}
	want := []string{
		"rm -rf /data/databases/neo4j /data/transactions/neo4j",
		"mkdir -p /tmp/graphdock-import",
		"neo4j-admin database load neo4j --from-path=/tmp/graphdock-import --overwrite-destination=true",
		"rm -rf /tmp/graphdock-import",
	}
	if len(fake.execs) != len(want) {
		t.Fatalf("execs = %v, want %v", fake.execs, want)
	}
	for i := range want {
		if fake.execs[i] != want[i] {
			t.Errorf("exec[%d] = %q, want %q", i, fake.execs[i], want[i])
		}
	}
	if fake.copyToDir != "/tmp/graphdock-import" {
		t.Errorf("dump copied to %q", fake.copyToDir)
	}

	tr := tar.NewReader(bytes.NewReader(fake.copyToBody.Bytes()))
	hdr, err := tr.Next()
	if err != nil {
		t.Fatalf("read copied tar: %v", err)
	}
	if hdr.Name != "neo4j.dump" {
		t.Errorf("copied entry = %q, want neo4j.dump", hdr.Name)
	}
	body, err := io.ReadAll(tr)
	if err != nil {
		t.Fatalf("read copied dump: %v", err)
	}
	if string(body) != "dump-bytes" {
		t.Errorf("copied dump = %q, want %q", body, "dump-bytes")
	}
}

func TestImport_VersionGateBlocksBeforeDestruction(t *testing.T) {
	fake := newFakeDocker()
	source := devSource()
	meta := testMetadata()
	meta.EngineVersion = "4.4.12"
	archivePath := writeTestArchive(t, t.TempDir(), meta, []byte("dump-bytes"))
	m := NewManager(fake)

	err := m.Import(context.Background(), source, archivePath, Options{Validate: true})
	if !errors.Is(err, graphdock.ErrVersionIncompatible) {
		t.Fatalf("Import error = %v, want ErrVersionIncompatible", err)
	}
	if source.stops != 0 {
		t.Errorf("database stopped before the version gate")
	}
	if len(fake.execs) != 0 {
		t.Errorf("destructive execs ran: %v", fake.execs)
	}
	if fake.copyToBody.Len() != 0 {
		t.Errorf("dump streamed in despite rejection")
	}
}

func TestImport_ForceOverridesGate(t *testing.T) {
	fake := newFakeDocker()
	source := devSource()
	meta := testMetadata()
	meta.EngineVersion = "4.4.12"
	archivePath := writeTestArchive(t, t.TempDir(), meta, []byte("dump-bytes"))
	m := NewManager(fake)

	if err := m.Import(context.Background(), source, archivePath, Options{Validate: true, Force: true}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if source.stops != 1 || source.starts != 1 {
		t.Errorf("database stops/starts = %d/%d, want 1/1", source.stops, source.starts)
	}
}

func TestImport_FailedLoadLeavesDatabaseStopped(t *testing.T) {
	fake := newFakeDocker()
	fake.failCmd = "neo4j-admin database load"
	source := devSource()
	archivePath := writeTestArchive(t, t.TempDir(), testMetadata(), []byte("dump-bytes"))
	m := NewManager(fake)

	err := m.Import(context.Background(), source, archivePath, Options{})
	if err == nil || !strings.Contains(err.Error(), "load database") {
		t.Fatalf("Import error = %v, want load failure", err)
	}
	if source.starts != 0 {
		t.Errorf("database restarted after failed load")
	}
}

func TestImport_RequiresRunningInstance(t *testing.T) {
	fake := newFakeDocker()
	fake.running = false
	source := devSource()
	archivePath := writeTestArchive(t, t.TempDir(), testMetadata(), []byte("dump-bytes"))
	m := NewManager(fake)

	err := m.Import(context.Background(), source, archivePath, Options{})
	if !errors.Is(err, graphdock.ErrResourceBusy) {
		t.Fatalf("Import error = %v, want ErrResourceBusy", err)
	}
}

func TestImport_BackupBeforeOverwrite(t *testing.T) {
	fake := newFakeDocker()
	fake.copyFromData = []byte("current-data")
	source := devSource()
	dir := t.TempDir()
	archivePath := writeTestArchive(t, dir, testMetadata(), []byte("dump-bytes"))
	m := NewManager(fake)

	if err := m.Import(context.Background(), source, archivePath, Options{Validate: true, Backup: true}); err != nil {
		t.Fatalf("Import: %v", err)
	}

	backups, err := filepath.Glob(filepath.Join(dir, "development-pre-import-*.tar.gz"))
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 {
		t.Fatalf("backup archives = %v, want exactly one", backups)
	}
	backupMeta, err := unpackArchive(backups[0], t.TempDir())
	if err != nil {
		t.Fatalf("unpack backup: %v", err)
	}
	if backupMeta.Environment != "development" {
		t.Errorf("backup environment = %q", backupMeta.Environment)
	}
	// One stop/start pair for the backup export, one for the import.
	if source.stops != 2 || source.starts != 2 {
		t.Errorf("database stops/starts = %d/%d, want 2/2", source.stops, source.starts)
	}
}

func TestImport_BackupFailureIsNotFatal(t *testing.T) {
	fake := newFakeDocker()
	// The size measurement only runs during export, so this breaks the
	// backup without touching the import sequence.
	fake.failCmd = "du"
	source := devSource()
	dir := t.TempDir()
	archivePath := writeTestArchive(t, dir, testMetadata(), []byte("dump-bytes"))
	m := NewManager(fake)

	if err := m.Import(context.Background(), source, archivePath, Options{Backup: true}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	backups, err := filepath.Glob(filepath.Join(dir, "development-pre-import-*.tar.gz"))
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 0 {
		t.Errorf("backup archives = %v, want none", backups)
	}
}
