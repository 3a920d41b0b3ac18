// Package lifecycle starts, supervises and retires the Docker containers
// behind database environments. Start is convergent: it reuses a running
// container, restarts a stopped one and provisions from scratch only when
// nothing exists for the environment. Concurrent starts of the same
// environment collapse into one attempt whose result every caller shares.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"graphdock"
	"graphdock/config"
	"graphdock/graph"
	"graphdock/infra/docker"
	"graphdock/ports"
	"graphdock/volume"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	boltContainerPort = nat.Port("7687/tcp")
	httpContainerPort = nat.Port("7474/tcp")

	dataMountTarget = "/data"
)

// Config describes the instance a caller wants running.
type Config struct {
	Environment graphdock.Environment
	// Password for the admin user. Required when the environment has to
	// be created. On reuse the credential stored on the container takes
	// precedence and Password is only a fallback when none is readable.
	Password string
	// Image overrides the manager's default image for fresh creates only.
	Image string
	// HeapMax and PageCache become server memory settings, e.g. "2G".
	HeapMax   string
	PageCache string
	// ExtraEnv is passed to the container verbatim on creation.
	ExtraEnv map[string]string
}

// Status is a point-in-time report for one environment.
type Status struct {
	Environment graphdock.Environment
	Phase       Phase
	ContainerID string
	BoltPort    int
	HTTPPort    int
}

// ConnectFunc opens the authenticated client a handle carries.
type ConnectFunc func(ctx context.Context, uri, user, password string) (*graph.Client, error)

// Manager owns the container lifecycle for database environments.
type Manager struct {
	docker   client.APIClient
	ports    *ports.Allocator
	volumes  *volume.Manager
	prober   AuthProber
	connect  ConnectFunc
	image    string
	timeout  time.Duration
	interval time.Duration

	mu       sync.Mutex
	inflight map[graphdock.Environment]*inflight
	phases   map[graphdock.Environment]Phase
}

// inflight is one start attempt in progress. Late callers block on done
// and read the shared result.
type inflight struct {
	done   chan struct{}
	handle *Handle
	err    error
}

// Option configures a Manager.
type Option func(*Manager)

// WithImage sets the default image for fresh creates.
func WithImage(image string) Option {
	return func(m *Manager) { m.image = image }
}

// WithHealthTimeout bounds the readiness wait.
func WithHealthTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithHealthInterval sets the readiness poll interval.
func WithHealthInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// WithProber overrides the readiness prober.
func WithProber(p AuthProber) Option {
	return func(m *Manager) { m.prober = p }
}

// WithConnect overrides how handles open their database client.
func WithConnect(fn ConnectFunc) Option {
	return func(m *Manager) { m.connect = fn }
}

func NewManager(dockerClient client.APIClient, allocator *ports.Allocator, volumes *volume.Manager, opts ...Option) *Manager {
	m := &Manager{
		docker:   dockerClient,
		ports:    allocator,
		volumes:  volumes,
		prober:   graph.Prober{},
		connect:  graph.Connect,
		image:    config.DefaultImage,
		timeout:  config.DefaultHealthTimeout,
		interval: config.DefaultHealthInterval,
		inflight: make(map[graphdock.Environment]*inflight),
		phases:   make(map[graphdock.Environment]Phase),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start brings the environment's instance to a verified running state and
// returns a handle to it. Concurrent calls for the same environment share
// one attempt and its exact result; the attempt marker is cleared whether
// it succeeds or fails, so a later call starts fresh.
func (m *Manager) Start(ctx context.Context, cfg Config) (*Handle, error) {
	if err := cfg.Environment.Validate(); err != nil {
		return nil, err
	}
	env := cfg.Environment

	m.mu.Lock()
	if running, ok := m.inflight[env]; ok {
		m.mu.Unlock()
		select {
		case <-running.done:
			return running.handle, running.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	flight := &inflight{done: make(chan struct{})}
	m.inflight[env] = flight
	m.mu.Unlock()

	handle, err := m.start(ctx, cfg)

	m.mu.Lock()
	flight.handle, flight.err = handle, err
	delete(m.inflight, env)
	m.mu.Unlock()
	close(flight.done)

	return handle, err
}

func (m *Manager) start(ctx context.Context, cfg Config) (*Handle, error) {
	env := cfg.Environment
	log := slog.With("component", "lifecycle", "environment", env.String())

	found, err := docker.FindByLabel(ctx, m.docker, env.Labels())
	if err != nil {
		return nil, err
	}
	if len(found) > 1 {
		log.Warn("Multiple containers carry this environment label, using the newest.", "count", len(found))
	}
	if len(found) > 0 {
		return m.adopt(ctx, cfg, newest(found).ID, log)
	}
	return m.provision(ctx, cfg, log)
}

// adopt attaches to an existing container, starting it first if stopped.
// Reconnection uses the credential stored on the container, not the
// caller's; a caller password only covers containers with no readable
// NEO4J_AUTH. Verification failures surface as errors; the container is
// never removed or recreated here.
func (m *Manager) adopt(ctx context.Context, cfg Config, containerID string, log *slog.Logger) (*Handle, error) {
	env := cfg.Environment

	info, err := m.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("inspect container %s: %w", shortID(containerID), err)
	}
	bolt, http, err := hostPorts(info)
	if err != nil {
		return nil, err
	}
	password, err := storedPassword(info)
	if err != nil {
		if cfg.Password == "" {
			return nil, err
		}
		log.Debug("Container carries no readable credential, using the caller's.", "err", err)
		password = cfg.Password
	}

	// Re-register the pair so the allocation table stays true to what is
	// actually bound, even if the table was lost.
	alloc := ports.Allocation{BoltPort: bolt, HTTPPort: http, AllocatedAt: createdAt(info)}
	if err := m.ports.Promote(ctx, alloc, info.ID); err != nil {
		return nil, err
	}

	var phase Phase
	if info.State != nil && info.State.Running {
		phase = Running
		m.record(env, phase)
		log.Info("Reusing running container.", "container", shortID(info.ID))
	} else {
		phase = Stopped
		m.record(env, phase)
		phase = phase.Transition(Starting)
		m.record(env, phase)
		log.Info("Starting existing container.", "container", shortID(info.ID))
		if err := m.docker.ContainerStart(ctx, info.ID, container.StartOptions{}); err != nil {
			m.record(env, phase.Transition(Failed))
			return nil, fmt.Errorf("start existing container %s: %w", shortID(info.ID), err)
		}
	}

	phase = phase.Transition(HealthChecking)
	m.record(env, phase)
	if err := m.waitHealthy(ctx, info.ID, bolt, password); err != nil {
		m.record(env, phase.Transition(Failed))
		return nil, err
	}

	handle, err := m.newHandle(ctx, env, info.ID, bolt, http, password, createdAt(info))
	if err != nil {
		m.record(env, phase.Transition(Failed))
		return nil, err
	}
	m.record(env, phase.Transition(Running))
	return handle, nil
}

// provision allocates ports, ensures the data volume and creates the
// container from scratch.
func (m *Manager) provision(ctx context.Context, cfg Config, log *slog.Logger) (*Handle, error) {
	env := cfg.Environment
	if cfg.Password == "" {
		return nil, fmt.Errorf("password is required to create environment %q", env)
	}
	image := cfg.Image
	if image == "" {
		image = m.image
	}

	phase := Absent
	m.record(env, phase)
	phase = phase.Transition(Starting)
	m.record(env, phase)

	alloc, err := m.ports.Allocate(ctx)
	if err != nil {
		m.record(env, phase.Transition(Failed))
		return nil, err
	}
	volumeName, err := m.volumes.Ensure(ctx, env)
	if err != nil {
		m.record(env, phase.Transition(Failed))
		return nil, err
	}

	name := env.ContainerName()
	log.Info("Creating instance container.", "name", name, "image", image,
		"bolt", alloc.BoltPort, "http", alloc.HTTPPort)

	id, err := docker.CreateAndStart(ctx, m.docker, name, image,
		containerConfig(cfg, image), hostConfig(alloc, volumeName), nil)
	if err != nil {
		m.record(env, phase.Transition(Failed))
		return nil, fmt.Errorf("%w for %s: %w", graphdock.ErrContainerCreate, name, err)
	}
	if err := m.ports.Promote(ctx, alloc, id); err != nil {
		m.record(env, phase.Transition(Failed))
		return nil, err
	}

	phase = phase.Transition(HealthChecking)
	m.record(env, phase)
	if err := m.waitHealthy(ctx, id, alloc.BoltPort, cfg.Password); err != nil {
		m.record(env, phase.Transition(Failed))
		return nil, err
	}

	handle, err := m.newHandle(ctx, env, id, alloc.BoltPort, alloc.HTTPPort, cfg.Password, time.Now().UTC())
	if err != nil {
		m.record(env, phase.Transition(Failed))
		return nil, err
	}
	m.record(env, phase.Transition(Running))
	log.Info("Instance ready.", "container", shortID(id), "bolt_uri", handle.BoltURI())
	return handle, nil
}

// Connect attaches to an environment that is already running and returns
// a verified handle. Unlike Start it never creates or starts anything: a
// missing or stopped container is an error, not a trigger.
func (m *Manager) Connect(ctx context.Context, env graphdock.Environment) (*Handle, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	log := slog.With("component", "lifecycle", "environment", env.String())

	found, err := docker.FindByLabel(ctx, m.docker, env.Labels())
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("environment %s has no container: %w", env, graphdock.ErrResourceBusy)
	}
	candidate := newest(found)
	info, err := m.docker.ContainerInspect(ctx, candidate.ID)
	if err != nil {
		return nil, fmt.Errorf("inspect container %s: %w", shortID(candidate.ID), err)
	}
	if info.State == nil || !info.State.Running {
		return nil, fmt.Errorf("environment %s is not running: %w", env, graphdock.ErrResourceBusy)
	}
	return m.adopt(ctx, Config{Environment: env}, candidate.ID, log)
}

// Stop stops the environment's container and closes the handle's client.
// The container and its volume stay in place for the next Start.
func (m *Manager) Stop(ctx context.Context, h *Handle) error {
	log := slog.With("component", "lifecycle", "environment", h.env.String())

	// A handle exists only for a verified instance, which overrides
	// whatever phase a later attempt recorded.
	phase := Running.Transition(Stopping)
	m.record(h.env, phase)

	if err := h.Close(ctx); err != nil {
		log.Warn("Closing database client failed.", "err", err)
	}
	if err := m.docker.ContainerStop(ctx, h.containerID, container.StopOptions{}); err != nil && !errdefs.IsNotFound(err) {
		m.record(h.env, phase.Transition(Failed))
		return fmt.Errorf("stop container %s: %w", shortID(h.containerID), err)
	}
	m.record(h.env, phase.Transition(Stopped))
	log.Info("Instance stopped.", "container", shortID(h.containerID))
	return nil
}

// StopEnvironment stops the environment's container without needing a
// live handle. No container, or one already stopped, is a quiet no-op;
// the container and its volume stay in place either way.
func (m *Manager) StopEnvironment(ctx context.Context, env graphdock.Environment) error {
	if err := env.Validate(); err != nil {
		return err
	}
	log := slog.With("component", "lifecycle", "environment", env.String())

	found, err := docker.FindByLabel(ctx, m.docker, env.Labels())
	if err != nil {
		return err
	}
	var running []container.Summary
	for _, c := range found {
		if c.State == "running" {
			running = append(running, c)
		}
	}
	if len(running) == 0 {
		if len(found) > 0 {
			m.record(env, Stopped)
		}
		log.Debug("Nothing to stop.")
		return nil
	}

	// The container is observed running, which overrides whatever phase a
	// past attempt recorded.
	phase := Running.Transition(Stopping)
	m.record(env, phase)

	for _, c := range running {
		if err := m.docker.ContainerStop(ctx, c.ID, container.StopOptions{}); err != nil && !errdefs.IsNotFound(err) {
			m.record(env, phase.Transition(Failed))
			return fmt.Errorf("stop container %s: %w", shortID(c.ID), err)
		}
		log.Info("Instance stopped.", "container", shortID(c.ID))
	}
	m.record(env, phase.Transition(Stopped))
	return nil
}

// Status reports the phase and endpoints of an environment without
// touching it.
func (m *Manager) Status(ctx context.Context, env graphdock.Environment) (Status, error) {
	if err := env.Validate(); err != nil {
		return Status{}, err
	}

	m.mu.Lock()
	_, busy := m.inflight[env]
	recorded := m.phases[env]
	m.mu.Unlock()
	if busy && recorded == 0 {
		recorded = Starting
	}

	st := Status{Environment: env, Phase: Absent}

	found, err := docker.FindByLabel(ctx, m.docker, env.Labels())
	if err != nil {
		return Status{}, err
	}
	if len(found) == 0 {
		if busy {
			st.Phase = recorded
		}
		return st, nil
	}

	info, err := m.docker.ContainerInspect(ctx, newest(found).ID)
	if err != nil {
		return Status{}, fmt.Errorf("inspect container: %w", err)
	}
	st.ContainerID = info.ID
	if bolt, http, err := hostPorts(info); err == nil {
		st.BoltPort, st.HTTPPort = bolt, http
	}

	switch {
	case busy:
		st.Phase = recorded
	case info.State != nil && info.State.Running:
		st.Phase = Running
	case recorded == Failed:
		st.Phase = Failed
	default:
		st.Phase = Stopped
	}
	return st, nil
}

// List reports every environment owning a managed container, sorted by
// environment name. Discovery goes through the identity labels, so
// containers created by other tooling never appear.
func (m *Manager) List(ctx context.Context) ([]Status, error) {
	found, err := docker.FindByLabel(ctx, m.docker, map[string]string{graphdock.LabelManaged: "true"})
	if err != nil {
		return nil, err
	}

	seen := make(map[graphdock.Environment]bool)
	var envs []graphdock.Environment
	for _, c := range found {
		env, ok := graphdock.EnvironmentFromLabels(c.Labels)
		if !ok || seen[env] {
			continue
		}
		seen[env] = true
		envs = append(envs, env)
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i] < envs[j] })

	out := make([]Status, 0, len(envs))
	for _, env := range envs {
		st, err := m.Status(ctx, env)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Teardown is the explicit destructive cleanup: container, data volume
// and port allocation all go away. Nothing else in the manager deletes
// anything.
func (m *Manager) Teardown(ctx context.Context, env graphdock.Environment) error {
	if err := env.Validate(); err != nil {
		return err
	}
	log := slog.With("component", "lifecycle", "environment", env.String())

	found, err := docker.FindByLabel(ctx, m.docker, env.Labels())
	if err != nil {
		return err
	}
	for _, c := range found {
		if err := docker.StopAndRemove(ctx, m.docker, c.ID); err != nil {
			return err
		}
		if err := m.ports.Release(ctx, c.ID); err != nil {
			return err
		}
		log.Info("Removed container.", "container", shortID(c.ID))
	}
	if err := m.volumes.Remove(ctx, env); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.phases, env)
	m.mu.Unlock()
	log.Info("Environment torn down.")
	return nil
}

func (m *Manager) record(env graphdock.Environment, phase Phase) {
	m.mu.Lock()
	m.phases[env] = phase
	m.mu.Unlock()
}

func (m *Manager) newHandle(ctx context.Context, env graphdock.Environment, containerID string, bolt, http int, password string, created time.Time) (*Handle, error) {
	cli, err := m.connect(ctx, boltURI(bolt), graphdock.Username, password)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", boltURI(bolt), err)
	}
	return &Handle{
		env:         env,
		containerID: containerID,
		volume:      env.VolumeName(),
		boltPort:    bolt,
		httpPort:    http,
		createdAt:   created,
		client:      cli,
	}, nil
}

func containerConfig(cfg Config, image string) *container.Config {
	return &container.Config{
		Image:  image,
		Env:    instanceEnv(cfg),
		Labels: cfg.Environment.Labels(),
		ExposedPorts: nat.PortSet{
			boltContainerPort: struct{}{},
			httpContainerPort: struct{}{},
		},
	}
}

func hostConfig(alloc ports.Allocation, volumeName string) *container.HostConfig {
	return &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		PortBindings: nat.PortMap{
			boltContainerPort: {{HostIP: "127.0.0.1", HostPort: strconv.Itoa(alloc.BoltPort)}},
			httpContainerPort: {{HostIP: "127.0.0.1", HostPort: strconv.Itoa(alloc.HTTPPort)}},
		},
		Mounts: []mount.Mount{{
			Type:   mount.TypeVolume,
			Source: volumeName,
			Target: dataMountTarget,
		}},
	}
}

func instanceEnv(cfg Config) []string {
	env := []string{"NEO4J_AUTH=" + graphdock.Username + "/" + cfg.Password}
	if cfg.HeapMax != "" {
		env = append(env, "NEO4J_server_memory_heap_max__size="+cfg.HeapMax)
	}
	if cfg.PageCache != "" {
		env = append(env, "NEO4J_server_memory_pagecache_size="+cfg.PageCache)
	}
	keys := make([]string, 0, len(cfg.ExtraEnv))
	for k := range cfg.ExtraEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+cfg.ExtraEnv[k])
	}
	return env
}

// hostPorts recovers the bound host port pair from a container's config.
func hostPorts(info container.InspectResponse) (bolt, http int, err error) {
	if info.HostConfig == nil {
		return 0, 0, fmt.Errorf("container %s has no host config", shortID(info.ID))
	}
	if bolt, err = hostPort(info.HostConfig.PortBindings, boltContainerPort); err != nil {
		return 0, 0, fmt.Errorf("container %s: %w", shortID(info.ID), err)
	}
	if http, err = hostPort(info.HostConfig.PortBindings, httpContainerPort); err != nil {
		return 0, 0, fmt.Errorf("container %s: %w", shortID(info.ID), err)
	}
	return bolt, http, nil
}

func hostPort(bindings nat.PortMap, port nat.Port) (int, error) {
	entries := bindings[port]
	if len(entries) == 0 {
		return 0, fmt.Errorf("no host binding for %s", port)
	}
	n, err := strconv.Atoi(entries[0].HostPort)
	if err != nil {
		return 0, fmt.Errorf("host binding for %s: %w", port, err)
	}
	return n, nil
}

// storedPassword recovers the credential the container was created with.
func storedPassword(info container.InspectResponse) (string, error) {
	if info.Config == nil {
		return "", fmt.Errorf("container %s has no config", shortID(info.ID))
	}
	for _, kv := range info.Config.Env {
		value, ok := strings.CutPrefix(kv, "NEO4J_AUTH=")
		if !ok {
			continue
		}
		_, password, ok := strings.Cut(value, "/")
		if !ok {
			return "", fmt.Errorf("malformed NEO4J_AUTH on container %s", shortID(info.ID))
		}
		return password, nil
	}
	return "", fmt.Errorf("container %s carries no NEO4J_AUTH", shortID(info.ID))
}

func createdAt(info container.InspectResponse) time.Time {
	t, err := time.Parse(time.RFC3339Nano, info.Created)
	if err != nil {
		return time.Time{}
	}
	return t
}

func newest(found []container.Summary) container.Summary {
	out := found[0]
	for _, c := range found[1:] {
		if c.Created > out.Created {
			out = c
		}
	}
	return out
}
