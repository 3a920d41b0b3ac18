// Package ports assigns host port pairs (bolt + http) to database
// containers. Assignments live in a single JSON table on disk, shared
// with other processes through an advisory file lock; every mutation is a
// full load, modify, rewrite cycle under that lock.
package ports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"graphdock"

	"github.com/gofrs/flock"
)

const (
	// reservationTTL bounds how long a reservation without a container may
	// hold its ports. Crashed starts are reclaimed by expiry, not cleanup.
	reservationTTL = time.Hour

	// searchWindow bounds how many candidate pairs Allocate may try.
	searchWindow = 200

	tempKeyPrefix = "temp-"

	lockRetryDelay = 100 * time.Millisecond
)

// Allocation is one reserved port pair. ContainerID stays empty while the
// reservation is temporary and is filled by Promote.
type Allocation struct {
	BoltPort    int       `json:"boltPort"`
	HTTPPort    int       `json:"httpPort"`
	AllocatedAt time.Time `json:"allocatedAt"`
	ContainerID string    `json:"containerId,omitempty"`
}

// SamePair reports whether two allocations cover the same port pair.
func (a Allocation) SamePair(b Allocation) bool {
	return a.BoltPort == b.BoltPort && a.HTTPPort == b.HTTPPort
}

// Allocator hands out port pairs backed by the on-disk table.
type Allocator struct {
	path     string
	baseBolt int
	baseHTTP int

	mu    sync.Mutex
	fl    *flock.Flock
	probe func(port int) bool
	now   func() time.Time
}

// Option adjusts an Allocator. Used by tests to pin the probe and clock.
type Option func(*Allocator)

// WithProbe overrides the host port availability check.
func WithProbe(probe func(port int) bool) Option {
	return func(a *Allocator) { a.probe = probe }
}

// WithClock overrides the time source used for reservation expiry.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) { a.now = now }
}

// New creates an allocator over the table at path, searching upward from
// the given base pair.
func New(path string, baseBolt, baseHTTP int, opts ...Option) *Allocator {
	a := &Allocator{
		path:     path,
		baseBolt: baseBolt,
		baseHTTP: baseHTTP,
		fl:       flock.New(path + ".lock"),
		probe:    portFree,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate reserves the first free port pair at or above the base pair. A
// pair qualifies when neither port is referenced by a live table entry and
// both accept a listener bind on localhost. The reservation is written
// under a temporary key and must be promoted once a container exists.
func (a *Allocator) Allocate(ctx context.Context) (Allocation, error) {
	var out Allocation
	err := a.withTable(ctx, func(table map[string]Allocation) (bool, error) {
		used := make(map[int]bool, len(table)*2)
		for _, alloc := range table {
			used[alloc.BoltPort] = true
			used[alloc.HTTPPort] = true
		}

		bolt, http := a.baseBolt, a.baseHTTP
		for i := 0; i < searchWindow; i++ {
			if !used[bolt] && !used[http] && a.probe(bolt) && a.probe(http) {
				out = Allocation{BoltPort: bolt, HTTPPort: http, AllocatedAt: a.now().UTC()}
				table[a.tempKey(table, bolt)] = out
				return true, nil
			}
			bolt++
			http++
		}
		return false, fmt.Errorf("no free pair within %d candidates from %d/%d: %w",
			searchWindow, a.baseBolt, a.baseHTTP, graphdock.ErrPortExhausted)
	})
	if err != nil {
		return Allocation{}, err
	}
	slog.Debug("Allocated port pair.", "bolt", out.BoltPort, "http", out.HTTPPort)
	return out, nil
}

// Promote re-keys the temporary reservation holding alloc's port pair
// under the container ID. Container-keyed entries never expire. Promoting
// an allocation that is already promoted is a no-op; if the reservation
// expired in the meantime, the container entry is written anyway.
func (a *Allocator) Promote(ctx context.Context, alloc Allocation, containerID string) error {
	if containerID == "" {
		return fmt.Errorf("container id is required")
	}
	return a.withTable(ctx, func(table map[string]Allocation) (bool, error) {
		if existing, ok := table[containerID]; ok && existing.SamePair(alloc) {
			return false, nil
		}
		for key, entry := range table {
			if strings.HasPrefix(key, tempKeyPrefix) && entry.SamePair(alloc) {
				delete(table, key)
			}
		}
		alloc.ContainerID = containerID
		table[containerID] = alloc
		return true, nil
	})
}

// Release frees the pair held by a container. Unknown IDs are a no-op.
func (a *Allocator) Release(ctx context.Context, containerID string) error {
	return a.withTable(ctx, func(table map[string]Allocation) (bool, error) {
		if _, ok := table[containerID]; !ok {
			return false, nil
		}
		delete(table, containerID)
		return true, nil
	})
}

// Get returns the allocation held by a container, if any.
func (a *Allocator) Get(ctx context.Context, containerID string) (Allocation, bool, error) {
	var (
		out   Allocation
		found bool
	)
	err := a.withTable(ctx, func(table map[string]Allocation) (bool, error) {
		out, found = table[containerID]
		return false, nil
	})
	if err != nil {
		return Allocation{}, false, err
	}
	return out, found, nil
}

// List returns a copy of the current table, keyed by reservation token or
// container ID.
func (a *Allocator) List(ctx context.Context) (map[string]Allocation, error) {
	out := make(map[string]Allocation)
	err := a.withTable(ctx, func(table map[string]Allocation) (bool, error) {
		for key, alloc := range table {
			out[key] = alloc
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// withTable runs fn over the loaded table while holding both the process
// mutex and the cross-process file lock. Expired reservations are purged
// on every load; the file is rewritten when the purge or fn changed
// anything.
func (a *Allocator) withTable(ctx context.Context, fn func(table map[string]Allocation) (bool, error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.fl.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("lock port table: %w", err)
	}
	defer func() {
		_ = a.fl.Unlock()
	}()

	table := a.load()
	purged := a.purgeExpired(table)
	dirty, err := fn(table)
	if err != nil {
		return err
	}
	if !dirty && !purged {
		return nil
	}
	return a.save(table)
}

func (a *Allocator) load() map[string]Allocation {
	data, err := os.ReadFile(a.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Unreadable port table, starting empty.", "path", a.path, "err", err)
		}
		return make(map[string]Allocation)
	}

	var table map[string]Allocation
	if err := json.Unmarshal(data, &table); err != nil {
		slog.Warn("Corrupt port table, starting empty.", "path", a.path, "err", err)
		return make(map[string]Allocation)
	}
	if table == nil {
		table = make(map[string]Allocation)
	}
	return table
}

func (a *Allocator) save(table map[string]Allocation) error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("create port table dir: %w", err)
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal port table: %w", err)
	}
	if err := os.WriteFile(a.path, data, 0o644); err != nil {
		return fmt.Errorf("write port table: %w", err)
	}
	return nil
}

// purgeExpired drops temporary reservations older than the TTL and
// reports whether anything was removed.
func (a *Allocator) purgeExpired(table map[string]Allocation) bool {
	cutoff := a.now().Add(-reservationTTL)
	removed := false
	for key, alloc := range table {
		if !strings.HasPrefix(key, tempKeyPrefix) {
			continue
		}
		if alloc.AllocatedAt.Before(cutoff) {
			slog.Debug("Expiring stale port reservation.", "key", key, "bolt", alloc.BoltPort)
			delete(table, key)
			removed = true
		}
	}
	return removed
}

// tempKey builds a reservation token unique within the table. The bolt
// port disambiguates reservations made in the same clock reading.
func (a *Allocator) tempKey(table map[string]Allocation, bolt int) string {
	key := fmt.Sprintf("%s%d-%d", tempKeyPrefix, a.now().UnixNano(), bolt)
	for i := 2; ; i++ {
		if _, taken := table[key]; !taken {
			return key
		}
		key = fmt.Sprintf("%s%d-%d-%d", tempKeyPrefix, a.now().UnixNano(), bolt, i)
	}
}

// portFree reports whether a localhost listener can bind the port.
func portFree(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
