package volume

import (
	"context"
	"errors"
	"testing"

	"graphdock"

	"github.com/containerd/errdefs"
	dockervolume "github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
)

type fakeDocker struct {
	client.APIClient

	existing  map[string]bool
	removeErr error

	created []dockervolume.CreateOptions
	removed []string
}

func (f *fakeDocker) VolumeInspect(ctx context.Context, name string) (dockervolume.Volume, error) {
	if f.existing[name] {
		return dockervolume.Volume{Name: name}, nil
	}
	return dockervolume.Volume{}, errdefs.ErrNotFound
}

func (f *fakeDocker) VolumeCreate(ctx context.Context, opts dockervolume.CreateOptions) (dockervolume.Volume, error) {
	if f.existing == nil {
		f.existing = make(map[string]bool)
	}
	f.existing[opts.Name] = true
	f.created = append(f.created, opts)
	return dockervolume.Volume{Name: opts.Name}, nil
}

func (f *fakeDocker) VolumeRemove(ctx context.Context, name string, force bool) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, name)
	return nil
}

func TestEnsure_CreatesMissingVolume(t *testing.T) {
	fake := &fakeDocker{}
	m := NewManager(fake)

	name, err := m.Ensure(context.Background(), "development")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if name != "graphdock-development-data" {
		t.Errorf("name: got %q, want %q", name, "graphdock-development-data")
	}
	if len(fake.created) != 1 {
		t.Fatalf("creates: got %d, want 1", len(fake.created))
	}
	opts := fake.created[0]
	if opts.Name != name {
		t.Errorf("created name: got %q, want %q", opts.Name, name)
	}
	if opts.Labels[graphdock.LabelManaged] != "true" {
		t.Errorf("managed label: got %q, want %q", opts.Labels[graphdock.LabelManaged], "true")
	}
	if opts.Labels[graphdock.LabelEnvironment] != "development" {
		t.Errorf("environment label: got %q, want %q", opts.Labels[graphdock.LabelEnvironment], "development")
	}
}

func TestEnsure_ReusesExistingVolume(t *testing.T) {
	fake := &fakeDocker{existing: map[string]bool{"graphdock-development-data": true}}
	m := NewManager(fake)

	name, err := m.Ensure(context.Background(), "development")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if name != "graphdock-development-data" {
		t.Errorf("name: got %q", name)
	}
	if len(fake.created) != 0 {
		t.Errorf("creates: got %d, want 0", len(fake.created))
	}
}

func TestEnsure_SameEnvironmentSameVolume(t *testing.T) {
	fake := &fakeDocker{}
	m := NewManager(fake)

	first, err := m.Ensure(context.Background(), "test-run-3")
	if err != nil {
		t.Fatalf("first Ensure: %v", err)
	}
	second, err := m.Ensure(context.Background(), "test-run-3")
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if first != second {
		t.Errorf("volume names differ: %q vs %q", first, second)
	}
	if len(fake.created) != 1 {
		t.Errorf("creates: got %d, want 1", len(fake.created))
	}
}

func TestRemove_DeletesVolume(t *testing.T) {
	fake := &fakeDocker{existing: map[string]bool{"graphdock-development-data": true}}
	m := NewManager(fake)

	if err := m.Remove(context.Background(), "development"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(fake.removed) != 1 || fake.removed[0] != "graphdock-development-data" {
		t.Errorf("removed: got %v", fake.removed)
	}
}

func TestRemove_MissingVolumeIsNoop(t *testing.T) {
	fake := &fakeDocker{removeErr: errdefs.ErrNotFound}
	m := NewManager(fake)

	if err := m.Remove(context.Background(), "development"); err != nil {
		t.Errorf("Remove of missing volume should be a no-op: %v", err)
	}
}

func TestRemove_SurfacesOtherErrors(t *testing.T) {
	boom := errors.New("volume is in use")
	fake := &fakeDocker{removeErr: boom}
	m := NewManager(fake)

	if err := m.Remove(context.Background(), "development"); !errors.Is(err, boom) {
		t.Errorf("got %v, want wrapped %v", err, boom)
	}
}
