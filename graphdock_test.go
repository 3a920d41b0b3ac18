package graphdock

import "testing"

func TestEnvironmentValidate(t *testing.T) {
	valid := []Environment{"development", "test-run-3", "a", "snap_shot"}
	for _, env := range valid {
		if err := env.Validate(); err != nil {
			t.Errorf("Validate(%q): unexpected error: %v", env, err)
		}
	}

	invalid := []Environment{"", "Dev", "with space", "dot.name", "slash/name"}
	for _, env := range invalid {
		if err := env.Validate(); err == nil {
			t.Errorf("Validate(%q): expected error", env)
		}
	}
}

func TestEnvironmentNames(t *testing.T) {
	env := Environment("development")
	if got, want := env.ContainerName(), "graphdock-development"; got != want {
		t.Errorf("ContainerName: got %q, want %q", got, want)
	}
	if got, want := env.VolumeName(), "graphdock-development-data"; got != want {
		t.Errorf("VolumeName: got %q, want %q", got, want)
	}
}

func TestEnvironmentFromLabels(t *testing.T) {
	env, ok := EnvironmentFromLabels(Environment("dev").Labels())
	if !ok {
		t.Fatal("expected managed labels to round-trip")
	}
	if env != "dev" {
		t.Errorf("environment: got %q, want %q", env, "dev")
	}

	if _, ok := EnvironmentFromLabels(map[string]string{LabelEnvironment: "dev"}); ok {
		t.Error("labels without the managed marker should not resolve")
	}
	if _, ok := EnvironmentFromLabels(map[string]string{LabelManaged: "true", LabelEnvironment: "Bad Env"}); ok {
		t.Error("an invalid environment key should not resolve")
	}
	if _, ok := EnvironmentFromLabels(nil); ok {
		t.Error("nil labels should not resolve")
	}
}
