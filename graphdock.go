// Package graphdock manages local Neo4j instances running in Docker
// containers: host port allocation, container lifecycle with health
// gating, named data volumes, and snapshot export/import.
package graphdock

import (
	"fmt"
	"strings"
)

// Username is the administrative database user. Community images pin the
// admin account name, so only the password varies per environment.
const Username = "neo4j"

// Identity labels applied to every managed container and volume.
// Discovery always goes through these, never through name guessing.
const (
	LabelManaged     = "graphdock.managed"
	LabelEnvironment = "graphdock.environment"
)

// Environment is the stable logical identity of a managed database
// instance, e.g. "development" or "test-run-3". The same key always maps
// to the same container and volume.
type Environment string

// DefaultEnvironment is what commands target when no environment is named.
const DefaultEnvironment = Environment("development")

// Validate reports whether the key can be embedded in Docker object names.
func (e Environment) Validate() error {
	if e == "" {
		return fmt.Errorf("environment is required")
	}
	for _, r := range e {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("environment %q: only lowercase letters, digits, '-' and '_' are allowed", string(e))
		}
	}
	return nil
}

func (e Environment) String() string {
	return string(e)
}

// ContainerName returns the deterministic container name for the environment.
func (e Environment) ContainerName() string {
	return "graphdock-" + string(e)
}

// VolumeName returns the deterministic data volume name for the environment.
func (e Environment) VolumeName() string {
	return "graphdock-" + string(e) + "-data"
}

// Labels returns the identity label set stamped on containers and volumes.
func (e Environment) Labels() map[string]string {
	return map[string]string{
		LabelManaged:     "true",
		LabelEnvironment: string(e),
	}
}

// EnvironmentFromLabels recovers the environment key from an object's
// labels. The bool is false when the object is not managed by graphdock,
// including when the recorded key is not a valid environment.
func EnvironmentFromLabels(labels map[string]string) (Environment, bool) {
	if labels[LabelManaged] != "true" {
		return "", false
	}
	env := Environment(strings.TrimSpace(labels[LabelEnvironment]))
	if env.Validate() != nil {
		return "", false
	}
	return env, true
}
