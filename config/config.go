// Package config handles the graphdock configuration file.
//
// Config is stored at $XDG_CONFIG_HOME/graphdock/config.yaml (defaults to
// ~/.config/graphdock/config.yaml). Every field is optional; a missing
// file yields the defaults, not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultImage          = "neo4j:5.26-community"
	DefaultBoltPort       = 7687
	DefaultHTTPPort       = 7474
	DefaultHealthTimeout  = 2 * time.Minute
	DefaultHealthInterval = 500 * time.Millisecond
)

// Duration wraps time.Duration so YAML values read as "90s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config holds instance defaults and filesystem locations.
type Config struct {
	DataDir        string   `yaml:"data-dir,omitempty"`
	SnapshotDir    string   `yaml:"snapshot-dir,omitempty"`
	Image          string   `yaml:"image,omitempty"`
	BoltPort       int      `yaml:"bolt-port,omitempty"`
	HTTPPort       int      `yaml:"http-port,omitempty"`
	HealthTimeout  Duration `yaml:"health-timeout,omitempty"`
	HealthInterval Duration `yaml:"health-interval,omitempty"`
}

// Path returns the config file location. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/graphdock/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "graphdock", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "graphdock", "config.yaml")
}

// DataRoot returns the default data directory. It respects XDG_DATA_HOME,
// falling back to ~/.local/share/graphdock.
func DataRoot() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".local", "share", "graphdock")
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "graphdock")
}

// Load reads the config file and fills in defaults. If the file does not
// exist, the defaults are returned (not an error).
func Load() (*Config, error) {
	return loadFrom(Path())
}

func loadFrom(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DataRoot()
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = filepath.Join(c.DataDir, "snapshots")
	}
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.BoltPort == 0 {
		c.BoltPort = DefaultBoltPort
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = DefaultHTTPPort
	}
	if c.HealthTimeout == 0 {
		c.HealthTimeout = Duration(DefaultHealthTimeout)
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = Duration(DefaultHealthInterval)
	}
}

// Save writes the config to disk, creating directories as needed.
func (c *Config) Save() error {
	p := Path()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// PortsFile returns the location of the port allocation table.
func (c *Config) PortsFile() string {
	return filepath.Join(c.DataDir, "ports.json")
}

// CatalogFile returns the location of the snapshot catalog database.
func (c *Config) CatalogFile() string {
	return filepath.Join(c.DataDir, "snapshots.db")
}
