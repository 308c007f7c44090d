// Package config provides configuration loading and structs for the kumitate server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Registry  RegistryConfig  `yaml:"registry"`
	Source    SourceConfig    `yaml:"source"`
	Publisher PublisherConfig `yaml:"publisher"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RegistryConfig selects and configures the query definition store.
type RegistryConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path"`   // sqlite database file
	DSN    string `yaml:"dsn"`    // postgres connection string
	Table  string `yaml:"table"`
}

// SourceConfig is the constant data source reference compiled into every
// document. It is configuration, never registry data.
type SourceConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Project string `yaml:"project"`
}

// PublisherConfig selects and configures the publish destination.
type PublisherConfig struct {
	Backend string       `yaml:"backend"` // "file" or "secret"
	Path    string       `yaml:"path"`    // file backend destination
	Secret  SecretConfig `yaml:"secret"`
}

// SecretConfig names the Secret Manager resource for the secret backend.
type SecretConfig struct {
	Project string `yaml:"project"`
	Name    string `yaml:"name"`
}

// WatchConfig holds registry change watch settings. Watching only applies to
// the sqlite registry driver.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// Load reads and parses the config file at path, applies defaults, and
// expands relative paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Registry.Path = expandPath(cfg.Registry.Path, configDir)
	cfg.Publisher.Path = expandPath(cfg.Publisher.Path, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Registry.Driver {
	case "sqlite":
		if c.Registry.Path == "" {
			return fmt.Errorf("registry.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Registry.DSN == "" {
			return fmt.Errorf("registry.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown registry.driver %q (want sqlite or postgres)", c.Registry.Driver)
	}

	switch c.Publisher.Backend {
	case "file":
		if c.Publisher.Path == "" {
			return fmt.Errorf("publisher.path is required for the file backend")
		}
	case "secret":
		if c.Publisher.Secret.Project == "" || c.Publisher.Secret.Name == "" {
			return fmt.Errorf("publisher.secret.project and publisher.secret.name are required for the secret backend")
		}
	default:
		return fmt.Errorf("unknown publisher.backend %q (want file or secret)", c.Publisher.Backend)
	}

	if c.Watch.Enabled && c.Registry.Driver != "sqlite" {
		return fmt.Errorf("watch.enabled requires the sqlite registry driver")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
