package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/feedgraph/feedgraph/internal/store"
)

// Config selects and parameterizes the storage backend. Values come
// from an optional YAML file, overridden by environment variables so
// deployments can keep credentials out of files.
type Config struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`

	// DSN is the SQLite file path or the Postgres connection URL.
	DSN string `yaml:"dsn"`
}

// LoadConfig reads the config file at path (skipped when empty), then
// applies FEEDGRAPH_DRIVER and FEEDGRAPH_DSN overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{Driver: "sqlite"}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("FEEDGRAPH_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := os.Getenv("FEEDGRAPH_DSN"); v != "" {
		cfg.DSN = v
	}
	return cfg, nil
}

// openConfiguredStore resolves the effective config (file, env, then
// command-line overrides) and opens the backend.
func openConfiguredStore(opts *RootOptions, dsnOverride string) (store.Store, error) {
	cfg, err := LoadConfig(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Driver != "" {
		cfg.Driver = opts.Driver
	}
	if dsnOverride != "" {
		cfg.DSN = dsnOverride
	}
	return cfg.OpenStore()
}

// OpenStore opens the configured backend.
func (c Config) OpenStore() (store.Store, error) {
	if c.DSN == "" {
		return nil, fmt.Errorf("no dsn configured: set --db, FEEDGRAPH_DSN, or dsn in the config file")
	}
	switch c.Driver {
	case "sqlite":
		return store.OpenSQLite(c.DSN)
	case "postgres":
		return store.OpenPostgres(c.DSN)
	default:
		return nil, fmt.Errorf("unknown driver %q: must be sqlite or postgres", c.Driver)
	}
}
