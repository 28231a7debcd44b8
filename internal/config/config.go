// Package config provides configuration loading for abtest.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/ab-test/internal/experiment"
	"github.com/nvandessel/ab-test/internal/store"
	"gopkg.in/yaml.v3"
)

// FileName is the config file name inside the storage directory.
const FileName = "experiments.yaml"

// Config contains all abtest configuration settings.
type Config struct {
	// Prefix is prepended to every variant ID. Empty selects experiment.DefaultPrefix.
	Prefix string `json:"prefix" yaml:"prefix"`

	// Storage selects where assignments are persisted.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging contains settings for operational and assignment logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Experiments is the experiment collection handed to the resolver.
	// It is never validated here; see experiment.Spec.Lint.
	Experiments experiment.Collection `json:"experiments" yaml:"experiments"`
}

// StorageConfig configures the assignment store.
type StorageConfig struct {
	// Backend is one of "memory", "file", "sqlite" (default).
	Backend string `json:"backend" yaml:"backend"`

	// Dir is the storage directory. Empty means <root>/.abtest.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables assignment tracing to .abtest/assignments.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults and no experiments.
func Default() *Config {
	return &Config{
		Prefix: experiment.DefaultPrefix,
		Storage: StorageConfig{
			Backend: store.BackendSQLite,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Experiments: experiment.Collection{},
	}
}

// Path returns the default config path for a project root.
func Path(root string) string {
	return filepath.Join(store.LocalPath(root), FileName)
}

// Load loads configuration for a project root.
// Order: defaults -> path (or <root>/.abtest/experiments.yaml) -> environment variables.
// A missing file at the default location is not an error; a missing explicit path is.
func Load(root, path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = Path(root)
	}

	if _, statErr := os.Stat(path); statErr == nil || explicit {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileCfg
	}

	applyEnvOverrides(cfg)

	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = store.LocalPath(root)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Experiments == nil {
		cfg.Experiments = experiment.Collection{}
	}

	for name, spec := range cfg.Experiments {
		spec.A = expandEnvVars(spec.A)
		spec.B = expandEnvVars(spec.B)
		cfg.Experiments[name] = spec
	}

	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks the storage and logging settings.
// Experiments are deliberately left alone.
func (c *Config) Validate() error {
	validBackends := map[string]bool{"": true, store.BackendMemory: true, store.BackendFile: true, store.BackendSQLite: true}
	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("invalid storage backend: %s (valid: memory, file, sqlite)", c.Storage.Backend)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Carrier builds the experiment carrier for this configuration.
func (c *Config) Carrier() *experiment.Carrier {
	return experiment.NewCarrier(c.Experiments, c.Prefix)
}

// OpenStore opens the configured assignment store.
func (c *Config) OpenStore() (store.Store, error) {
	return store.Open(c.Storage.Backend, c.Storage.Dir)
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("ABTEST_PREFIX"); ok {
		cfg.Prefix = v
	}
	if v := os.Getenv("ABTEST_STORE"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("ABTEST_STORE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("ABTEST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
