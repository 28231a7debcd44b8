package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvandessel/ab-test/internal/experiment"
	"github.com/nvandessel/ab-test/internal/store"
)

// clearEnv unsets every ABTEST_* override for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ABTEST_PREFIX", "ABTEST_STORE", "ABTEST_STORE_DIR", "ABTEST_LOG_LEVEL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Prefix != "ab-test-" {
		t.Errorf("Prefix = %q, want ab-test-", cfg.Prefix)
	}
	if cfg.Storage.Backend != store.BackendSQLite {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Experiments == nil || len(cfg.Experiments) != 0 {
		t.Errorf("Experiments = %v, want empty collection", cfg.Experiments)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiments.yaml")
	writeConfig(t, path, `
prefix: exp-
storage:
  backend: file
logging:
  level: debug
experiments:
  signup-cta:
    a: Sign up
    b: Join now
  always-a:
    distribution: 1
    a: Always
    b: Never
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Prefix != "exp-" {
		t.Errorf("Prefix = %q, want exp-", cfg.Prefix)
	}
	if cfg.Storage.Backend != store.BackendFile {
		t.Errorf("Storage.Backend = %q, want file", cfg.Storage.Backend)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}

	want := experiment.Collection{
		"signup-cta": {A: "Sign up", B: "Join now"},
		"always-a":   {Distribution: 1, A: "Always", B: "Never"},
	}
	if diff := cmp.Diff(want, cfg.Experiments); diff != "" {
		t.Errorf("Experiments mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	t.Setenv("CTA_TEXT", "Start free trial")
	path := filepath.Join(t.TempDir(), "experiments.yaml")
	writeConfig(t, path, `
experiments:
  cta:
    a: ${CTA_TEXT}
    b: plain
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if got := cfg.Experiments["cta"].A; got != "Start free trial" {
		t.Errorf("A = %q, want expanded value", got)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeConfig(t, path, "experiments: [not, a, map")
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()

	cfg, err := Load(root, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Dir != store.LocalPath(root) {
		t.Errorf("Storage.Dir = %q, want %q", cfg.Storage.Dir, store.LocalPath(root))
	}
	if len(cfg.Experiments) != 0 {
		t.Errorf("Experiments = %v, want empty", cfg.Experiments)
	}
}

func TestLoad_ExplicitMissingPath(t *testing.T) {
	clearEnv(t)
	if _, err := Load(t.TempDir(), "/nonexistent/experiments.yaml"); err == nil {
		t.Error("expected error for explicit missing config path")
	}
}

func TestLoad_DefaultLocation(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	writeConfig(t, Path(root), `
experiments:
  hero:
    a: One
    b: Two
`)

	cfg, err := Load(root, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := cfg.Experiments["hero"]; !ok {
		t.Error("expected hero experiment from default location")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ABTEST_PREFIX", "env-")
	t.Setenv("ABTEST_STORE", "memory")
	t.Setenv("ABTEST_STORE_DIR", "/var/lib/abtest")
	t.Setenv("ABTEST_LOG_LEVEL", "trace")

	cfg, err := Load(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Prefix != "env-" {
		t.Errorf("Prefix = %q, want env-", cfg.Prefix)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Storage.Backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Storage.Dir != "/var/lib/abtest" {
		t.Errorf("Storage.Dir = %q, want /var/lib/abtest", cfg.Storage.Dir)
	}
	if cfg.Logging.Level != "trace" {
		t.Errorf("Logging.Level = %q, want trace", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty backend", func(c *Config) { c.Storage.Backend = "" }, ""},
		{"file backend", func(c *Config) { c.Storage.Backend = "file" }, ""},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "invalid storage backend"},
		{"unknown level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"malformed experiment is not validated", func(c *Config) {
			c.Experiments["broken"] = experiment.Spec{Distribution: 7}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "experiments.yaml")
	cfg := Default()
	cfg.Experiments["signup-cta"] = experiment.Spec{A: "Sign up", B: "Join now"}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestCarrier(t *testing.T) {
	cfg := Default()
	cfg.Prefix = ""
	cfg.Experiments["hero"] = experiment.Spec{A: "One", B: "Two"}

	c := cfg.Carrier()
	if c.Prefix() != experiment.DefaultPrefix {
		t.Errorf("Prefix() = %q, want default", c.Prefix())
	}
	if _, ok := c.Lookup("hero"); !ok {
		t.Error("carrier missing hero experiment")
	}
}

func TestOpenStore(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = store.BackendMemory
	s, err := cfg.OpenStore()
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*store.MemoryStore); !ok {
		t.Errorf("OpenStore() = %T, want *store.MemoryStore", s)
	}
}
