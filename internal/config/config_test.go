package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := cfg.ListenAddr(); got != "127.0.0.1:37778" {
		t.Errorf("listen addr = %q", got)
	}
	if got := cfg.RemoteURL(); got != "http://127.0.0.1:37778" {
		t.Errorf("remote url = %q", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cache.MaxItems != Default().Cache.MaxItems {
		t.Errorf("max items = %d", cfg.Cache.MaxItems)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topicgraph.yaml")
	data := `
server:
  port: 9000
cache:
  max_items: 50
  janitor_interval: 30s
resolver:
  max_depth: 3
  fetch_timeout: 2s
remote:
  backend: dynamodb
  table: topics
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TOPICGRAPH_SERVER_PORT", "9100")
	t.Setenv("TOPICGRAPH_RESOLVER_MAX_NODES", "42")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("env should override file port, got %d", cfg.Server.Port)
	}
	if cfg.Server.Bind != "127.0.0.1" {
		t.Errorf("unset keys keep defaults, got bind %q", cfg.Server.Bind)
	}
	if cfg.Cache.MaxItems != 50 || cfg.Cache.JanitorInterval != 30*time.Second {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Resolver.MaxDepth != 3 || cfg.Resolver.MaxNodes != 42 || cfg.Resolver.FetchTimeout != 2*time.Second {
		t.Errorf("resolver = %+v", cfg.Resolver)
	}
	if cfg.Remote.Backend != BackendDynamoDB || cfg.Remote.Table != "topics" {
		t.Errorf("remote = %+v", cfg.Remote)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend":      func(c *Config) { c.Remote.Backend = "mongo" },
		"dynamodb no table":    func(c *Config) { c.Remote.Backend = BackendDynamoDB },
		"bad port":             func(c *Config) { c.Server.Port = 0 },
		"bad log level":        func(c *Config) { c.Log.Level = "loud" },
		"zero concurrency":     func(c *Config) { c.Resolver.Concurrency = 0 },
		"negative max items":   func(c *Config) { c.Cache.MaxItems = -1 },
		"malformed remote url": func(c *Config) { c.Remote.URL = "not a url" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"
	logger, err := cfg.Logger()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	if logger.Core().Enabled(zap.DebugLevel) {
		t.Error("debug should be disabled at warn level")
	}
}
