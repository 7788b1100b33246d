package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lazypower/topicgraph/internal/resolver"
)

// Backends accepted in Remote.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
	BackendHTTP     = "http"
)

// Config holds all topicgraph configuration. Values come from Default(),
// then the YAML file, then TOPICGRAPH_* environment variables.
type Config struct {
	Server   ServerConfig    `yaml:"server" envPrefix:"TOPICGRAPH_SERVER_"`
	Database DatabaseConfig  `yaml:"database" envPrefix:"TOPICGRAPH_DATABASE_"`
	Cache    CacheConfig     `yaml:"cache" envPrefix:"TOPICGRAPH_CACHE_"`
	Resolver resolver.Limits `yaml:"resolver" envPrefix:"TOPICGRAPH_RESOLVER_"`
	Remote   RemoteConfig    `yaml:"remote" envPrefix:"TOPICGRAPH_REMOTE_"`
	Log      LogConfig       `yaml:"log" envPrefix:"TOPICGRAPH_LOG_"`
}

type ServerConfig struct {
	Bind           string   `yaml:"bind" env:"BIND" validate:"required"`
	Port           int      `yaml:"port" env:"PORT" validate:"gte=1,lte=65535"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"PATH"` // empty: store.DefaultDBPath()
}

type CacheConfig struct {
	Path            string        `yaml:"path" env:"PATH"` // empty: store.DefaultCachePath()
	MaxItems        int           `yaml:"max_items" env:"MAX_ITEMS" validate:"gte=0"`
	JanitorInterval time.Duration `yaml:"janitor_interval" env:"JANITOR_INTERVAL" validate:"gte=0"`
	ReadThrough     bool          `yaml:"read_through" env:"READ_THROUGH"`
}

// RemoteConfig selects where topic documents live.
type RemoteConfig struct {
	Backend  string `yaml:"backend" env:"BACKEND" validate:"oneof=sqlite dynamodb http"`
	URL      string `yaml:"url" env:"URL" validate:"omitempty,url"`
	Table    string `yaml:"table" env:"TABLE" validate:"required_if=Backend dynamodb"`
	Region   string `yaml:"region" env:"REGION"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Breaker  bool   `yaml:"breaker" env:"BREAKER"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Cache: CacheConfig{
			MaxItems:        1000,
			JanitorInterval: 5 * time.Minute,
			ReadThrough:     true,
		},
		Resolver: resolver.DefaultLimits(),
		Remote: RemoteConfig{
			Backend: BackendSQLite,
			Region:  "us-east-1",
			Breaker: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (a missing
// file is not an error), and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// RemoteURL is the base URL of an http backend, falling back to this
// process's own listen address.
func (c *Config) RemoteURL() string {
	if c.Remote.URL != "" {
		return c.Remote.URL
	}
	return "http://" + c.ListenAddr()
}

// Logger builds the process logger.
func (c *Config) Logger() (*zap.Logger, error) {
	var zc zap.Config
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	lvl, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc.Level = lvl
	return zc.Build()
}
