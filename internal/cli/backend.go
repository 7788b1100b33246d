package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/topicgraph/internal/cache"
	"github.com/lazypower/topicgraph/internal/config"
	"github.com/lazypower/topicgraph/internal/metrics"
	"github.com/lazypower/topicgraph/internal/remote"
	"github.com/lazypower/topicgraph/internal/remote/dynamo"
	"github.com/lazypower/topicgraph/internal/server"
	"github.com/lazypower/topicgraph/internal/session"
	"github.com/lazypower/topicgraph/internal/store"
)

// loadConfig reads --config, or ~/.topicgraph/config.yaml when it exists.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".topicgraph", "config.yaml")
		}
	}
	return config.Load(path)
}

// backend is the remote topic store a command talks to, opened from config.
type backend struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Collector

	// docs is nil when the backend is read-only (http).
	docs  server.Documents
	store remote.Store

	// client is set for the http backend.
	client *remote.Client

	closers []func() error
}

// openBackend loads config and connects to the configured remote store.
func openBackend(ctx context.Context) (*backend, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}

	b := &backend{cfg: cfg, logger: logger, metrics: metrics.New()}
	switch cfg.Remote.Backend {
	case config.BackendSQLite:
		dbPath := cfg.Database.Path
		if dbPath == "" {
			if dbPath, err = store.DefaultDBPath(); err != nil {
				return nil, fmt.Errorf("resolve db path: %w", err)
			}
		}
		db, err := store.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		b.docs, b.store = db, db
		b.closers = append(b.closers, db.Close)

	case config.BackendDynamoDB:
		ds, err := dynamo.New(ctx, dynamo.Config{
			Table:    cfg.Remote.Table,
			Region:   cfg.Remote.Region,
			Endpoint: cfg.Remote.Endpoint,
		}, logger.Named("dynamo"))
		if err != nil {
			return nil, err
		}
		b.docs, b.store = ds, ds

	case config.BackendHTTP:
		b.client = remote.NewClient(cfg.RemoteURL())
		b.store = b.client

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Remote.Backend)
	}

	if cfg.Remote.Breaker {
		b.store = remote.NewBreaker(b.store, remote.DefaultBreakerConfig(), logger.Named("breaker"))
	}
	b.closers = append(b.closers, func() error {
		logger.Sync()
		return nil
	})
	return b, nil
}

// reachable fails fast when an http backend has no server behind it.
func (b *backend) reachable(ctx context.Context) error {
	if b.client == nil || b.client.Healthy(ctx) {
		return nil
	}
	return fmt.Errorf("no topicgraph server at %s (start one with `topicgraph serve`)", b.cfg.RemoteURL())
}

// documents returns the writable document collection.
func (b *backend) documents() (server.Documents, error) {
	if b.docs == nil {
		return nil, fmt.Errorf("backend %q is read-only", b.cfg.Remote.Backend)
	}
	return b.docs, nil
}

// openSession builds the topic cache and session over b's store.
func (b *backend) openSession(readThrough, janitor bool) (*session.Session, error) {
	cachePath := b.cfg.Cache.Path
	if cachePath == "" {
		var err error
		if cachePath, err = store.DefaultCachePath(); err != nil {
			return nil, fmt.Errorf("resolve cache path: %w", err)
		}
	}
	c := cache.New(cache.OpenPath(cachePath),
		cache.WithLogger(b.logger.Named("cache")),
		cache.WithMetrics(b.metrics))

	cfg := session.Config{
		Limits:      b.cfg.Resolver,
		ReadThrough: readThrough,
	}
	if janitor {
		cfg.MaxItems = b.cfg.Cache.MaxItems
		cfg.JanitorInterval = b.cfg.Cache.JanitorInterval
	}
	sess := session.New(b.store, c, cfg, b.logger, b.metrics)
	b.closers = append(b.closers, sess.Close)
	return sess, nil
}

// Close releases everything opened for the command, last opened first.
func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

type sessionCmd struct {
	b    *backend
	sess *session.Session
}

// withSession opens the backend and a cache-only session around fn.
func withSession(cmd *cobra.Command, fn func(sessionCmd) error) error {
	b, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer b.Close()

	sess, err := b.openSession(false, false)
	if err != nil {
		return err
	}
	return fn(sessionCmd{b: b, sess: sess})
}
