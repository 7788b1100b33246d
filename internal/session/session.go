// Package session ties one local cache and one resolver together for the
// life of a client session. Create a Session at startup, pass it to
// whatever needs topics, and Close it on exit.
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/topicgraph/internal/cache"
	"github.com/lazypower/topicgraph/internal/metrics"
	"github.com/lazypower/topicgraph/internal/remote"
	"github.com/lazypower/topicgraph/internal/resolver"
	"github.com/lazypower/topicgraph/internal/topic"
)

// Config controls how a Session uses its cache.
type Config struct {
	// Limits bound each resolution. The zero value means
	// resolver.DefaultLimits.
	Limits resolver.Limits
	// ReadThrough routes the resolver's point lookups through the cache.
	ReadThrough bool
	// MaxItems bounds the cache when the janitor runs. Zero disables it.
	MaxItems        int
	JanitorInterval time.Duration
}

// Session is the explicit replacement for a process-wide cache singleton.
type Session struct {
	cache    *cache.Cache
	resolver *resolver.Resolver
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// New wires a resolver over store and, when cfg asks for it, starts the
// cache janitor. The cache's store is still opened lazily on first use.
func New(store remote.Store, c *cache.Cache, cfg Config, logger *zap.Logger, m *metrics.Collector) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}

	opts := []resolver.Option{
		resolver.WithLogger(logger.Named("resolver")),
		resolver.WithMetrics(m),
	}
	if cfg.Limits != (resolver.Limits{}) {
		opts = append(opts, resolver.WithLimits(cfg.Limits))
	}
	if cfg.ReadThrough {
		opts = append(opts, resolver.WithCache(c))
	}

	s := &Session{
		cache:    c,
		resolver: resolver.New(store, opts...),
		logger:   logger,
		metrics:  m,
	}
	if cfg.MaxItems > 0 && cfg.JanitorInterval > 0 {
		c.StartJanitor(cfg.JanitorInterval, cfg.MaxItems)
	}
	return s
}

// Metrics returns the collector shared by the cache and resolver.
func (s *Session) Metrics() *metrics.Collector {
	return s.metrics
}

// Resolve returns the tree of category topics below rootID.
func (s *Session) Resolve(ctx context.Context, rootID, category string) (*resolver.Tree, error) {
	return s.resolver.Resolve(ctx, rootID, category)
}

// CacheGet returns the cached record for id, or nil. Cache failures read
// as a miss.
func (s *Session) CacheGet(ctx context.Context, id string) *topic.Topic {
	t, err := s.cache.Get(ctx, id)
	if err != nil {
		s.degraded("get", err)
		return nil
	}
	return t
}

// CachePut stores t. Failures are logged and dropped.
func (s *Session) CachePut(ctx context.Context, t *topic.Topic) {
	if err := s.cache.Put(ctx, t); err != nil {
		s.degraded("put", err)
	}
}

// CacheDelete removes id from the cache.
func (s *Session) CacheDelete(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, id); err != nil {
		s.degraded("delete", err)
	}
}

// CacheClear empties the cache.
func (s *Session) CacheClear(ctx context.Context) {
	if err := s.cache.Clear(ctx); err != nil {
		s.degraded("clear", err)
	}
}

// CacheKeys lists cached IDs. Cache failures read as an empty cache.
func (s *Session) CacheKeys(ctx context.Context) []string {
	ids, err := s.cache.ListKeys(ctx)
	if err != nil {
		s.degraded("list_keys", err)
		return nil
	}
	return ids
}

// CacheEnforceCapacity evicts down to maxItems and reports how many
// records went.
func (s *Session) CacheEnforceCapacity(ctx context.Context, maxItems int) int {
	n, err := s.cache.EnforceCapacity(ctx, maxItems)
	if err != nil {
		s.degraded("evict", err)
		return 0
	}
	return n
}

// Logout drops everything cached for this session.
func (s *Session) Logout(ctx context.Context) {
	s.logger.Info("session logout, clearing topic cache")
	s.CacheClear(ctx)
}

// Close stops the janitor and releases the cache store.
func (s *Session) Close() error {
	return s.cache.Close()
}

func (s *Session) degraded(op string, err error) {
	s.metrics.CacheErrors.WithLabelValues(op).Inc()
	s.logger.Warn("topic cache degraded", zap.String("operation", op), zap.Error(err))
}
