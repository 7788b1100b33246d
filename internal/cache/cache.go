// Package cache implements the local topic cache: a persistent, bounded
// copy of remote topic records with least-recently-accessed eviction.
//
// The cache is strictly derived data. Every failure of the underlying
// store surfaces as ErrUnavailable so callers can fall back to the remote
// store; losing the cache loses locality, never data.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/topicgraph/internal/metrics"
	"github.com/lazypower/topicgraph/internal/store"
	"github.com/lazypower/topicgraph/internal/topic"
)

// ErrUnavailable marks storage-layer faults: store missing, quota, I/O.
var ErrUnavailable = errors.New("topic cache unavailable")

// ErrInvalidRecord is returned by Put for records without an ID.
var ErrInvalidRecord = errors.New("topic cache: record has no id")

// Opener creates the backing store. It is called at most once per Cache.
type Opener func() (*store.DB, error)

// Cache is the local topic cache. Create one per session with New; the
// backing store is opened on first use and shared by all callers.
type Cache struct {
	open    func() (*store.DB, error)
	opened  atomic.Bool
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time

	clockMu sync.Mutex
	last    time.Time

	keys    keyLocks
	evictMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides the wall clock used for recency stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache whose store is produced lazily by open.
func New(open Opener, opts ...Option) *Cache {
	c := &Cache{
		logger: zap.NewNop(),
		now:    time.Now,
		keys:   keyLocks{m: make(map[string]*keyLock)},
		stopCh: make(chan struct{}),
	}
	c.open = sync.OnceValues(func() (*store.DB, error) {
		db, err := open()
		if err != nil {
			c.logger.Warn("topic cache store failed to open", zap.Error(err))
			return nil, err
		}
		c.opened.Store(true)
		return db, nil
	})
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	return c
}

// OpenPath returns an Opener for a SQLite cache file.
func OpenPath(path string) Opener {
	return func() (*store.DB, error) { return store.Open(path) }
}

// OpenMemory returns an Opener for a throwaway in-memory cache.
func OpenMemory() Opener {
	return store.OpenMemory
}

func (c *Cache) db() (*store.DB, error) {
	db, err := c.open()
	if err != nil {
		return nil, unavailable("open", err)
	}
	return db, nil
}

// Get returns the cached record for id, or nil on a miss. A hit stamps
// LastAccessed before the record is returned.
func (c *Cache) Get(ctx context.Context, id string) (*topic.Topic, error) {
	db, err := c.db()
	if err != nil {
		return nil, err
	}

	unlock := c.keys.lock(id)
	defer unlock()

	t, err := db.TouchCached(ctx, id, c.stamp())
	if err != nil {
		return nil, unavailable("get", err)
	}
	if t == nil {
		c.metrics.CacheMisses.Inc()
		return nil, nil
	}
	c.metrics.CacheHits.Inc()
	return t, nil
}

// Put stores a copy of t, replacing any existing record with the same ID.
func (c *Cache) Put(ctx context.Context, t *topic.Topic) error {
	if t == nil || t.ID == "" {
		return ErrInvalidRecord
	}
	db, err := c.db()
	if err != nil {
		return err
	}

	unlock := c.keys.lock(t.ID)
	defer unlock()

	if err := db.PutCached(ctx, t, c.stamp()); err != nil {
		return unavailable("put", err)
	}
	return nil
}

// Delete removes id from the cache. Missing IDs are a no-op.
func (c *Cache) Delete(ctx context.Context, id string) error {
	db, err := c.db()
	if err != nil {
		return err
	}

	unlock := c.keys.lock(id)
	defer unlock()

	if err := db.DeleteCached(ctx, id); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Clear removes every record.
func (c *Cache) Clear(ctx context.Context) error {
	db, err := c.db()
	if err != nil {
		return err
	}

	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	n, err := db.ClearCache(ctx)
	if err != nil {
		return unavailable("clear", err)
	}
	c.logger.Debug("topic cache cleared", zap.Int("removed", n))
	return nil
}

// ListKeys returns every cached ID in ascending order.
func (c *Cache) ListKeys(ctx context.Context) ([]string, error) {
	db, err := c.db()
	if err != nil {
		return nil, err
	}
	ids, err := db.CachedIDs(ctx)
	if err != nil {
		return nil, unavailable("list keys", err)
	}
	return ids, nil
}

// Len returns the number of cached records.
func (c *Cache) Len(ctx context.Context) (int, error) {
	db, err := c.db()
	if err != nil {
		return 0, err
	}
	n, err := db.CountCached(ctx)
	if err != nil {
		return 0, unavailable("len", err)
	}
	return n, nil
}

// EnforceCapacity evicts least-recently-accessed records until at most
// maxItems remain and returns how many were evicted. Passes never overlap.
func (c *Cache) EnforceCapacity(ctx context.Context, maxItems int) (int, error) {
	db, err := c.db()
	if err != nil {
		return 0, err
	}

	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	evicted, err := db.EvictLeastRecent(ctx, maxItems)
	if err != nil {
		return 0, unavailable("evict", err)
	}
	if len(evicted) > 0 {
		c.metrics.CacheEvictions.Add(float64(len(evicted)))
		c.logger.Debug("topic cache evicted",
			zap.Int("evicted", len(evicted)),
			zap.Int("max_items", maxItems))
	}
	return len(evicted), nil
}

// StartJanitor enforces maxItems once now and then on every interval
// until Stop is called.
func (c *Cache) StartJanitor(interval time.Duration, maxItems int) {
	c.sweep(maxItems)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.sweep(maxItems)
			case <-c.stopCh:
				return
			}
		}
	}()
}

func (c *Cache) sweep(maxItems int) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := c.EnforceCapacity(ctx, maxItems); err != nil {
		c.logger.Warn("topic cache sweep failed", zap.Error(err))
	}
}

// Stop shuts down the janitor goroutine.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Close stops the janitor and closes the store if it was ever opened.
func (c *Cache) Close() error {
	c.Stop()
	if !c.opened.Load() {
		return nil
	}
	db, err := c.open()
	if err != nil {
		return nil
	}
	return db.Close()
}

// stamp returns the next recency stamp. Stamps strictly increase even when
// the wall clock stalls or steps backwards.
func (c *Cache) stamp() time.Time {
	c.clockMu.Lock()
	defer c.clockMu.Unlock()

	t := c.now().Round(0)
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
