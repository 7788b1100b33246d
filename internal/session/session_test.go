package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/topicgraph/internal/cache"
	"github.com/lazypower/topicgraph/internal/metrics"
	"github.com/lazypower/topicgraph/internal/remote"
	"github.com/lazypower/topicgraph/internal/resolver"
	"github.com/lazypower/topicgraph/internal/store"
	"github.com/lazypower/topicgraph/internal/topic"
)

func seeded() *remote.Memory {
	return remote.NewMemory(
		topic.Topic{ID: "r", Title: "Root", Type: topic.TypeTopic},
		topic.Topic{ID: "p", Title: "Prompt", Type: topic.TypePrompt, Parents: []string{"r"}},
	)
}

func testSession(t *testing.T, c *cache.Cache, cfg Config) (*Session, *metrics.Collector) {
	t.Helper()
	m := metrics.New()
	s := New(seeded(), c, cfg, nil, m)
	t.Cleanup(func() { s.Close() })
	return s, m
}

func TestSessionResolveAndCache(t *testing.T) {
	s, _ := testSession(t, cache.New(cache.OpenMemory()), Config{Limits: resolver.DefaultLimits(), ReadThrough: true})
	ctx := context.Background()

	tree, err := s.Resolve(ctx, "r", topic.TypePrompt)
	require.NoError(t, err)
	require.Len(t, tree.Root.Children, 1)

	assert.Equal(t, []string{"p", "r"}, s.CacheKeys(ctx), "read-through filled the cache")
	got := s.CacheGet(ctx, "p")
	require.NotNil(t, got)
	assert.Equal(t, "Prompt", got.Title)

	s.CacheDelete(ctx, "p")
	assert.Nil(t, s.CacheGet(ctx, "p"))

	s.Logout(ctx)
	assert.Empty(t, s.CacheKeys(ctx))
}

func TestSessionWithoutReadThroughLeavesCacheAlone(t *testing.T) {
	s, _ := testSession(t, cache.New(cache.OpenMemory()), Config{})
	ctx := context.Background()

	tree, err := s.Resolve(ctx, "r", topic.TypePrompt)
	require.NoError(t, err)
	require.Len(t, tree.Root.Children, 1)
	assert.Equal(t, "p", tree.Root.Children[0].ID)
	assert.False(t, tree.Truncated)
	assert.Empty(t, s.CacheKeys(ctx))
}

func TestSessionExplicitRootOnlyLimits(t *testing.T) {
	limits := resolver.DefaultLimits()
	limits.MaxDepth = 0
	s, _ := testSession(t, cache.New(cache.OpenMemory()), Config{Limits: limits})

	tree, err := s.Resolve(context.Background(), "r", topic.TypePrompt)
	require.NoError(t, err)
	assert.Empty(t, tree.Root.Children)
	assert.Equal(t, []resolver.Reason{resolver.ReasonDepth}, tree.Root.Reasons)
}

func TestSessionEnforceCapacity(t *testing.T) {
	s, _ := testSession(t, cache.New(cache.OpenMemory()), Config{})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		s.CachePut(ctx, &topic.Topic{ID: id, Type: topic.TypeTopic})
	}
	assert.Equal(t, 1, s.CacheEnforceCapacity(ctx, 2))
	assert.Equal(t, []string{"b", "c"}, s.CacheKeys(ctx))
}

func TestSessionDegradesOnUnavailableCache(t *testing.T) {
	broken := cache.New(func() (*store.DB, error) { return nil, errors.New("quota exceeded") })
	s, m := testSession(t, broken, Config{ReadThrough: true})
	ctx := context.Background()

	assert.Nil(t, s.CacheGet(ctx, "r"))
	s.CachePut(ctx, &topic.Topic{ID: "r", Type: topic.TypeTopic})
	s.CacheDelete(ctx, "r")
	s.CacheClear(ctx)
	assert.Nil(t, s.CacheKeys(ctx))
	assert.Zero(t, s.CacheEnforceCapacity(ctx, 1))
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `topicgraph_cache_errors_total{operation="put"} 1`)
	assert.Contains(t, rec.Body.String(), `topicgraph_cache_errors_total{operation="evict"} 1`)

	tree, err := s.Resolve(ctx, "r", topic.TypePrompt)
	require.NoError(t, err, "resolution falls back to the remote store")
	require.Len(t, tree.Root.Children, 1)
	assert.Equal(t, "p", tree.Root.Children[0].ID)
	assert.False(t, tree.Truncated)
}

func TestSessionStartsJanitor(t *testing.T) {
	c := cache.New(cache.OpenMemory())
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, c.Put(ctx, &topic.Topic{ID: id, Type: topic.TypeTopic}))
	}

	s, _ := testSession(t, c, Config{MaxItems: 2, JanitorInterval: time.Hour})
	assert.Equal(t, []string{"c", "d"}, s.CacheKeys(ctx), "janitor sweeps once at start")
}
