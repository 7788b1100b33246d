package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/topicgraph/internal/topic"
)

func testBreakerConfig() BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 3
	cfg.FailureThreshold = 0.5
	cfg.Timeout = time.Hour
	return cfg
}

func TestBreakerNotFoundDoesNotTrip(t *testing.T) {
	b := NewBreaker(NewMemory(), testBreakerConfig(), nil)
	ctx := context.Background()

	for range 10 {
		_, err := b.GetTopic(ctx, "missing")
		require.ErrorIs(t, err, topic.ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerTripsOnFailures(t *testing.T) {
	m := NewMemory(topic.Topic{ID: "r", Type: topic.TypeTopic})
	m.FailOn("r", topic.Transient(errors.New("503")))
	b := NewBreaker(m, testBreakerConfig(), nil)
	ctx := context.Background()

	for range 3 {
		_, err := b.GetTopic(ctx, "r")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	calls := m.Gets("r")
	_, err := b.GetTopic(ctx, "r")
	assert.ErrorIs(t, err, topic.ErrTransient)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, calls, m.Gets("r"), "open breaker must not reach the store")
}

func TestBreakerPassesResults(t *testing.T) {
	m := NewMemory(
		topic.Topic{ID: "r", Type: topic.TypeTopic},
		topic.Topic{ID: "k", Type: topic.TypePrompt, Parents: []string{"r"}},
	)
	b := NewBreaker(m, testBreakerConfig(), nil)
	ctx := context.Background()

	got, err := b.GetTopic(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "r", got.ID)

	kids, err := b.ChildTopics(ctx, "r", []string{topic.TypePrompt})
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, "k", kids[0].ID)
}
