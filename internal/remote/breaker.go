package remote

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/lazypower/topicgraph/internal/topic"
)

// BreakerConfig holds configuration for the remote circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "remote-topics",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      10,
	}
}

// Breaker wraps a Store with a circuit breaker. Not-found answers are
// successes; an open circuit fails fast with a transient error.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker decorates next with a circuit breaker.
func NewBreaker(next Store, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("remote circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Callers abandoning a request say nothing about remote health.
			return err == nil || isNotFound(err) ||
				errors.Is(err, context.Canceled)
		},
	})
	return &Breaker{next: next, cb: cb}
}

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) GetTopic(ctx context.Context, id string) (*topic.Topic, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.next.GetTopic(ctx, id)
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	return v.(*topic.Topic), nil
}

func (b *Breaker) ChildTopics(ctx context.Context, parentID string, types []string) ([]topic.Topic, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.next.ChildTopics(ctx, parentID, types)
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	return v.([]topic.Topic), nil
}

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return topic.Transient(err)
	}
	return err
}
