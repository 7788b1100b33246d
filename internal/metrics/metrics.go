// Package metrics holds the Prometheus collectors for the cache and resolver.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "topicgraph"

// Collector holds all Prometheus metrics for one process. Each Collector
// owns its registry so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheErrors    *prometheus.CounterVec
	CacheEvictions prometheus.Counter

	Resolves        *prometheus.CounterVec
	ResolveDuration prometheus.Histogram
	BranchesDropped prometheus.Counter
	Truncations     *prometheus.CounterVec
}

// New creates and registers a Collector.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of local topic cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of local topic cache misses",
		}),
		CacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Cache operations that failed and were degraded",
		}, []string{"operation"}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Topics evicted from the local cache",
		}),
		Resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolves_total",
			Help:      "Hierarchy resolutions by outcome",
		}, []string{"outcome"}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Hierarchy resolution latency",
			Buckets:   prometheus.DefBuckets,
		}),
		BranchesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "branches_dropped_total",
			Help:      "Child branches dropped after a failed fetch",
		}),
		Truncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "truncations_total",
			Help:      "Branches cut short by a structural guard",
		}, []string{"reason"}),
	}

	c.registry.MustRegister(
		c.CacheHits,
		c.CacheMisses,
		c.CacheErrors,
		c.CacheEvictions,
		c.Resolves,
		c.ResolveDuration,
		c.BranchesDropped,
		c.Truncations,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
