// Package resolver expands a topic and its descendants from the flat remote
// store into an in-memory tree.
//
// The parent relation forms a DAG, so the tree is the depth-first expansion
// of that DAG from one root: a topic reachable along two paths appears
// twice. Expansion is bounded by Limits and guarded against cycles; a
// branch that hits a guard is cut short and marked, and a branch whose
// fetch fails is dropped. Only failures at the root fail the resolution.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/topicgraph/internal/metrics"
	"github.com/lazypower/topicgraph/internal/remote"
	"github.com/lazypower/topicgraph/internal/topic"
)

// TopicCache is the read-through cache the resolver may consult for point
// lookups. Errors from it are logged and otherwise ignored.
type TopicCache interface {
	Get(ctx context.Context, id string) (*topic.Topic, error)
	Put(ctx context.Context, t *topic.Topic) error
}

// Resolver builds topic trees from a remote.Store.
type Resolver struct {
	store   remote.Store
	cache   TopicCache
	limits  Limits
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache enables read-through caching of point lookups.
func WithCache(c TopicCache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(r *Resolver) { r.limits = l.withDefaults() }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Resolver) { r.metrics = m }
}

// New creates a Resolver over store.
func New(store remote.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		limits: DefaultLimits(),
		logger: zap.NewNop(),
		tracer: otel.Tracer("github.com/lazypower/topicgraph/internal/resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	return r
}

// Limits returns the limits in effect.
func (r *Resolver) Limits() Limits {
	return r.limits
}

// Resolve fetches rootID and expands every descendant whose type is
// category. It returns topic.ErrNotFound if the root does not exist, the
// root's fetch error if that fails, and ctx.Err() if ctx is done before the
// tree is complete. Nothing partial is returned alongside an error.
func (r *Resolver) Resolve(ctx context.Context, rootID, category string) (*Tree, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "resolver.Resolve", trace.WithAttributes(
		attribute.String("topic.id", rootID),
		attribute.String("topic.category", category),
	))
	defer span.End()

	tree, err := r.resolve(ctx, rootID, category)
	r.metrics.ResolveDuration.Observe(time.Since(start).Seconds())

	outcome := "ok"
	switch {
	case err == nil:
		if tree.Truncated || tree.Dropped > 0 {
			outcome = "partial"
		}
		span.SetAttributes(
			attribute.Int("tree.nodes", tree.Nodes),
			attribute.Int("tree.dropped", tree.Dropped),
			attribute.Bool("tree.truncated", tree.Truncated),
		)
	case errors.Is(err, topic.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
		span.SetStatus(codes.Error, err.Error())
	default:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	r.metrics.Resolves.WithLabelValues(outcome).Inc()

	r.logger.Debug("resolve finished",
		zap.String("root_id", rootID),
		zap.String("category", category),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", time.Since(start)))
	return tree, err
}

func (r *Resolver) resolve(ctx context.Context, rootID, category string) (*Tree, error) {
	root, err := r.fetch(ctx, rootID)
	if err != nil {
		if errors.Is(err, topic.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch root %s: %w", rootID, err)
	}

	run := &run{r: r, category: category}
	run.reserved.Store(1)
	node := run.expand(ctx, root, []string{root.ID}, 0)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tree{
		Root:      node,
		Category:  category,
		Nodes:     int(run.resolved.Load()) + 1,
		Truncated: run.truncated.Load(),
		Dropped:   int(run.dropped.Load()),
	}, nil
}

// run is the state shared by every branch of one resolution.
type run struct {
	r        *Resolver
	category string

	reserved  atomic.Int64
	resolved  atomic.Int64
	dropped   atomic.Int64
	truncated atomic.Bool
}

// reserve claims one slot of the node budget.
func (run *run) reserve() bool {
	max := int64(run.r.limits.MaxNodes)
	if run.reserved.Add(1) > max {
		run.reserved.Add(-1)
		return false
	}
	return true
}

func (run *run) truncate(n *Node, reason Reason) {
	if n.markTruncated(reason) {
		run.truncated.Store(true)
		run.r.metrics.Truncations.WithLabelValues(string(reason)).Inc()
		run.r.logger.Debug("branch truncated",
			zap.String("topic_id", n.ID),
			zap.String("reason", string(reason)))
	}
}

// expand attaches t's resolvable children. path holds the IDs from the
// root down to and including t.
func (run *run) expand(ctx context.Context, t *topic.Topic, path []string, depth int) *Node {
	r := run.r
	n := &Node{Topic: *t}
	n.LastAccessed = time.Time{}

	kids, err := r.children(ctx, t.ID, run.category)
	if err != nil {
		if ctx.Err() != nil {
			return n
		}
		// Every branch below n is unknown; record it as one dropped branch.
		r.logger.Warn("child query failed, dropping branches",
			zap.String("topic_id", t.ID), zap.Error(err))
		n.Dropped = 1
		run.dropped.Add(1)
		r.metrics.BranchesDropped.Inc()
		return n
	}
	if len(kids) == 0 {
		return n
	}
	if depth >= r.limits.MaxDepth {
		run.truncate(n, ReasonDepth)
		return n
	}
	if len(kids) > r.limits.MaxFanOut {
		kids = kids[:r.limits.MaxFanOut]
		run.truncate(n, ReasonFanOut)
	}

	ids := make([]string, 0, len(kids))
	for _, k := range kids {
		if slices.Contains(path, k.ID) {
			r.logger.Warn("cycle in topic graph",
				zap.String("topic_id", t.ID),
				zap.String("ancestor_id", k.ID))
			run.truncate(n, ReasonCycle)
			continue
		}
		if !run.reserve() {
			run.truncate(n, ReasonNodes)
			break
		}
		ids = append(ids, k.ID)
	}

	results := make([]*Node, len(ids))
	var g errgroup.Group
	g.SetLimit(r.limits.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			child, err := r.fetch(ctx, id)
			if err != nil {
				// A dropped branch does not spend the node budget.
				run.reserved.Add(-1)
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Info("dropping child branch",
					zap.String("parent_id", t.ID),
					zap.String("topic_id", id),
					zap.Error(err))
				return nil
			}
			childPath := append(slices.Clip(path), id)
			results[i] = run.expand(ctx, child, childPath, depth+1)
			run.resolved.Add(1)
			return nil
		})
	}
	g.Wait()
	if ctx.Err() != nil {
		// The whole tree is discarded; nothing was dropped.
		return n
	}

	for _, c := range results {
		if c == nil {
			n.Dropped++
			continue
		}
		n.Children = append(n.Children, c)
	}
	if n.Dropped > 0 {
		run.dropped.Add(int64(n.Dropped))
		r.metrics.BranchesDropped.Add(float64(n.Dropped))
	}
	return n
}

// fetch loads one topic, through the cache when one is configured.
func (r *Resolver) fetch(ctx context.Context, id string) (*topic.Topic, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.fetch", trace.WithAttributes(attribute.String("topic.id", id)))
	defer span.End()

	if r.cache != nil {
		t, err := r.cache.Get(ctx, id)
		if err != nil {
			r.metrics.CacheErrors.WithLabelValues("get").Inc()
			r.logger.Debug("cache get failed, using remote", zap.String("topic_id", id), zap.Error(err))
		} else if t != nil {
			return t, nil
		}
	}

	fctx, cancel := r.fetchContext(ctx)
	defer cancel()
	t, err := r.store.GetTopic(fctx, id)
	if err != nil {
		if !errors.Is(err, topic.ErrNotFound) {
			span.RecordError(err)
		}
		return nil, deadlineTransient(fctx, err)
	}

	if r.cache != nil {
		if err := r.cache.Put(ctx, t); err != nil {
			r.metrics.CacheErrors.WithLabelValues("put").Inc()
			r.logger.Debug("cache put failed", zap.String("topic_id", id), zap.Error(err))
		}
	}
	return t, nil
}

func (r *Resolver) children(ctx context.Context, parentID, category string) ([]topic.Topic, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.children", trace.WithAttributes(attribute.String("topic.parent_id", parentID)))
	defer span.End()

	fctx, cancel := r.fetchContext(ctx)
	defer cancel()
	kids, err := r.store.ChildTopics(fctx, parentID, []string{category})
	if err != nil {
		span.RecordError(err)
		return nil, deadlineTransient(fctx, err)
	}
	span.SetAttributes(attribute.Int("topic.children", len(kids)))
	return kids, nil
}

func (r *Resolver) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.limits.FetchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.limits.FetchTimeout)
}

// deadlineTransient marks errors caused by a per-fetch timeout as transient.
func deadlineTransient(fctx context.Context, err error) error {
	if errors.Is(fctx.Err(), context.DeadlineExceeded) {
		return topic.Transient(err)
	}
	return err
}
