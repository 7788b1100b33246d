package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lazypower/topicgraph/internal/remote"
	"github.com/lazypower/topicgraph/internal/session"
	"github.com/lazypower/topicgraph/internal/topic"
)

// Documents is the topic collection the document API serves: the
// resolver's read interface plus writes.
type Documents interface {
	remote.Store
	PutTopic(ctx context.Context, t *topic.Topic) error
	DeleteTopic(ctx context.Context, id string) error
}

// rootLister is implemented by collections that can list parentless topics.
type rootLister interface {
	ListRootTopics(ctx context.Context) ([]topic.Topic, error)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// Server is the topicgraph HTTP API server.
type Server struct {
	docs     Documents
	sess     *session.Session
	logger   *zap.Logger
	validate *validator.Validate
	router   chi.Router
	version  string
	started  time.Time
	origins  []string
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins enables CORS for browser clients on the given origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a Server over docs. Tree requests are resolved through sess.
func New(docs Documents, sess *session.Session, version string, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		docs:     docs,
		sess:     sess,
		logger:   logger,
		validate: validator.New(),
		version:  version,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Handle("/metrics", s.sess.Metrics().Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/topics", s.handleListTopics)
		r.Post("/topics", s.handleCreateTopic)
		r.Get("/topics/{topicID}", s.handleGetTopic)
		r.Put("/topics/{topicID}", s.handlePutTopic)
		r.Delete("/topics/{topicID}", s.handleDeleteTopic)
		r.Get("/topics/{topicID}/tree", s.handleTree)
		r.Get("/topics/{topicID}/outline", s.handleOutline)

		r.Get("/cache/keys", s.handleCacheKeys)
		r.Delete("/cache", s.handleCacheClear)
		r.Post("/cache/evict", s.handleCacheEvict)
	})

	s.router = r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeOK := true
	if p, ok := s.docs.(pinger); ok {
		if err := p.PingContext(r.Context()); err != nil {
			storeOK = false
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"store":   storeOK,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
