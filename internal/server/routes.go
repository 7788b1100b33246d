package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/topicgraph/internal/topic"
)

// handleListTopics serves the child-candidate query
// (?parent=X&type=a&type=b) or, without a parent, the root topics.
func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	parent := q.Get("parent")

	var (
		topics []topic.Topic
		err    error
	)
	if parent == "" {
		lister, ok := s.docs.(rootLister)
		if !ok {
			writeError(w, http.StatusBadRequest, "parent parameter required")
			return
		}
		topics, err = lister.ListRootTopics(r.Context())
	} else {
		topics, err = s.docs.ChildTopics(r.Context(), parent, q["type"])
	}
	if err != nil {
		s.storeError(w, "list topics", err)
		return
	}
	if topics == nil {
		topics = []topic.Topic{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (s *Server) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	t, err := s.docs.GetTopic(r.Context(), chi.URLParam(r, "topicID"))
	if err != nil {
		s.storeError(w, "get topic", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	t, ok := s.decodeTopic(w, r)
	if !ok {
		return
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.writeTopic(w, r, t, http.StatusCreated)
}

func (s *Server) handlePutTopic(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "topicID")
	t, ok := s.decodeTopic(w, r)
	if !ok {
		return
	}
	if t.ID != "" && t.ID != id {
		writeError(w, http.StatusBadRequest, "id in body does not match path")
		return
	}
	t.ID = id
	s.writeTopic(w, r, t, http.StatusOK)
}

func (s *Server) decodeTopic(w http.ResponseWriter, r *http.Request) (*topic.Topic, bool) {
	var t topic.Topic
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return nil, false
	}
	// Only the local cache stamps access times.
	t.LastAccessed = time.Time{}
	return &t, true
}

func (s *Server) writeTopic(w http.ResponseWriter, r *http.Request, t *topic.Topic, status int) {
	if err := s.validate.Struct(t); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.docs.PutTopic(r.Context(), t); err != nil {
		s.storeError(w, "put topic", err)
		return
	}
	// The local copy is now stale.
	s.sess.CacheDelete(r.Context(), t.ID)
	writeJSON(w, status, t)
}

func (s *Server) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "topicID")
	if err := s.docs.DeleteTopic(r.Context(), id); err != nil {
		s.storeError(w, "delete topic", err)
		return
	}
	s.sess.CacheDelete(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	tree, ok := s.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleCacheKeys(w http.ResponseWriter, r *http.Request) {
	keys := s.sess.CacheKeys(r.Context())
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys, "count": len(keys)})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.sess.Logout(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleCacheEvict(w http.ResponseWriter, r *http.Request) {
	max, err := strconv.Atoi(r.URL.Query().Get("max"))
	if err != nil || max < 0 {
		writeError(w, http.StatusBadRequest, "max must be a non-negative integer")
		return
	}
	n := s.sess.CacheEnforceCapacity(r.Context(), max)
	writeJSON(w, http.StatusOK, map[string]int{"evicted": n})
}

// storeError maps remote store errors onto status codes.
func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, topic.ErrNotFound):
		writeError(w, http.StatusNotFound, "topic not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, topic.ErrTransient):
		s.logger.Warn(op+" failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
