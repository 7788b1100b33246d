package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/topicgraph/internal/resolver"
	"github.com/lazypower/topicgraph/internal/topic"
)

// resolve runs the hierarchy resolver for the {topicID} in r, writing the
// error response itself when it fails.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (*resolver.Tree, bool) {
	id := chi.URLParam(r, "topicID")
	category := r.URL.Query().Get("category")
	if category == "" {
		category = topic.TypePrompt
	}

	tree, err := s.sess.Resolve(r.Context(), id, category)
	if err != nil {
		if errors.Is(err, topic.ErrNotFound) {
			writeError(w, http.StatusNotFound, "topic not found")
			return nil, false
		}
		s.storeError(w, "resolve", err)
		return nil, false
	}
	return tree, true
}

// handleOutline serves the resolved subtree as a markdown outline, ready
// to paste into a prompt or a note.
func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	tree, ok := s.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outline":   tree.Outline(),
		"nodes":     tree.Nodes,
		"truncated": tree.Truncated,
	})
}
