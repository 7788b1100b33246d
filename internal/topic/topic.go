// Package topic defines the typed topic record shared by the remote store,
// the local cache and the hierarchy resolver.
package topic

import (
	"slices"
	"time"
)

// Known topic types. The set is open; these are the ones the UI filters on.
const (
	TypeTopic   = "topic"
	TypePrompt  = "prompt"
	TypeComment = "comment"
)

// Topic is a node in the topic graph as stored remotely.
// Parents is a set: a topic may hang under several parents.
type Topic struct {
	ID        string    `json:"id" validate:"required,max=128"`
	Title     string    `json:"title" validate:"max=512"`
	Type      string    `json:"topic_type" validate:"required,max=64"`
	Parents   []string  `json:"parents,omitempty" validate:"dive,required"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// LastAccessed is written only by the local cache.
	LastAccessed time.Time `json:"last_accessed,omitzero"`
}

// HasParent reports whether id is one of t's parents.
func (t *Topic) HasParent(id string) bool {
	return slices.Contains(t.Parents, id)
}

// Clone returns a deep copy of t.
func (t *Topic) Clone() *Topic {
	c := *t
	c.Parents = slices.Clone(t.Parents)
	return &c
}

// Equal compares every field except LastAccessed.
func (t *Topic) Equal(o *Topic) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.ID == o.ID &&
		t.Title == o.Title &&
		t.Type == o.Type &&
		slices.Equal(t.Parents, o.Parents) &&
		t.Content == o.Content &&
		t.CreatedAt.Equal(o.CreatedAt) &&
		t.UpdatedAt.Equal(o.UpdatedAt)
}
