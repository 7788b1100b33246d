// Package remote defines the boundary to the remote topic store: the
// document collection that is the source of truth for topic records.
package remote

import (
	"context"

	"github.com/lazypower/topicgraph/internal/topic"
)

// Store is the subset of the remote document collection the resolver needs.
//
// GetTopic returns topic.ErrNotFound for unknown IDs. ChildTopics returns
// documents whose parent set contains parentID and whose type is one of
// types, in the store's order.
type Store interface {
	GetTopic(ctx context.Context, id string) (*topic.Topic, error)
	ChildTopics(ctx context.Context, parentID string, types []string) ([]topic.Topic, error)
}
