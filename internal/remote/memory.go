package remote

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/lazypower/topicgraph/internal/topic"
)

// Memory is an in-process Store. Topics are returned from ChildTopics in
// insertion order. Failures and latency can be injected per ID.
type Memory struct {
	mu      sync.RWMutex
	order   []string
	topics  map[string]topic.Topic
	fail    map[string]error
	failQ   map[string]error
	delay   map[string]time.Duration
	gets    map[string]int
	queries map[string]int
}

// NewMemory returns a Memory store seeded with topics.
func NewMemory(topics ...topic.Topic) *Memory {
	m := &Memory{
		topics:  make(map[string]topic.Topic),
		fail:    make(map[string]error),
		failQ:   make(map[string]error),
		delay:   make(map[string]time.Duration),
		gets:    make(map[string]int),
		queries: make(map[string]int),
	}
	for _, t := range topics {
		m.Put(t)
	}
	return m
}

// Put adds or replaces a topic.
func (m *Memory) Put(t topic.Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.topics[t.ID]; !ok {
		m.order = append(m.order, t.ID)
	}
	m.topics[t.ID] = *t.Clone()
}

// FailOn makes GetTopic(id) return err.
func (m *Memory) FailOn(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[id] = err
}

// FailChildrenOn makes ChildTopics(parentID, ...) return err.
func (m *Memory) FailChildrenOn(parentID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failQ[parentID] = err
}

// DelayOn makes GetTopic(id) wait d before answering.
func (m *Memory) DelayOn(id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay[id] = d
}

// Gets reports how many times GetTopic was called for id.
func (m *Memory) Gets(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gets[id]
}

// Queries reports how many times ChildTopics was called for parentID.
func (m *Memory) Queries(parentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queries[parentID]
}

// TotalQueries reports the number of ChildTopics calls.
func (m *Memory) TotalQueries() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, q := range m.queries {
		n += q
	}
	return n
}

func (m *Memory) GetTopic(ctx context.Context, id string) (*topic.Topic, error) {
	m.mu.Lock()
	m.gets[id]++
	d := m.delay[id]
	failErr := m.fail[id]
	t, ok := m.topics[id]
	m.mu.Unlock()

	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, topic.Transient(ctx.Err())
		}
	}
	if failErr != nil {
		return nil, failErr
	}
	if !ok {
		return nil, topic.ErrNotFound
	}
	return t.Clone(), nil
}

func (m *Memory) ChildTopics(ctx context.Context, parentID string, types []string) ([]topic.Topic, error) {
	if err := ctx.Err(); err != nil {
		return nil, topic.Transient(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[parentID]++
	if err := m.failQ[parentID]; err != nil {
		return nil, err
	}

	var out []topic.Topic
	for _, id := range m.order {
		t := m.topics[id]
		if !t.HasParent(parentID) {
			continue
		}
		if len(types) > 0 && !slices.Contains(types, t.Type) {
			continue
		}
		out = append(out, *t.Clone())
	}
	return out, nil
}
