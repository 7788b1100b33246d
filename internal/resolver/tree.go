package resolver

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lazypower/topicgraph/internal/topic"
)

// Reason says why a node's children are incomplete.
type Reason string

const (
	ReasonCycle  Reason = "cycle"
	ReasonDepth  Reason = "depth"
	ReasonFanOut Reason = "fanout"
	ReasonNodes  Reason = "nodes"
)

// Node is a resolved topic with its resolved children, in the order the
// remote store returned them.
type Node struct {
	topic.Topic
	Children []*Node `json:"children"`

	// Truncated is set when a guard cut this node's children short.
	Truncated bool     `json:"truncated,omitempty"`
	Reasons   []Reason `json:"truncation_reasons,omitempty"`
	// Dropped counts child branches lost to failed fetches.
	Dropped int `json:"dropped,omitempty"`
}

func (n *Node) markTruncated(reason Reason) bool {
	if slices.Contains(n.Reasons, reason) {
		return false
	}
	n.Truncated = true
	n.Reasons = append(n.Reasons, reason)
	return true
}

// Walk visits n and its descendants depth first, pre-order.
func (n *Node) Walk(fn func(n *Node, depth int)) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Tree is the result of one resolution.
type Tree struct {
	Root     *Node  `json:"root"`
	Category string `json:"category"`
	// Nodes is the number of nodes in the tree, root included.
	Nodes     int  `json:"nodes"`
	Truncated bool `json:"truncated"`
	Dropped   int  `json:"dropped"`
}

// Outline renders the tree as an indented markdown list, one topic per
// line, with truncation and drop markers inline.
func (t *Tree) Outline() string {
	var b strings.Builder
	t.Root.Walk(func(n *Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		title := n.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "- %s [%s]", title, n.ID)
		if n.Truncated {
			reasons := make([]string, len(n.Reasons))
			for i, r := range n.Reasons {
				reasons[i] = string(r)
			}
			fmt.Fprintf(&b, " (truncated: %s)", strings.Join(reasons, ", "))
		}
		if n.Dropped > 0 {
			fmt.Fprintf(&b, " (%d dropped)", n.Dropped)
		}
		b.WriteString("\n")
	})
	return b.String()
}

// Limits bound a resolution. The root sits at depth 0.
type Limits struct {
	MaxDepth     int           `yaml:"max_depth" env:"MAX_DEPTH" validate:"gte=0"`
	MaxNodes     int           `yaml:"max_nodes" env:"MAX_NODES" validate:"gte=1"`
	MaxFanOut    int           `yaml:"max_fan_out" env:"MAX_FAN_OUT" validate:"gte=1"`
	Concurrency  int           `yaml:"concurrency" env:"CONCURRENCY" validate:"gte=1"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
}

// DefaultLimits returns limits generous enough for any real hierarchy.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:     64,
		MaxNodes:     5000,
		MaxFanOut:    500,
		Concurrency:  8,
		FetchTimeout: 10 * time.Second,
	}
}

// withDefaults fills zero fields other than MaxDepth and FetchTimeout,
// where zero is meaningful.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxNodes <= 0 {
		l.MaxNodes = d.MaxNodes
	}
	if l.MaxFanOut <= 0 {
		l.MaxFanOut = d.MaxFanOut
	}
	if l.Concurrency <= 0 {
		l.Concurrency = d.Concurrency
	}
	if l.MaxDepth < 0 {
		l.MaxDepth = 0
	}
	return l
}
