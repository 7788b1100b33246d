package topic

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCloneIsDeep(t *testing.T) {
	orig := &Topic{ID: "a", Type: TypeTopic, Parents: []string{"p1", "p2"}}
	c := orig.Clone()
	c.Parents[0] = "changed"

	if orig.Parents[0] != "p1" {
		t.Errorf("clone shares Parents backing array: %v", orig.Parents)
	}
}

func TestEqualIgnoresLastAccessed(t *testing.T) {
	now := time.Now()
	a := &Topic{ID: "a", Type: TypePrompt, Parents: []string{"r"}, CreatedAt: now}
	b := a.Clone()
	b.LastAccessed = now.Add(time.Hour)

	if !a.Equal(b) {
		t.Error("Equal should ignore LastAccessed")
	}
	b.Title = "different"
	if a.Equal(b) {
		t.Error("Equal should compare Title")
	}
}

func TestHasParent(t *testing.T) {
	tp := &Topic{ID: "c", Parents: []string{"a", "b"}}
	if !tp.HasParent("b") {
		t.Error("expected b to be a parent")
	}
	if tp.HasParent("c") {
		t.Error("c is not its own parent")
	}
}

func TestTransient(t *testing.T) {
	cause := fmt.Errorf("dial: %w", context.DeadlineExceeded)
	err := Transient(cause)

	if !errors.Is(err, ErrTransient) {
		t.Error("expected ErrTransient")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected underlying cause to be preserved")
	}
	if Transient(err) != err {
		t.Error("double wrap should be a no-op")
	}
	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}
}
