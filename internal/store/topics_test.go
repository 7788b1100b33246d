package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lazypower/topicgraph/internal/topic"
)

func TestPutAndGetTopic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	in := &topic.Topic{
		ID:      "t1",
		Title:   "Databases",
		Type:    topic.TypeTopic,
		Parents: []string{"root", "tech"},
		Content: "notes on storage engines",
	}
	if err := db.PutTopic(ctx, in); err != nil {
		t.Fatalf("PutTopic: %v", err)
	}
	if in.CreatedAt.IsZero() || in.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}

	got, err := db.GetTopic(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTopic: %v", err)
	}
	if !got.Equal(in) {
		t.Errorf("GetTopic = %+v, want %+v", got, in)
	}
}

func TestGetTopicNotFound(t *testing.T) {
	db := testDB(t)

	_, err := db.GetTopic(context.Background(), "nope")
	if !errors.Is(err, topic.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPutTopicPreservesCreatedAt(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first := &topic.Topic{ID: "t1", Type: topic.TypeTopic, Title: "v1"}
	if err := db.PutTopic(ctx, first); err != nil {
		t.Fatalf("PutTopic: %v", err)
	}
	created := first.CreatedAt

	time.Sleep(2 * time.Millisecond)
	second := &topic.Topic{ID: "t1", Type: topic.TypeTopic, Title: "v2", Parents: []string{"p"}}
	if err := db.PutTopic(ctx, second); err != nil {
		t.Fatalf("PutTopic: %v", err)
	}

	got, _ := db.GetTopic(ctx, "t1")
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if got.Title != "v2" {
		t.Errorf("Title = %q, want v2", got.Title)
	}
	if len(got.Parents) != 1 || got.Parents[0] != "p" {
		t.Errorf("Parents = %v, want [p]", got.Parents)
	}
}

func TestChildTopicsFiltersByType(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	put := func(id, typ string, parents ...string) {
		t.Helper()
		if err := db.PutTopic(ctx, &topic.Topic{ID: id, Type: typ, Parents: parents}); err != nil {
			t.Fatalf("PutTopic %s: %v", id, err)
		}
		time.Sleep(time.Millisecond)
	}
	put("root", topic.TypeTopic)
	put("a", topic.TypePrompt, "root")
	put("b", topic.TypeComment, "root")
	put("c", topic.TypePrompt, "root", "a")
	put("d", topic.TypePrompt, "elsewhere")

	kids, err := db.ChildTopics(ctx, "root", []string{topic.TypePrompt})
	if err != nil {
		t.Fatalf("ChildTopics: %v", err)
	}
	if len(kids) != 2 || kids[0].ID != "a" || kids[1].ID != "c" {
		t.Fatalf("ChildTopics = %v, want [a c]", ids(kids))
	}
	if len(kids[1].Parents) != 2 {
		t.Errorf("c parents = %v, want [root a]", kids[1].Parents)
	}

	all, err := db.ChildTopics(ctx, "root", nil)
	if err != nil {
		t.Fatalf("ChildTopics all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ChildTopics(nil types) = %v, want 3 topics", ids(all))
	}
}

func TestListRootTopicsAndCount(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	db.PutTopic(ctx, &topic.Topic{ID: "r1", Type: topic.TypeTopic})
	db.PutTopic(ctx, &topic.Topic{ID: "r2", Type: topic.TypeTopic})
	db.PutTopic(ctx, &topic.Topic{ID: "k", Type: topic.TypePrompt, Parents: []string{"r1"}})

	roots, err := db.ListRootTopics(ctx)
	if err != nil {
		t.Fatalf("ListRootTopics: %v", err)
	}
	if len(roots) != 2 {
		t.Errorf("roots = %v, want r1 and r2", ids(roots))
	}

	n, err := db.CountChildren(ctx, "r1")
	if err != nil {
		t.Fatalf("CountChildren: %v", err)
	}
	if n != 1 {
		t.Errorf("CountChildren = %d, want 1", n)
	}
}

func TestDeleteTopic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	db.PutTopic(ctx, &topic.Topic{ID: "k", Type: topic.TypePrompt, Parents: []string{"r"}})
	if err := db.DeleteTopic(ctx, "k"); err != nil {
		t.Fatalf("DeleteTopic: %v", err)
	}
	if n, _ := db.CountChildren(ctx, "r"); n != 0 {
		t.Errorf("parent links should cascade, CountChildren = %d", n)
	}
	if err := db.DeleteTopic(ctx, "k"); !errors.Is(err, topic.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func ids(ts []topic.Topic) []string {
	out := make([]string, len(ts))
	for i := range ts {
		out[i] = ts[i].ID
	}
	return out
}
