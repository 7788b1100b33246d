package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/topicgraph/internal/topic"
)

const topicColumns = `t.id, t.title, t.topic_type, t.content, t.created_at, t.updated_at`

// PutTopic inserts or replaces a topic document and its parent set.
// CreatedAt is preserved across updates; UpdatedAt is set to now.
func (db *DB) PutTopic(ctx context.Context, t *topic.Topic) error {
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put topic: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO topics (id, title, topic_type, content, created_at, updated_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			topic_type = excluded.topic_type,
			content = excluded.content,
			updated_at = excluded.updated_at
	`, t.ID, t.Title, t.Type, t.Content, t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("put topic %s: %w", t.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM topic_parents WHERE topic_id = ?", t.ID); err != nil {
		return fmt.Errorf("clear parents of %s: %w", t.ID, err)
	}
	for i, p := range t.Parents {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO topic_parents (topic_id, parent_id, position) VALUES (?, ?, ?)
		`, t.ID, p, i); err != nil {
			return fmt.Errorf("add parent %s to %s: %w", p, t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put topic %s: %w", t.ID, err)
	}

	// Existing rows keep their original created_at.
	var created int64
	if err := db.QueryRowContext(ctx, "SELECT created_at FROM topics WHERE id = ?", t.ID).Scan(&created); err == nil {
		t.CreatedAt = time.Unix(0, created)
	}
	return nil
}

// GetTopic returns the topic with the given ID, or topic.ErrNotFound.
func (db *DB) GetTopic(ctx context.Context, id string) (*topic.Topic, error) {
	row := db.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics t WHERE t.id = ?`, id)
	t, err := scanTopic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, topic.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}

	parents, err := db.parentsOf(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	t.Parents = parents[id]
	return t, nil
}

// ChildTopics returns the topics listing parentID among their parents whose
// type is one of types, oldest first. An empty types slice matches every type.
func (db *DB) ChildTopics(ctx context.Context, parentID string, types []string) ([]topic.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics t
		JOIN topic_parents p ON p.topic_id = t.id
		WHERE p.parent_id = ?`
	args := []any{parentID}
	if len(types) > 0 {
		query += ` AND t.topic_type IN (` + placeholders(len(types)) + `)`
		for _, ty := range types {
			args = append(args, ty)
		}
	}
	query += ` ORDER BY t.created_at, t.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("child topics: %w", err)
	}
	topics, err := scanTopics(rows)
	if err != nil {
		return nil, err
	}
	return topics, db.fillParents(ctx, topics)
}

// ListRootTopics returns topics that have no parents.
func (db *DB) ListRootTopics(ctx context.Context) ([]topic.Topic, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+topicColumns+` FROM topics t
		WHERE NOT EXISTS (SELECT 1 FROM topic_parents p WHERE p.topic_id = t.id)
		ORDER BY t.created_at, t.id`)
	if err != nil {
		return nil, fmt.Errorf("list roots: %w", err)
	}
	return scanTopics(rows)
}

// CountChildren returns the number of topics that list parentID as a parent.
func (db *DB) CountChildren(ctx context.Context, parentID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM topic_parents WHERE parent_id = ?", parentID).Scan(&count)
	return count, err
}

// DeleteTopic removes a topic document. Parent links from it cascade;
// links naming it as a parent are left dangling.
func (db *DB) DeleteTopic(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM topics WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete topic %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return topic.ErrNotFound
	}
	return nil
}

func (db *DB) fillParents(ctx context.Context, topics []topic.Topic) error {
	if len(topics) == 0 {
		return nil
	}
	ids := make([]string, len(topics))
	for i := range topics {
		ids[i] = topics[i].ID
	}
	parents, err := db.parentsOf(ctx, ids)
	if err != nil {
		return err
	}
	for i := range topics {
		topics[i].Parents = parents[topics[i].ID]
	}
	return nil
}

// parentsOf loads the ordered parent sets for the given topic IDs.
func (db *DB) parentsOf(ctx context.Context, ids []string) (map[string][]string, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.QueryContext(ctx, `
		SELECT topic_id, parent_id FROM topic_parents
		WHERE topic_id IN (`+placeholders(len(ids))+`)
		ORDER BY topic_id, position
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("load parents: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string, len(ids))
	for rows.Next() {
		var child, parent string
		if err := rows.Scan(&child, &parent); err != nil {
			return nil, fmt.Errorf("scan parent: %w", err)
		}
		out[child] = append(out[child], parent)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTopic(row rowScanner) (*topic.Topic, error) {
	var t topic.Topic
	var content sql.NullString
	var created, updated int64
	if err := row.Scan(&t.ID, &t.Title, &t.Type, &content, &created, &updated); err != nil {
		return nil, err
	}
	t.Content = content.String
	t.CreatedAt = time.Unix(0, created)
	t.UpdatedAt = time.Unix(0, updated)
	return &t, nil
}

func scanTopics(rows *sql.Rows) ([]topic.Topic, error) {
	defer rows.Close()
	var topics []topic.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, *t)
	}
	return topics, rows.Err()
}
