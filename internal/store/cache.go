package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lazypower/topicgraph/internal/topic"
)

const cacheColumns = `id, title, topic_type, parents, content, created_at, updated_at, last_accessed`

// PutCached upserts a topic into the cache table with the given access stamp.
func (db *DB) PutCached(ctx context.Context, t *topic.Topic, accessed time.Time) error {
	parents, err := json.Marshal(nonNil(t.Parents))
	if err != nil {
		return fmt.Errorf("encode parents: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO topic_cache (`+cacheColumns+`)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			topic_type = excluded.topic_type,
			parents = excluded.parents,
			content = excluded.content,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			last_accessed = excluded.last_accessed
	`, t.ID, t.Title, t.Type, string(parents), t.Content,
		t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano(), accessed.UnixNano())
	if err != nil {
		return fmt.Errorf("put cached %s: %w", t.ID, err)
	}
	return nil
}

// TouchCached stamps last_accessed on a cached topic and returns it, or nil
// if the ID is not cached. The stamp and the read are one statement.
func (db *DB) TouchCached(ctx context.Context, id string, accessed time.Time) (*topic.Topic, error) {
	row := db.QueryRowContext(ctx, `
		UPDATE topic_cache SET last_accessed = ? WHERE id = ?
		RETURNING `+cacheColumns,
		accessed.UnixNano(), id)
	t, err := scanCached(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("touch cached %s: %w", id, err)
	}
	return t, nil
}

// DeleteCached removes a cached topic. Missing IDs are not an error.
func (db *DB) DeleteCached(ctx context.Context, id string) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM topic_cache WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete cached %s: %w", id, err)
	}
	return nil
}

// ClearCache removes every cached topic and returns how many were removed.
func (db *DB) ClearCache(ctx context.Context) (int, error) {
	result, err := db.ExecContext(ctx, "DELETE FROM topic_cache")
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// CachedIDs lists every cached topic ID in ascending order.
func (db *DB) CachedIDs(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT id FROM topic_cache ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list cached ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cached id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountCached returns the number of cached topics.
func (db *DB) CountCached(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM topic_cache").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cached: %w", err)
	}
	return n, nil
}

// EvictLeastRecent deletes the least recently accessed rows until at most
// keep remain, and returns the evicted IDs in eviction order.
// Ties on last_accessed are broken by ID so repeated passes agree.
func (db *DB) EvictLeastRecent(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin evict: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM topic_cache").Scan(&count); err != nil {
		return nil, fmt.Errorf("count cached: %w", err)
	}
	excess := count - keep
	if excess <= 0 {
		return nil, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM topic_cache ORDER BY last_accessed ASC, id ASC LIMIT ?
	`, excess)
	if err != nil {
		return nil, fmt.Errorf("select eviction victims: %w", err)
	}
	var victims []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan victim: %w", err)
		}
		victims = append(victims, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range victims {
		if _, err := tx.ExecContext(ctx, "DELETE FROM topic_cache WHERE id = ?", id); err != nil {
			return nil, fmt.Errorf("evict %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit evict: %w", err)
	}
	return victims, nil
}

func scanCached(row rowScanner) (*topic.Topic, error) {
	var t topic.Topic
	var parents string
	var content sql.NullString
	var created, updated, accessed int64
	if err := row.Scan(&t.ID, &t.Title, &t.Type, &parents, &content, &created, &updated, &accessed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(parents), &t.Parents); err != nil {
		return nil, fmt.Errorf("decode parents of %s: %w", t.ID, err)
	}
	if len(t.Parents) == 0 {
		t.Parents = nil
	}
	t.Content = content.String
	t.CreatedAt = time.Unix(0, created)
	t.UpdatedAt = time.Unix(0, updated)
	t.LastAccessed = time.Unix(0, accessed)
	return &t, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
