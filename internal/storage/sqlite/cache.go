package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/bugsift/internal/embedding"
	"github.com/steveyegge/bugsift/internal/types"
)

// AddCacheEntry appends an entry to the semantic cache. Entries are never
// updated or deleted.
func (s *SQLiteStorage) AddCacheEntry(ctx context.Context, entry *types.CacheEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if len(entry.Embedding) == 0 {
		return fmt.Errorf("cache entry %s has no embedding", entry.ID)
	}

	meta := entry.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (id, feedback, embedding, report, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Feedback, embedding.Encode(entry.Embedding), entry.Report, string(metaJSON), formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// ListCacheEntries returns every cache entry in insertion order.
func (s *SQLiteStorage) ListCacheEntries(ctx context.Context) ([]*types.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, feedback, embedding, report, metadata, created_at
		FROM cache_entries ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.CacheEntry
	for rows.Next() {
		var e types.CacheEntry
		var blob []byte
		var meta, created string
		if err := rows.Scan(&e.ID, &e.Feedback, &blob, &e.Report, &meta, &created); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		if e.Embedding, err = embedding.Decode(blob); err != nil {
			return nil, fmt.Errorf("cache entry %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("cache entry %s: bad metadata: %w", e.ID, err)
		}
		e.CreatedAt = parseTime(created)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CountCacheEntries returns the number of cached reports.
func (s *SQLiteStorage) CountCacheEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}
