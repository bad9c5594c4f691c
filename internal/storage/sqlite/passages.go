package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/bugsift/internal/embedding"
	"github.com/steveyegge/bugsift/internal/types"
)

// AddPassage stores an evidence passage in its tier. A passage whose text
// already exists in the tier is skipped and added=false is returned.
func (s *SQLiteStorage) AddPassage(ctx context.Context, p *types.Passage) (added bool, err error) {
	if p.Tier == "" || p.Text == "" {
		return false, fmt.Errorf("passage requires tier and text")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	var blob []byte
	if len(p.Embedding) > 0 {
		blob = embedding.Encode(p.Embedding)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO passages (tier, text, source, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.Tier, p.Text, p.Source, blob, formatTime(p.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert passage: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 1 {
		p.ID, _ = res.LastInsertId()
	}
	return n == 1, nil
}

// ListPassages returns the passages of one tier in insertion order.
func (s *SQLiteStorage) ListPassages(ctx context.Context, tier string) ([]*types.Passage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tier, text, source, embedding, created_at
		FROM passages WHERE tier = ? ORDER BY id
	`, tier)
	if err != nil {
		return nil, fmt.Errorf("failed to list passages: %w", err)
	}
	defer rows.Close()

	var out []*types.Passage
	for rows.Next() {
		var p types.Passage
		var blob []byte
		var created string
		if err := rows.Scan(&p.ID, &p.Tier, &p.Text, &p.Source, &blob, &created); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		if len(blob) > 0 {
			if p.Embedding, err = embedding.Decode(blob); err != nil {
				return nil, fmt.Errorf("passage %d: %w", p.ID, err)
			}
		}
		p.CreatedAt = parseTime(created)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// CountPassages returns the passage count per tier.
func (s *SQLiteStorage) CountPassages(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT tier, COUNT(*) FROM passages GROUP BY tier")
	if err != nil {
		return nil, fmt.Errorf("failed to count passages: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("failed to scan passage count: %w", err)
		}
		counts[tier] = n
	}
	return counts, rows.Err()
}
