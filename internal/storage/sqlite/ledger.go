package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/steveyegge/bugsift/internal/types"
)

// CommitCase records that a case reached a terminal state. In one
// transaction it inserts the ledger event and appends a counter snapshot
// folded from the whole ledger. The claim stays open until MarkRecorded, so a
// case whose logs were never written is claimed again.
//
// The ledger is unique per case index: committing the same index twice is a
// no-op and returns committed=false, so counters never double-count.
func (s *SQLiteStorage) CommitCase(ctx context.Context, ev *types.LedgerEvent) (committed bool, err error) {
	if ev.ID == "" {
		ev.ID = ulid.MustNew(ulid.Now(), rand.Reader).String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if !ev.State.IsTerminal() {
		return false, fmt.Errorf("cannot commit case %d in non-terminal state %s", ev.CaseIndex, ev.State)
	}
	if ev.Reused && ev.State != types.StateReused {
		return false, fmt.Errorf("case %d: reused flag set for state %s", ev.CaseIndex, ev.State)
	}

	err = s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `
			INSERT OR IGNORE INTO ledger (id, case_id, case_index, state, reused, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ev.ID, ev.CaseID, ev.CaseIndex, string(ev.State), boolToInt(ev.Reused), formatTime(ev.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert ledger event: %w", err)
		}
		n, _ := res.RowsAffected()
		committed = n == 1

		if committed {
			var cases, reused int
			if err := conn.QueryRowContext(ctx,
				"SELECT COUNT(*), COALESCE(SUM(reused), 0) FROM ledger").Scan(&cases, &reused); err != nil {
				return fmt.Errorf("failed to fold ledger: %w", err)
			}
			_, err = conn.ExecContext(ctx, `
				INSERT INTO counter_history (timestamp, case_count, reuse_count, reuse_rate)
				VALUES (?, ?, ?, ?)
			`, formatTime(ev.CreatedAt), cases, reused, types.ReuseRate(cases, reused))
			if err != nil {
				return fmt.Errorf("failed to append counter history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return committed, nil
}

// MarkRecorded notes that the committed case's log line and cache entry have
// been written and closes its claim.
func (s *SQLiteStorage) MarkRecorded(ctx context.Context, caseIndex int) error {
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, "UPDATE ledger SET recorded = 1 WHERE case_index = ?", caseIndex)
		if err != nil {
			return fmt.Errorf("failed to mark case %d recorded: %w", caseIndex, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("case %d is not committed: %w", caseIndex, ErrNotFound)
		}
		// Claims may be absent for cases committed by index only
		_, err = conn.ExecContext(ctx, `
			UPDATE case_attempts SET status = ?, last_error = '', updated_at = ?
			WHERE case_index = ?
		`, string(types.ClaimDone), formatTime(time.Now()), caseIndex)
		if err != nil {
			return fmt.Errorf("failed to mark case %d done: %w", caseIndex, err)
		}
		return nil
	})
}

// IsRecorded reports whether a committed case has been marked recorded.
// An uncommitted case is not recorded.
func (s *SQLiteStorage) IsRecorded(ctx context.Context, caseIndex int) (bool, error) {
	var recorded int
	err := s.db.QueryRowContext(ctx, "SELECT recorded FROM ledger WHERE case_index = ?", caseIndex).Scan(&recorded)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to read ledger for case %d: %w", caseIndex, err)
	}
	return recorded == 1, nil
}

// GetCounters folds the ledger into cumulative totals and attaches the
// snapshot history in append order.
func (s *SQLiteStorage) GetCounters(ctx context.Context) (*types.CounterRecord, error) {
	rec := &types.CounterRecord{History: []types.CounterSnapshot{}}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(reused), 0) FROM ledger").Scan(&rec.CaseCount, &rec.ReuseCount); err != nil {
		return nil, fmt.Errorf("failed to fold ledger: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, case_count, reuse_count, reuse_rate
		FROM counter_history ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read counter history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var snap types.CounterSnapshot
		var ts string
		if err := rows.Scan(&ts, &snap.CaseCount, &snap.ReuseCount, &snap.ReuseRate); err != nil {
			return nil, fmt.Errorf("failed to scan counter snapshot: %w", err)
		}
		snap.Timestamp = parseTime(ts)
		rec.History = append(rec.History, snap)
	}
	return rec, rows.Err()
}

// ListLedger returns all ledger events in case index order.
func (s *SQLiteStorage) ListLedger(ctx context.Context) ([]*types.LedgerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, case_index, state, reused, created_at
		FROM ledger ORDER BY case_index
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	var events []*types.LedgerEvent
	for rows.Next() {
		var ev types.LedgerEvent
		var state, created string
		var reused int
		if err := rows.Scan(&ev.ID, &ev.CaseID, &ev.CaseIndex, &state, &reused, &created); err != nil {
			return nil, fmt.Errorf("failed to scan ledger event: %w", err)
		}
		ev.State = types.CaseState(state)
		ev.Reused = reused == 1
		ev.CreatedAt = parseTime(created)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// CountByState returns how many committed cases ended in each terminal state.
func (s *SQLiteStorage) CountByState(ctx context.Context) (map[types.CaseState]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM ledger GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("failed to count ledger states: %w", err)
	}
	defer rows.Close()

	counts := map[types.CaseState]int{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan state count: %w", err)
		}
		counts[types.CaseState(state)] = n
	}
	return counts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
