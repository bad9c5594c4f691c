package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/steveyegge/bugsift/internal/types"
)

// unrecordedCases selects committed cases whose logs are still unwritten.
// An interruption never dead-letters them: their outcome is already counted.
const unrecordedCases = "SELECT case_index FROM ledger WHERE recorded = 0"

// GetProgress returns the current progress pointer.
func (s *SQLiteStorage) GetProgress(ctx context.Context) (types.ProgressRecord, error) {
	var p types.ProgressRecord
	err := s.db.QueryRowContext(ctx, "SELECT last_index FROM progress WHERE id = 1").Scan(&p.LastIndex)
	if err != nil {
		return p, fmt.Errorf("failed to read progress: %w", err)
	}
	return p, nil
}

// ClaimNext atomically claims the next case index for runID.
//
// Retryable cases (interrupted or errored with attempts < maxAttempts) are
// re-claimed first, lowest index first. Otherwise the progress pointer is
// advanced by one and that index is claimed. Once the pointer reaches total
// and nothing is retryable, ErrNoMoreCases is returned.
//
// The progress pointer is advanced before the case is processed, so a
// restarted run never re-processes a committed index.
func (s *SQLiteStorage) ClaimNext(ctx context.Context, runID string, total, maxAttempts int) (*types.CaseClaim, error) {
	var claim *types.CaseClaim
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		now := time.Now()

		var retryIndex int
		err := conn.QueryRowContext(ctx, `
			SELECT case_index FROM case_attempts
			WHERE status IN (?, ?) AND case_index < ?
			  AND (attempts < ? OR case_index IN (`+unrecordedCases+`))
			ORDER BY case_index
			LIMIT 1
		`, string(types.ClaimInterrupted), string(types.ClaimErrored), total, maxAttempts).Scan(&retryIndex)
		switch {
		case err == nil:
			res, err := conn.ExecContext(ctx, `
				UPDATE case_attempts
				SET status = ?, run_id = ?, attempts = attempts + 1, updated_at = ?
				WHERE case_index = ? AND status IN (?, ?)
			`, string(types.ClaimClaimed), runID, formatTime(now), retryIndex, string(types.ClaimInterrupted), string(types.ClaimErrored))
			if err != nil {
				return fmt.Errorf("failed to re-claim case %d: %w", retryIndex, err)
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return fmt.Errorf("%w: re-claim of case %d affected %d rows", ErrConcurrentWrite, retryIndex, n)
			}
			claim, err = getClaim(ctx, conn, retryIndex)
			return err
		case err != sql.ErrNoRows:
			return fmt.Errorf("failed to look up retryable cases: %w", err)
		}

		var lastIndex int
		if err := conn.QueryRowContext(ctx, "SELECT last_index FROM progress WHERE id = 1").Scan(&lastIndex); err != nil {
			return fmt.Errorf("failed to read progress: %w", err)
		}
		next := lastIndex + 1
		if next >= total {
			return ErrNoMoreCases
		}

		res, err := conn.ExecContext(ctx, `
			UPDATE progress SET last_index = ?, updated_at = ?
			WHERE id = 1 AND last_index = ?
		`, next, formatTime(now), lastIndex)
		if err != nil {
			return fmt.Errorf("failed to advance progress: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("%w: progress moved from %d during claim", ErrConcurrentWrite, lastIndex)
		}

		_, err = conn.ExecContext(ctx, `
			INSERT INTO case_attempts (case_index, run_id, status, attempts, last_error, updated_at)
			VALUES (?, ?, ?, 1, '', ?)
		`, next, runID, string(types.ClaimClaimed), formatTime(now))
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: case %d already has a claim", ErrConcurrentWrite, next)
			}
			return fmt.Errorf("failed to claim case %d: %w", next, err)
		}

		claim = &types.CaseClaim{
			CaseIndex: next,
			RunID:     runID,
			Status:    types.ClaimClaimed,
			Attempts:  1,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// MarkCaseErrored records a failed attempt. The case becomes retryable
// ('errored') or, once maxAttempts is reached, dead-lettered ('failed').
// The resulting status is returned.
func (s *SQLiteStorage) MarkCaseErrored(ctx context.Context, caseIndex int, errMsg string, maxAttempts int) (types.ClaimStatus, error) {
	var status types.ClaimStatus
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `
			UPDATE case_attempts
			SET status = CASE WHEN attempts >= ? THEN ? ELSE ? END,
			    last_error = ?, updated_at = ?
			WHERE case_index = ? AND status = ?
		`, maxAttempts, string(types.ClaimFailed), string(types.ClaimErrored), errMsg, formatTime(time.Now()), caseIndex, string(types.ClaimClaimed))
		if err != nil {
			return fmt.Errorf("failed to mark case %d errored: %w", caseIndex, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("case %d is not claimed: %w", caseIndex, ErrNotFound)
		}
		return conn.QueryRowContext(ctx, "SELECT status FROM case_attempts WHERE case_index = ?", caseIndex).Scan(&status)
	})
	return status, err
}

// ReleaseStaleClaims marks claims held by other runs as interrupted, or
// failed when they have used up their attempts. It returns how many claims
// were released.
func (s *SQLiteStorage) ReleaseStaleClaims(ctx context.Context, runID string, maxAttempts int) (int, error) {
	var released int64
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `
			UPDATE case_attempts
			SET status = CASE WHEN attempts >= ? AND case_index NOT IN (`+unrecordedCases+`) THEN ? ELSE ? END,
			    last_error = CASE WHEN last_error = '' THEN 'interrupted' ELSE last_error END,
			    updated_at = ?
			WHERE status = ? AND run_id != ?
		`, maxAttempts, string(types.ClaimFailed), string(types.ClaimInterrupted), formatTime(time.Now()), string(types.ClaimClaimed), runID)
		if err != nil {
			return fmt.Errorf("failed to release stale claims: %w", err)
		}
		released, _ = res.RowsAffected()
		return nil
	})
	return int(released), err
}

// GetClaim returns the claim for a case index.
func (s *SQLiteStorage) GetClaim(ctx context.Context, caseIndex int) (*types.CaseClaim, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()
	return getClaim(ctx, conn, caseIndex)
}

// ListClaims returns claims with the given status, or all claims when status is empty.
func (s *SQLiteStorage) ListClaims(ctx context.Context, status types.ClaimStatus) ([]*types.CaseClaim, error) {
	query := "SELECT case_index, run_id, status, attempts, last_error, updated_at FROM case_attempts"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY case_index"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var claims []*types.CaseClaim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClaim(row scanner) (*types.CaseClaim, error) {
	var c types.CaseClaim
	var status, updated string
	if err := row.Scan(&c.CaseIndex, &c.RunID, &status, &c.Attempts, &c.LastError, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan claim: %w", err)
	}
	c.Status = types.ClaimStatus(status)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

func getClaim(ctx context.Context, conn *sql.Conn, caseIndex int) (*types.CaseClaim, error) {
	row := conn.QueryRowContext(ctx, `
		SELECT case_index, run_id, status, attempts, last_error, updated_at
		FROM case_attempts WHERE case_index = ?
	`, caseIndex)
	c, err := scanClaim(row)
	if err != nil {
		return nil, fmt.Errorf("case %d: %w", caseIndex, err)
	}
	return c, nil
}
