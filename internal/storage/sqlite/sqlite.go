// Package sqlite is the authoritative SQLite store for bugsift: progress,
// claims, the terminal-state ledger, counter history, the semantic cache and
// evidence tier passages.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/bugsift/internal/storage/migrations"
)

var (
	// ErrNoMoreCases is returned by ClaimNext when every case has been claimed
	// and nothing is eligible for retry.
	ErrNoMoreCases = errors.New("no more cases to process")

	// ErrConcurrentWrite means another writer raced us on shared state.
	// Callers must treat it as fatal.
	ErrConcurrentWrite = errors.New("concurrent write to progress/counter state")

	// ErrNotFound is returned when a claim or entry does not exist.
	ErrNotFound = errors.New("not found")
)

// SQLiteStorage implements the storage interfaces using SQLite
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// New opens (creating if needed) the database at path and applies the schema.
func New(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// WAL for concurrent readers; busy_timeout so IMMEDIATE writers queue up
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrations.NewManager(schemaMigrations...).Apply(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// withImmediateTx runs fn inside a BEGIN IMMEDIATE transaction on a dedicated
// connection. IMMEDIATE takes the write lock up front, which serializes
// claim and commit across workers and processes.
func (s *SQLiteStorage) withImmediateTx(ctx context.Context, fn func(conn *sql.Conn) error) error {
	// database/sql's BeginTx always uses DEFERRED mode, so the raw statements
	// must run on one pinned connection.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		if isBusyError(err) {
			return fmt.Errorf("%w: %v", ErrConcurrentWrite, err)
		}
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	// Use context.Background() for ROLLBACK so cleanup happens even if ctx is canceled
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		if isBusyError(err) {
			return fmt.Errorf("%w: %v", ErrConcurrentWrite, err)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "database is busy")
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Timestamps are stored as RFC3339Nano text so ordering and parsing do not
// depend on driver time handling.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
