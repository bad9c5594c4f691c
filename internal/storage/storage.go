// Package storage defines the persistence contracts of the bugsift pipeline
// and opens the SQLite backend that implements them.
package storage

import (
	"context"

	"github.com/steveyegge/bugsift/internal/storage/sqlite"
	"github.com/steveyegge/bugsift/internal/types"
)

var (
	// ErrNoMoreCases is returned by ClaimNext when the input is exhausted.
	ErrNoMoreCases = sqlite.ErrNoMoreCases

	// ErrConcurrentWrite signals a lost race on progress or counter state.
	// It is fatal: continuing would corrupt the reuse-rate invariant.
	ErrConcurrentWrite = sqlite.ErrConcurrentWrite

	// ErrNotFound is returned for unknown claims.
	ErrNotFound = sqlite.ErrNotFound
)

// ProgressStore owns the progress pointer and per-case claims.
type ProgressStore interface {
	GetProgress(ctx context.Context) (types.ProgressRecord, error)
	ClaimNext(ctx context.Context, runID string, total, maxAttempts int) (*types.CaseClaim, error)
	MarkCaseErrored(ctx context.Context, caseIndex int, errMsg string, maxAttempts int) (types.ClaimStatus, error)
	ReleaseStaleClaims(ctx context.Context, runID string, maxAttempts int) (int, error)
	GetClaim(ctx context.Context, caseIndex int) (*types.CaseClaim, error)
	ListClaims(ctx context.Context, status types.ClaimStatus) ([]*types.CaseClaim, error)
}

// LedgerStore owns the terminal-state ledger and the counter history folded from it.
type LedgerStore interface {
	CommitCase(ctx context.Context, ev *types.LedgerEvent) (bool, error)
	MarkRecorded(ctx context.Context, caseIndex int) error
	IsRecorded(ctx context.Context, caseIndex int) (bool, error)
	GetCounters(ctx context.Context) (*types.CounterRecord, error)
	ListLedger(ctx context.Context) ([]*types.LedgerEvent, error)
	CountByState(ctx context.Context) (map[types.CaseState]int, error)
}

// CacheStore is the append-only backing store of the semantic cache.
type CacheStore interface {
	AddCacheEntry(ctx context.Context, entry *types.CacheEntry) error
	ListCacheEntries(ctx context.Context) ([]*types.CacheEntry, error)
	CountCacheEntries(ctx context.Context) (int, error)
}

// PassageStore holds the evidence tier corpora.
type PassageStore interface {
	AddPassage(ctx context.Context, p *types.Passage) (bool, error)
	ListPassages(ctx context.Context, tier string) ([]*types.Passage, error)
	CountPassages(ctx context.Context) (map[string]int, error)
}

// Storage is the full persistence surface.
type Storage interface {
	ProgressStore
	LedgerStore
	CacheStore
	PassageStore

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".bugsift/bugsift.db"
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".bugsift/bugsift.db",
	}
}

// NewStorage opens the SQLite storage backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	return sqlite.New(cfg.Path)
}
