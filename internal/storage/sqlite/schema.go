package sqlite

import "github.com/steveyegge/bugsift/internal/storage/migrations"

// schemaMigrations are applied in order by New. Append new versions; never
// edit an applied one.
var schemaMigrations = []migrations.Migration{
	{Version: 1, Description: "initial bugsift schema", Up: initialSchema},
	{
		Version:     2,
		Description: "index ledger by terminal state",
		Up:          `CREATE INDEX IF NOT EXISTS idx_ledger_state ON ledger(state)`,
		Down:        `DROP INDEX IF EXISTS idx_ledger_state`,
	},
	{
		// Committed cases stay claimable until their log line is written.
		Version:     3,
		Description: "track recorded side effects per ledger event",
		Up:          `ALTER TABLE ledger ADD COLUMN recorded INTEGER NOT NULL DEFAULT 0 CHECK(recorded IN (0, 1))`,
		Down:        `ALTER TABLE ledger DROP COLUMN recorded`,
	},
}

const initialSchema = `
-- Progress pointer: single row, last_index = -1 before the first claim
CREATE TABLE IF NOT EXISTS progress (
    id INTEGER PRIMARY KEY CHECK(id = 1),
    last_index INTEGER NOT NULL DEFAULT -1,
    updated_at TEXT NOT NULL
);

-- Per-case claims with attempt counts (dead-letter after max attempts)
CREATE TABLE IF NOT EXISTS case_attempts (
    case_index INTEGER PRIMARY KEY CHECK(case_index >= 0),
    run_id TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('claimed', 'done', 'errored', 'interrupted', 'failed')),
    attempts INTEGER NOT NULL DEFAULT 1 CHECK(attempts >= 0),
    last_error TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_case_attempts_status ON case_attempts(status);

-- Terminal-state ledger: counters are a fold over these rows.
-- case_index is unique so a case is counted at most once.
CREATE TABLE IF NOT EXISTS ledger (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    case_index INTEGER NOT NULL UNIQUE,
    state TEXT NOT NULL,
    reused INTEGER NOT NULL DEFAULT 0 CHECK(reused IN (0, 1)),
    created_at TEXT NOT NULL
);

-- Counter history snapshots, append-only
CREATE TABLE IF NOT EXISTS counter_history (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    case_count INTEGER NOT NULL,
    reuse_count INTEGER NOT NULL CHECK(reuse_count <= case_count),
    reuse_rate REAL NOT NULL
);

-- Semantic cache, append-only
CREATE TABLE IF NOT EXISTS cache_entries (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    feedback TEXT NOT NULL,
    embedding BLOB NOT NULL,
    report TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL
);

-- Evidence tier passages
CREATE TABLE IF NOT EXISTS passages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tier TEXT NOT NULL,
    text TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    embedding BLOB,
    created_at TEXT NOT NULL,
    UNIQUE(tier, text)
);

CREATE INDEX IF NOT EXISTS idx_passages_tier ON passages(tier);

INSERT OR IGNORE INTO progress (id, last_index, updated_at) VALUES (1, -1, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'));
`
