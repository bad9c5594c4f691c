package reportlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/steveyegge/bugsift/internal/types"
)

// Snapshots mirrors the authoritative database state into the progress and
// counter JSON files. Files are replaced atomically (temp file + rename).
type Snapshots struct {
	mu           sync.Mutex
	progressPath string
	countersPath string
}

// NewSnapshots creates a snapshot writer for the two state files.
func NewSnapshots(progressPath, countersPath string) *Snapshots {
	return &Snapshots{progressPath: progressPath, countersPath: countersPath}
}

// WriteProgress overwrites the progress file.
func (s *Snapshots) WriteProgress(p types.ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.progressPath, p)
}

// WriteCounters overwrites the counter file. History is written in full, so
// the file's history only grows as long as the ledger does.
func (s *Snapshots) WriteCounters(c *types.CounterRecord) error {
	if c.History == nil {
		c.History = []types.CounterSnapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.countersPath, c)
}

// ReadProgress loads the progress file. A missing file means nothing claimed.
func ReadProgress(path string) (types.ProgressRecord, error) {
	p := types.ProgressRecord{LastIndex: -1}
	if err := readJSON(path, &p); err != nil {
		return types.ProgressRecord{LastIndex: -1}, err
	}
	return p, nil
}

// ReadCounters loads the counter file. A missing file yields zero totals.
func ReadCounters(path string) (*types.CounterRecord, error) {
	c := &types.CounterRecord{History: []types.CounterSnapshot{}}
	if err := readJSON(path, c); err != nil {
		return nil, err
	}
	return c, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
