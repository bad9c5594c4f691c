// Package reportlog writes the append-only JSONL logs of generated reports and
// deferred feedback, and the JSON snapshot files of progress and counters.
package reportlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/steveyegge/bugsift/internal/types"
)

// ReportRecord is one line of the generated-report log.
type ReportRecord struct {
	ID        string   `json:"id,omitempty"`
	CaseIndex int      `json:"case_index"`
	State     string   `json:"state,omitempty"`
	Feedback  string   `json:"feedback"`
	Collected []string `json:"collected"`
	Decision  string   `json:"decision"`
	BugReport string   `json:"bug_report"`
}

// DeferredRecord is one line of the deferred-feedback log.
type DeferredRecord struct {
	ID        string   `json:"id,omitempty"`
	CaseIndex int      `json:"case_index"`
	State     string   `json:"state,omitempty"`
	Feedback  string   `json:"feedback"`
	Collected []string `json:"collected"`
	Rationale string   `json:"rationale"`
	Summary   string   `json:"summary"`
}

// NewReportRecord snapshots a memory that produced a report.
func NewReportRecord(m *types.CaseMemory, caseIndex int, state types.CaseState) ReportRecord {
	return ReportRecord{
		ID:        m.CaseID,
		CaseIndex: caseIndex,
		State:     string(state),
		Feedback:  m.Feedback,
		Collected: nonNil(m.Collected),
		Decision:  m.Decision,
		BugReport: m.BugReport,
	}
}

// NewDeferredRecord snapshots a memory that ended without a report.
func NewDeferredRecord(m *types.CaseMemory, caseIndex int, state types.CaseState, summary string) DeferredRecord {
	return DeferredRecord{
		ID:        m.CaseID,
		CaseIndex: caseIndex,
		State:     string(state),
		Feedback:  m.Feedback,
		Collected: nonNil(m.Collected),
		Rationale: m.Decision,
		Summary:   summary,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Log is an append-only JSON-lines file. Appends are serialized so that
// concurrent workers never interleave partial lines.
type Log struct {
	mu   sync.Mutex
	path string
}

// Open returns a log at path, creating the parent directory if needed.
// The file itself is created on first append.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &Log{path: path}, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes v as one JSON line.
func (l *Log) Append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log %s: %w", l.path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to log %s: %w", l.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync log %s: %w", l.path, err)
	}
	return f.Close()
}

// HasCase reports whether a line for caseIndex was already appended. It
// scans the whole file and is meant for recovering interrupted cases.
func (l *Log) HasCase(caseIndex int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	recs, err := ReadAll[struct {
		CaseIndex *int `json:"case_index"`
	}](l.path)
	if err != nil {
		return false, err
	}
	for _, rec := range recs {
		if rec.CaseIndex != nil && *rec.CaseIndex == caseIndex {
			return true, nil
		}
	}
	return false, nil
}

// maxLineSize bounds a single JSONL record (reports can be long).
const maxLineSize = 16 * 1024 * 1024

// ReadAll decodes every line of a JSONL file. A missing file yields no records.
func ReadAll[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: invalid JSON: %w", path, lineNo, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return out, nil
}
