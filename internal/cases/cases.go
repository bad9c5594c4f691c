// Package cases loads the JSONL feedback input. A case's index is its
// zero-based line number among non-blank lines, which is what the progress
// record counts.
package cases

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/steveyegge/bugsift/internal/types"
)

const maxLineSize = 16 * 1024 * 1024

// Load reads every case from a JSONL file.
func Load(path string) ([]*types.FeedbackCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open case file: %w", err)
	}
	defer f.Close()

	out, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// Read decodes cases from r. Cases without an id get their index as id.
func Read(r io.Reader) ([]*types.FeedbackCase, error) {
	var out []*types.FeedbackCase
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var c types.FeedbackCase
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNo, err)
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("%d", len(out))
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, &c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cases: %w", err)
	}
	return out, nil
}
