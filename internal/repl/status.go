package repl

import (
	"fmt"

	"github.com/fatih/color"
)

// cmdStatus shows progress and reuse counters
func (r *REPL) cmdStatus(args []string) error {
	if r.status == nil {
		return fmt.Errorf("no state store configured")
	}
	p, err := r.status.GetProgress(r.ctx)
	if err != nil {
		return fmt.Errorf("failed to get progress: %w", err)
	}
	c, err := r.status.GetCounters(r.ctx)
	if err != nil {
		return fmt.Errorf("failed to get counters: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("Progress"))
	fmt.Fprintf(r.out, "  last index: %d\n", p.LastIndex)
	fmt.Fprintf(r.out, "  cases:      %d\n", c.CaseCount)
	fmt.Fprintf(r.out, "  reused:     %d (%.1f%%)\n\n", c.ReuseCount, 100*c.ReuseRate())
	return nil
}
