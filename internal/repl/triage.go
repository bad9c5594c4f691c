package repl

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/steveyegge/bugsift/internal/types"
)

// triage runs feedback through the orchestrator without persistence.
func (r *REPL) triage(feedback string) error {
	r.runs++
	c := &types.FeedbackCase{ID: fmt.Sprintf("shell-%d", r.runs), Feedback: feedback}

	res, err := r.triager.Run(r.ctx, c, -1)
	if err != nil {
		return fmt.Errorf("triage failed: %w", err)
	}
	r.last = res

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Fprintf(r.out, "\n%s %s %s\n", cyan("State:"), stateColor(res.State), gray(res.Duration.Round(1e6)))
	if res.Candidates > 0 {
		fmt.Fprintf(r.out, "  evidence: %d candidates (%s)\n", res.Candidates, res.Weights)
	}
	if res.Reuse != nil {
		fmt.Fprintf(r.out, "  reused cache entry %s (similarity %.3f)\n", res.Reuse.Entry.ID, res.Reuse.Similarity)
	}
	if res.Rationale != "" {
		fmt.Fprintf(r.out, "  rationale: %s\n", res.Rationale)
	}
	if res.Summary != "" {
		fmt.Fprintf(r.out, "  web summary: %s\n", res.Summary)
	}
	if res.Report != "" {
		fmt.Fprintf(r.out, "\n%s\n%s\n", cyan("Report:"), res.Report)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdFuse(args []string) error {
	if r.fuser == nil {
		return fmt.Errorf("no evidence tiers configured")
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: fuse <text>")
	}
	fused := r.fuser.Fuse(r.ctx, strings.Join(args, " "))

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", fused.Weights)
	if fused.Escalate {
		fmt.Fprintf(r.out, "%s both tiers below threshold, local evidence is weak\n", yellow("⚠"))
	}
	for i, c := range fused.Candidates {
		fmt.Fprintf(r.out, "  %2d. [%s] score=%.4f sim=%.4f  %s\n", i+1, c.Tier, c.Score, c.Similarity, oneLine(c.Text, 100))
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdCache(args []string) error {
	if r.cache == nil {
		return fmt.Errorf("semantic cache not configured")
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: cache <text>")
	}
	d := r.cache.Search(r.ctx, strings.Join(args, " "))
	if d == nil {
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Fprintf(r.out, "%s\n", gray("no reusable report"))
		return nil
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "%s reuse %s (similarity %.3f): %s\n", green("✓"), d.Entry.ID, d.Similarity, d.Rationale)
	fmt.Fprintf(r.out, "  feedback: %s\n", oneLine(d.Entry.Feedback, 100))
	return nil
}

func (r *REPL) cmdShow(args []string) error {
	if r.last == nil {
		return fmt.Errorf("nothing triaged yet")
	}
	fmt.Fprintln(r.out, r.last.Memory.ToJSON())
	return nil
}

func stateColor(s types.CaseState) string {
	switch {
	case s == types.StateReused:
		return color.New(color.FgCyan).Sprint(s)
	case s.ProducesReport():
		return color.New(color.FgGreen).Sprint(s)
	default:
		return color.New(color.FgYellow).Sprint(s)
	}
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}
