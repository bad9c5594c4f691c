package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/steveyegge/bugsift/internal/types"
	"github.com/steveyegge/bugsift/internal/websearch"
)

// search runs the web-search escalation: write queries, search each one,
// de-duplicate, summarize and judge the summary. It returns SEARCH_GENERATE
// with a report in mem, or SEARCH_STORE.
func (o *Orchestrator) search(ctx context.Context, mem *types.CaseMemory) (types.CaseState, string, error) {
	queries := o.agent.GenerateQueries(ctx, mem.Feedback, o.cfg.SearchQueries)
	mem.Metadata["search_queries"] = queries

	var results []websearch.Result
	if o.searcher != nil {
		for _, q := range queries {
			if err := ctx.Err(); err != nil {
				return "", "", err
			}
			results = append(results, o.searcher.Search(ctx, q, o.cfg.SearchResultsPerQuery)...)
		}
	}
	results = websearch.Dedupe(results)
	slog.Debug("pipeline: web search", "case_id", mem.CaseID, "queries", len(queries), "results", len(results))

	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = r.String()
	}
	summary := o.agent.SummarizeResults(ctx, mem.Feedback, lines, o.cfg.SummaryMaxResults)

	decision := o.agent.JudgeSummary(ctx, mem.Feedback, mem.Collected, summary)
	mem.SetDecision(decision.Rationale)
	mem.Metadata["search_results"] = len(results)

	if decision.Action != types.ActionGenerate {
		return types.StateSearchStore, summary, nil
	}
	if err := o.synthesize(ctx, mem, searchContext(mem, summary, decision.Context)); err != nil {
		return "", "", err
	}
	return types.StateSearchGenerate, summary, nil
}

// searchContext is the judge's report context, extended with the feedback,
// the summary and any collected evidence it left out.
func searchContext(mem *types.CaseMemory, summary, judged string) string {
	parts := []string{strings.TrimSpace(judged)}
	if !strings.Contains(judged, mem.Feedback) {
		parts = append(parts, "User feedback:\n"+mem.Feedback)
	}
	var missing []string
	for _, e := range mem.Collected {
		if !strings.Contains(judged, e) {
			missing = append(missing, e)
		}
	}
	if len(missing) > 0 {
		parts = append(parts, "Collected evidence:\n"+strings.Join(missing, "\n"))
	}
	if summary != "" && !strings.Contains(judged, summary) {
		parts = append(parts, "Online findings:\n"+summary)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}
