package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/steveyegge/bugsift/internal/types"
)

// SearchDecision is the verdict on a web-search summary.
type SearchDecision struct {
	Action    types.Action `json:"action"` // generate or store
	Rationale string       `json:"rationale"`
	Context   string       `json:"context"`
}

// GenerateQueries writes up to max short web-search queries for the feedback.
// On any failure it falls back to searching the feedback itself.
func (s *Supervisor) GenerateQueries(ctx context.Context, feedback string, max int) []string {
	fallback := []string{feedback}

	prompt := fmt.Sprintf(`You write web search queries to find similar software issues.

Feedback:
%s

Write 3 to %d concise, generic search queries (each at most 8 words) that could
find similar issues in other apps or systems.

Respond with ONLY a JSON array of strings, no other text.`, feedback, max)

	text, err := s.CallAI(ctx, prompt, "search-queries", s.simpleModel, 256)
	if err != nil {
		slog.Warn("ai: query generation failed, searching raw feedback", "error", err)
		return fallback
	}

	result := Parse[[]string](text, "search queries")
	if !result.Success {
		return fallback
	}

	var queries []string
	seen := map[string]bool{}
	for _, q := range result.Data {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		queries = append(queries, q)
		if max > 0 && len(queries) == max {
			break
		}
	}
	if len(queries) == 0 {
		return fallback
	}
	return queries
}

// SummarizeResults condenses search results into a short technical summary.
// Only the first maxResults results are shown to the model. An empty string
// is returned when there is nothing to summarize or the call fails.
func (s *Supervisor) SummarizeResults(ctx context.Context, feedback string, results []string, maxResults int) string {
	if len(results) == 0 {
		return ""
	}
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}

	prompt := fmt.Sprintf(`You are a software analysis assistant.
Given the user's feedback and the following online findings, summarize possible
causes, patterns or insights that may help write a bug report.

User feedback:
%s

Online findings:
%s

Summarize the relevant findings in concise technical English (2-4 sentences).`,
		feedback, numbered(results, 1000))

	text, err := s.CallAI(ctx, prompt, "summarize-search", s.simpleModel, 512)
	if err != nil {
		slog.Warn("ai: search summarization failed", "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

// JudgeSummary decides whether the search summary, together with the feedback
// and collected evidence, is enough to write a report. Anything other than a
// clean "generate" verdict degrades to "store".
func (s *Supervisor) JudgeSummary(ctx context.Context, feedback string, collected []string, summary string) SearchDecision {
	fallbackContext := joinContext(feedback, collected, summary)
	if strings.TrimSpace(summary) == "" {
		return SearchDecision{Action: types.ActionStore, Rationale: "no usable search findings", Context: fallbackContext}
	}

	prompt := fmt.Sprintf(`You decide whether summarized online information is relevant and
sufficient to write a structured bug report.

User feedback:
%s

Evidence collected from the knowledge base:
%s

Summary of online findings:
%s

Respond with ONLY valid JSON, no other text:
{"action": "generate" or "store", "rationale": "one-sentence reason", "context": "if generate, any extra notes for the report writer"}`,
		feedback, evidenceOrNone(collected), summary)

	text, err := s.CallAI(ctx, prompt, "judge-summary", s.simpleModel, 512)
	if err != nil {
		return SearchDecision{Action: types.ActionStore, Rationale: fmt.Sprintf("summary judge unavailable: %v", err), Context: fallbackContext}
	}

	result := Parse[SearchDecision](text, "summary judgment")
	if !result.Success {
		return SearchDecision{Action: types.ActionStore, Rationale: strings.TrimSpace(text), Context: fallbackContext}
	}

	d := result.Data
	d.Action = types.Action(strings.ToLower(strings.TrimSpace(string(d.Action))))
	if d.Action != types.ActionGenerate {
		d.Action = types.ActionStore
	}
	// The report context always carries the feedback, evidence and summary;
	// the model's notes only extend it.
	notes := strings.TrimSpace(d.Context)
	d.Context = fallbackContext
	if notes != "" && d.Action == types.ActionGenerate {
		d.Context += "\n\n" + notes
	}
	return d
}

func evidenceOrNone(collected []string) string {
	if len(collected) == 0 {
		return "(none)"
	}
	return numbered(collected, 1000)
}

func joinContext(feedback string, collected []string, summary string) string {
	parts := []string{feedback}
	if len(collected) > 0 {
		parts = append(parts, strings.Join(collected, "\n"))
	}
	if summary != "" {
		parts = append(parts, summary)
	}
	return strings.Join(parts, "\n\n")
}
