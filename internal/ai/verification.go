package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/bugsift/internal/types"
)

// ReuseVerdict is the cache-verification oracle's answer.
// MatchedIndices are 1-based positions in the candidate list that was shown.
type ReuseVerdict struct {
	Reuse          bool   `json:"reuse"`
	MatchedIndices []int  `json:"matched_indices"`
	Rationale      string `json:"rationale"`
}

// VerifyReuse asks whether any cached feedback describes the same issue as
// the new feedback. Transport and parse failures are returned as errors; the
// caller decides how to degrade.
func (s *Supervisor) VerifyReuse(ctx context.Context, feedback string, candidates []types.ScoredCacheEntry) (*ReuseVerdict, error) {
	if len(candidates) == 0 {
		return &ReuseVerdict{Rationale: "no candidates"}, nil
	}

	prompt := s.buildReusePrompt(feedback, candidates)
	text, err := s.CallAI(ctx, prompt, "verify-reuse", s.model, 512)
	if err != nil {
		return nil, fmt.Errorf("reuse verification failed: %w", err)
	}

	result := Parse[ReuseVerdict](text, "reuse verification response")
	if !result.Success {
		return nil, fmt.Errorf("failed to parse reuse verdict: %s (response: %s)", result.Error, truncateString(text, 200))
	}
	return &result.Data, nil
}

func (s *Supervisor) buildReusePrompt(feedback string, candidates []types.ScoredCacheEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `You are deciding whether any past feedback entries describe the SAME issue
as the new feedback, so that an existing bug report can be reused.

New feedback:
%s

Candidate feedback from memory:
`, feedback)

	for i, c := range candidates {
		fmt.Fprintf(&sb, "\n[Candidate #%d]\nFeedback: %s\n(Similarity=%.3f)\n",
			i+1, truncateString(c.Entry.Feedback, 2000), c.Similarity)
	}

	sb.WriteString(`
Only match candidates that describe the same defect, not merely the same feature area.

Respond with ONLY valid JSON, no other text:
{"reuse": true|false, "matched_indices": [candidate numbers, 1-based], "rationale": "1-2 sentences"}`)
	return sb.String()
}
