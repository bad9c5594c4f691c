package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Judgment is the judge oracle's verdict on one evidence candidate.
type Judgment struct {
	Relevant   bool   `json:"relevant"`
	Sufficient bool   `json:"sufficient"`
	Reason     string `json:"reason"`
}

// JudgeCandidate asks whether a retrieved passage is relevant to the feedback
// and sufficient on its own to write a bug report. It never returns an error:
// a failed call or a non-JSON answer yields relevant=false, sufficient=false
// with the raw text (or the error) as the reason.
func (s *Supervisor) JudgeCandidate(ctx context.Context, feedback, candidate string) Judgment {
	prompt := fmt.Sprintf(`You evaluate whether a retrieved text is useful for writing a bug report.

User feedback:
%s

Candidate knowledge:
%s

"relevant" means the candidate describes the same problem area as the feedback.
"sufficient" means the candidate alone, together with the feedback, explains the
problem well enough to write a complete bug report.

Respond with ONLY valid JSON, no other text:
{"relevant": true|false, "sufficient": true|false, "reason": "one short explanation"}`,
		feedback, truncateString(candidate, 4000))

	text, err := s.CallAI(ctx, prompt, "judge", s.simpleModel, 256)
	if err != nil {
		slog.Warn("ai: judge call failed, treating candidate as irrelevant", "error", err)
		return Judgment{Reason: fmt.Sprintf("judge unavailable: %v", err)}
	}

	result := Parse[Judgment](text, "judge response")
	if !result.Success {
		return Judgment{Reason: strings.TrimSpace(text)}
	}
	j := result.Data
	// sufficiency without relevance is not a usable verdict
	if !j.Relevant {
		j.Sufficient = false
	}
	return j
}
