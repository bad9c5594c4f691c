package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/steveyegge/bugsift/internal/types"
)

// ReasoningDecision is the escalation verdict.
type ReasoningDecision struct {
	Action    types.Action `json:"action"`
	Rationale string       `json:"rationale"`
	// Context is the synthesized report context when Action is generate.
	Context string `json:"context"`
}

// Reason decides how to proceed when no single candidate was sufficient:
// generate a report from the collected evidence, search the web, store the
// case for offline processing, or give up.
//
// The response must be strict JSON. Any call failure, parse failure or
// unknown action token yields ActionNone with the raw text as rationale.
func (s *Supervisor) Reason(ctx context.Context, feedback string, collected []string) ReasoningDecision {
	evidence := "(none)"
	if len(collected) > 0 {
		evidence = numbered(collected, 2000)
	}

	prompt := fmt.Sprintf(`You are a reasoning agent deciding how to produce a bug report.

User feedback:
%s

Collected information (relevant but individually insufficient):
%s

Decide on exactly ONE action:
- "generate": the collected information is enough to write a bug report. Put a
  complete report context (feedback plus the key facts) in "context".
- "search": more information from the web is needed.
- "store": the feedback is actionable later but nothing more can be done now.
- "none": the feedback is not actionable.

Respond with ONLY valid JSON, no other text:
{"action": "generate|search|store|none", "rationale": "one sentence", "context": "..."}`,
		feedback, evidence)

	text, err := s.CallAI(ctx, prompt, "reason", s.model, 1024)
	if err != nil {
		slog.Warn("ai: reasoning call failed, defaulting to none", "error", err)
		return ReasoningDecision{Action: types.ActionNone, Rationale: fmt.Sprintf("reasoner unavailable: %v", err)}
	}

	result := Parse[ReasoningDecision](text, "reasoning response")
	if !result.Success {
		return ReasoningDecision{Action: types.ActionNone, Rationale: strings.TrimSpace(text)}
	}

	d := result.Data
	d.Action = types.Action(strings.ToLower(strings.TrimSpace(string(d.Action))))
	if !d.Action.IsValid() {
		return ReasoningDecision{
			Action:    types.ActionNone,
			Rationale: fmt.Sprintf("invalid action %q: %s", d.Action, d.Rationale),
		}
	}
	if d.Action == types.ActionGenerate && strings.TrimSpace(d.Context) == "" {
		d.Context = feedback + "\n\n" + strings.Join(collected, "\n")
	}
	return d
}
