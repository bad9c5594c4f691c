package types

import (
	"encoding/json"
	"strings"
)

// CaseMemory is the working memory of one case while the orchestrator runs it.
// It is owned by a single orchestrator invocation and discarded afterwards;
// only its terminal snapshot is written to the logs.
type CaseMemory struct {
	CaseID    string         `json:"id,omitempty"`
	Feedback  string         `json:"feedback"`
	Collected []string       `json:"collected"`
	Decision  string         `json:"decision,omitempty"`
	BugReport string         `json:"bug_report,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewCaseMemory creates an empty memory for the given case.
func NewCaseMemory(c *FeedbackCase) *CaseMemory {
	return &CaseMemory{
		CaseID:    c.ID,
		Feedback:  c.Feedback,
		Collected: []string{},
		Metadata:  map[string]any{},
	}
}

// AddEvidence appends a relevant-but-insufficient passage. Order is preserved.
func (m *CaseMemory) AddEvidence(doc string) {
	m.Collected = append(m.Collected, doc)
}

// SetDecision overwrites the latest rationale.
func (m *CaseMemory) SetDecision(decision string) {
	m.Decision = decision
}

// SetBugReport stores the final report. Only the first call has an effect.
func (m *CaseMemory) SetBugReport(report string) bool {
	if m.BugReport != "" {
		return false
	}
	m.BugReport = report
	return true
}

// HasReport reports whether a report was synthesized.
func (m *CaseMemory) HasReport() bool {
	return m.BugReport != ""
}

// ToContext packs the memory into a single prompt context.
func (m *CaseMemory) ToContext() string {
	parts := []string{"User feedback:\n" + m.Feedback + "\n"}
	if len(m.Collected) > 0 {
		parts = append(parts, "Relevant but partial knowledge:\n"+strings.Join(m.Collected, "\n"))
	}
	if m.Decision != "" {
		parts = append(parts, "Reasoning summary:\n"+m.Decision)
	}
	return strings.Join(parts, "\n\n")
}

// ToJSON renders the terminal snapshot.
func (m *CaseMemory) ToJSON() string {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
