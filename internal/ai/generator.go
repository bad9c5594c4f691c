package ai

import (
	"context"
	"fmt"
	"strings"
)

// Severity levels a generated report may carry.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// BugReport is the schema the generator is asked to follow. Reports are
// stored exactly as the model wrote them; this type only serves inspection.
type BugReport struct {
	Title            string   `json:"title"`
	StepsToReproduce []string `json:"steps_to_reproduce"`
	ExpectedResult   string   `json:"expected_result"`
	ActualResult     string   `json:"actual_result"`
	PossibleCause    string   `json:"possible_cause"`
	Severity         string   `json:"severity"`
}

// ParseBugReport decodes a stored report. ok is false when the text does not
// follow the schema.
func ParseBugReport(text string) (BugReport, bool) {
	result := Parse[BugReport](text, "bug report")
	if !result.Success || result.Data.Title == "" {
		return BugReport{}, false
	}
	return result.Data, true
}

// GenerateReport synthesizes a structured bug report from a free-form context.
// Malformed output is returned as-is; only transport failures are errors.
func (s *Supervisor) GenerateReport(ctx context.Context, reportContext string) (string, error) {
	prompt := fmt.Sprintf(`You are a software testing assistant that writes structured bug reports.

Based on the following context, output ONLY this JSON object, no other text:
{
  "title": "...",
  "steps_to_reproduce": ["..."],
  "expected_result": "...",
  "actual_result": "...",
  "possible_cause": "...",
  "severity": "%s | %s | %s"
}

Context:
%s`, SeverityLow, SeverityMedium, SeverityHigh, reportContext)

	text, err := s.CallAI(ctx, prompt, "generate-report", s.model, 1024)
	if err != nil {
		return "", fmt.Errorf("report generation failed: %w", err)
	}

	report := strings.TrimSpace(text)
	// Strip a code fence but otherwise keep the model's text verbatim
	if unfenced := removeCodeFences(report); unfenced != "" {
		report = unfenced
	}
	return report, nil
}
