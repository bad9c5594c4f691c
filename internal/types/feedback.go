// Package types holds the data model shared by the bugsift pipeline.
package types

import (
	"fmt"
	"strings"
)

// FeedbackCase is one unit of raw end-user feedback loaded from the input file.
// It is immutable once loaded.
type FeedbackCase struct {
	ID            string   `json:"id"`
	Feedback      string   `json:"user_feedback"`
	RetrievedList []string `json:"retrieved_list,omitempty"` // pre-computed evidence, optional
}

// Validate checks that the case carries something to triage
func (c *FeedbackCase) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("case id is required")
	}
	if strings.TrimSpace(c.Feedback) == "" {
		return fmt.Errorf("case %s: user_feedback is required", c.ID)
	}
	return nil
}
