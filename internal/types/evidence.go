package types

import (
	"fmt"
	"time"
)

// Tier identifiers for the two evidence corpora.
const (
	TierKB    = "kb"    // knowledge-base articles
	TierIssue = "issue" // historical issue reports
)

// EvidenceCandidate is one passage produced by an evidence tier and scored by fusion.
// Candidates are ephemeral and never persisted individually.
type EvidenceCandidate struct {
	Text       string  `json:"text"`
	Tier       string  `json:"tier"`
	Rank       int     `json:"rank"`     // position within the tier's own result list
	Distance   float64 `json:"distance"` // raw distance from the tier, 0 = identical
	Similarity float64 `json:"similarity"`
	Weight     float64 `json:"weight"`
	Score      float64 `json:"score"` // Weight * Similarity
}

// TierWeights are the adaptive per-tier weights derived for one case.
// W1 + W2 = 1.
type TierWeights struct {
	W1   float64 `json:"w1"`
	W2   float64 `json:"w2"`
	Beta float64 `json:"beta"`
	S1   float64 `json:"s1"` // peak similarity of tier 1
	S2   float64 `json:"s2"` // peak similarity of tier 2
}

func (w TierWeights) String() string {
	return fmt.Sprintf("w1=%.4f w2=%.4f beta=%.4f s1=%.4f s2=%.4f", w.W1, w.W2, w.Beta, w.S1, w.S2)
}

// FusedEvidence is the output of the fusion engine for one query.
type FusedEvidence struct {
	Candidates []EvidenceCandidate `json:"candidates"`
	Weights    TierWeights         `json:"weights"`
	Escalate   bool                `json:"escalate"` // both tiers individually weak
}

// Texts returns the candidate passages in rank order.
func (f *FusedEvidence) Texts() []string {
	out := make([]string, len(f.Candidates))
	for i, c := range f.Candidates {
		out[i] = c.Text
	}
	return out
}

// Passage is one stored evidence document belonging to a tier corpus.
type Passage struct {
	ID        int64     `json:"id"`
	Tier      string    `json:"tier"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"` // url or external id
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
