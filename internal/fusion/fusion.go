// Package fusion merges ranked evidence from two independently scored tiers
// into one priority-ordered list using confidence-adaptive weights.
package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/steveyegge/bugsift/internal/types"
)

// Similarity converts a tier distance to a similarity clamped to [0, 1].
func Similarity(distance float64) float64 {
	s := 1 - distance
	if s < 0 || math.IsNaN(s) {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Peak returns the maximum similarity among hits, or 0 for an empty list.
func Peak(hits []Hit) float64 {
	peak := 0.0
	for _, h := range hits {
		if s := Similarity(h.Distance); s > peak {
			peak = s
		}
	}
	return peak
}

// AdaptiveWeights computes softmax-style tier weights from the two peak
// similarities. Equal peaks give 0.5/0.5; a wider gap sharpens the split
// toward the more confident tier.
func AdaptiveWeights(s1, s2, betaBase float64) types.TierWeights {
	beta := betaBase * math.Abs(s1-s2) * 5
	// exp(b*s1) / (exp(b*s1) + exp(b*s2)) rewritten to avoid overflow
	w1 := 1 / (1 + math.Exp(beta*(s2-s1)))
	return types.TierWeights{
		W1:   w1,
		W2:   1 - w1,
		Beta: beta,
		S1:   s1,
		S2:   s2,
	}
}

// ShouldEscalate reports whether both tiers are individually weak.
// The comparison is strict: a peak equal to the threshold does not escalate.
func ShouldEscalate(s1, s2, thresholdLow float64) bool {
	return s1 < thresholdLow && s2 < thresholdLow
}

// Rank fuses two tiers' hits into one ranked, de-duplicated list. It is a
// pure function of its inputs: identical hits always give an identical list.
func Rank(hits1, hits2 []Hit, cfg Config) *types.FusedEvidence {
	s1, s2 := Peak(hits1), Peak(hits2)
	weights := AdaptiveWeights(s1, s2, cfg.BetaBase)

	merged := make([]types.EvidenceCandidate, 0, len(hits1)+len(hits2))
	merged = appendScored(merged, hits1, types.TierKB, weights.W1)
	merged = appendScored(merged, hits2, types.TierIssue, weights.W2)

	// Stable: equal scores keep tier-1-before-tier-2, then within-tier rank.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	seen := make(map[string]bool, len(merged))
	out := make([]types.EvidenceCandidate, 0, len(merged))
	for _, c := range merged {
		if seen[c.Text] {
			continue
		}
		seen[c.Text] = true
		out = append(out, c)
		if cfg.TopN > 0 && len(out) == cfg.TopN {
			break
		}
	}

	return &types.FusedEvidence{
		Candidates: out,
		Weights:    weights,
		Escalate:   ShouldEscalate(s1, s2, cfg.ThresholdLow),
	}
}

func appendScored(dst []types.EvidenceCandidate, hits []Hit, tier string, weight float64) []types.EvidenceCandidate {
	for i, h := range hits {
		sim := Similarity(h.Distance)
		dst = append(dst, types.EvidenceCandidate{
			Text:       h.Text,
			Tier:       tier,
			Rank:       i,
			Distance:   h.Distance,
			Similarity: sim,
			Weight:     weight,
			Score:      weight * sim,
		})
	}
	return dst
}

// Engine queries both tiers and fuses their results.
type Engine struct {
	tier1 Tier
	tier2 Tier
	cfg   Config
}

// NewEngine creates a fusion engine over the KB tier (tier1) and the issue tier (tier2).
func NewEngine(tier1, tier2 Tier, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fusion config: %w", err)
	}
	if tier1 == nil || tier2 == nil {
		return nil, fmt.Errorf("both evidence tiers are required")
	}
	return &Engine{tier1: tier1, tier2: tier2, cfg: cfg}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Fuse queries both tiers with the same text and returns the ranked evidence.
// A failing tier contributes no evidence instead of failing the query.
func (e *Engine) Fuse(ctx context.Context, text string) *types.FusedEvidence {
	hits1 := e.query(ctx, e.tier1, text)
	hits2 := e.query(ctx, e.tier2, text)

	fused := Rank(hits1, hits2, e.cfg)
	slog.Debug("fusion: ranked evidence",
		"tier1", e.tier1.Name(), "tier1_hits", len(hits1),
		"tier2", e.tier2.Name(), "tier2_hits", len(hits2),
		"weights", fused.Weights.String(),
		"escalate", fused.Escalate,
		"candidates", len(fused.Candidates))
	return fused
}

func (e *Engine) query(ctx context.Context, tier Tier, text string) []Hit {
	hits, err := tier.Query(ctx, text, e.cfg.K)
	if err != nil {
		slog.Warn("fusion: tier unavailable, treating as no evidence", "tier", tier.Name(), "error", err)
		return nil
	}
	if len(hits) > e.cfg.K {
		hits = hits[:e.cfg.K]
	}
	return hits
}
