package fusion

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/bugsift/internal/embedding"
	"github.com/steveyegge/bugsift/internal/types"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{0.25, 0.75},
		{1, 0},
		{1.3, 0},
		{2, 0},
		{-0.1, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Similarity(tt.distance), 1e-12, "distance %v", tt.distance)
	}
}

func TestAdaptiveWeights_Normalized(t *testing.T) {
	peaks := []float64{0, 0.1, 0.33, 0.5, 0.74, 0.75, 0.9, 1}
	for _, s1 := range peaks {
		for _, s2 := range peaks {
			w := AdaptiveWeights(s1, s2, 2.0)
			assert.InDelta(t, 1.0, w.W1+w.W2, 1e-12)
			assert.Equal(t, s1 >= s2, w.W1 >= w.W2, "s1=%v s2=%v w=%v", s1, s2, w)
		}
	}
}

func TestAdaptiveWeights_EqualPeaksSplitEvenly(t *testing.T) {
	w := AdaptiveWeights(0.6, 0.6, 2.0)
	assert.Equal(t, 0.0, w.Beta)
	assert.InDelta(t, 0.5, w.W1, 1e-12)
	assert.InDelta(t, 0.5, w.W2, 1e-12)
}

func TestAdaptiveWeights_SharpensWithGap(t *testing.T) {
	narrow := AdaptiveWeights(0.6, 0.5, 2.0)
	wide := AdaptiveWeights(0.9, 0.5, 2.0)
	assert.Greater(t, wide.Beta, narrow.Beta)
	assert.Greater(t, wide.W1, narrow.W1)
	assert.InDelta(t, 2.0*0.4*5, wide.Beta, 1e-12)
}

func TestShouldEscalate_Boundary(t *testing.T) {
	assert.True(t, ShouldEscalate(0.74, 0.2, 0.75))
	assert.False(t, ShouldEscalate(0.75, 0.2, 0.75))
	assert.False(t, ShouldEscalate(0.2, 0.75, 0.75))
	assert.False(t, ShouldEscalate(0.75, 0.75, 0.75))
	assert.True(t, ShouldEscalate(0, 0, 0.75))
}

func TestRank_OrderingAndDedup(t *testing.T) {
	cfg := DefaultConfig()
	hits1 := []Hit{{"kb-a", 0.1}, {"shared", 0.3}, {"kb-b", 0.5}}
	hits2 := []Hit{{"issue-a", 0.2}, {"shared", 0.25}}

	got := Rank(hits1, hits2, cfg)
	require.NotNil(t, got)

	texts := got.Texts()
	assert.Equal(t, "kb-a", texts[0])
	assert.Len(t, texts, 4)

	for i := 1; i < len(got.Candidates); i++ {
		assert.GreaterOrEqual(t, got.Candidates[i-1].Score, got.Candidates[i].Score)
	}
	for _, c := range got.Candidates {
		assert.InDelta(t, c.Weight*c.Similarity, c.Score, 1e-12)
	}
	assert.False(t, got.Escalate)
}

func TestRank_TieBreakPreservesTierThenRank(t *testing.T) {
	cfg := DefaultConfig()
	hits1 := []Hit{{"kb-0", 0.2}, {"kb-1", 0.2}}
	hits2 := []Hit{{"issue-0", 0.2}, {"issue-1", 0.2}}

	got := Rank(hits1, hits2, cfg)
	assert.Equal(t, []string{"kb-0", "kb-1", "issue-0", "issue-1"}, got.Texts())
}

func TestRank_Idempotent(t *testing.T) {
	cfg := DefaultConfig()
	hits1 := []Hit{{"a", 0.31}, {"b", 0.4}, {"c", 0.4}, {"d", 0.9}}
	hits2 := []Hit{{"e", 0.35}, {"b", 0.2}, {"f", 1.4}}

	first := Rank(hits1, hits2, cfg)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, Rank(hits1, hits2, cfg)); diff != "" {
			t.Fatalf("fusion not idempotent (-first +again):\n%s", diff)
		}
	}
}

func TestRank_TruncatesAndHandlesEmpty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopN = 2
	got := Rank([]Hit{{"a", 0.1}, {"b", 0.2}, {"c", 0.3}}, nil, cfg)
	assert.Equal(t, []string{"a", "b"}, got.Texts())
	assert.Equal(t, 0.0, got.Weights.S2)

	empty := Rank(nil, nil, cfg)
	assert.Empty(t, empty.Candidates)
	assert.True(t, empty.Escalate)
	assert.InDelta(t, 0.5, empty.Weights.W1, 1e-12)
}

type failingTier struct{}

func (failingTier) Name() string { return "broken" }
func (failingTier) Query(context.Context, string, int) ([]Hit, error) {
	return nil, errors.New("collection unavailable")
}

func TestEngine_TierFailureDegrades(t *testing.T) {
	e, err := NewEngine(NewStaticTier(types.TierKB, []string{"x", "y"}), failingTier{}, DefaultConfig())
	require.NoError(t, err)

	got := e.Fuse(context.Background(), "query")
	assert.Equal(t, []string{"x", "y"}, got.Texts())
	assert.InDelta(t, 1.0, got.Weights.S1, 1e-12)
	assert.Equal(t, 0.0, got.Weights.S2)
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BetaBase = 0
	_, err := NewEngine(NewStaticTier("a", nil), NewStaticTier("b", nil), cfg)
	assert.Error(t, err)
}

type memPassages map[string][]*types.Passage

func (m memPassages) ListPassages(_ context.Context, tier string) ([]*types.Passage, error) {
	return m[tier], nil
}

type axisEmbedder struct{}

func (axisEmbedder) Dims() int { return 2 }
func (axisEmbedder) Embed(_ context.Context, text string) (embedding.Vector, error) {
	if text == "crash" {
		return embedding.Vector{1, 0}, nil
	}
	return embedding.Vector{0, 1}, nil
}

func TestSQLiteTier_RanksByCosineDistance(t *testing.T) {
	store := memPassages{
		types.TierIssue: {
			{Text: "orthogonal", Embedding: []float32{0, 1}},
			{Text: "exact", Embedding: []float32{1, 0}},
			{Text: "close", Embedding: []float32{1, 1}},
			{Text: "no vector"},
		},
	}
	tier := NewSQLiteTier(types.TierIssue, store, axisEmbedder{})

	hits, err := tier.Query(context.Background(), "crash", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].Text)
	assert.InDelta(t, 0, hits[0].Distance, 1e-9)
	assert.Equal(t, "close", hits[1].Text)

	hits, err = tier.Query(context.Background(), "crash", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	none, err := NewSQLiteTier(types.TierKB, store, axisEmbedder{}).Query(context.Background(), "crash", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}
