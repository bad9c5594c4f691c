package fusion

import (
	"context"
	"fmt"
	"sort"

	"github.com/steveyegge/bugsift/internal/embedding"
	"github.com/steveyegge/bugsift/internal/types"
)

// Hit is one passage returned by a tier with its raw distance (0 = identical).
type Hit struct {
	Text     string
	Distance float64
}

// Tier is one vector-similarity evidence corpus.
type Tier interface {
	Name() string
	// Query returns up to k passages ordered by ascending distance.
	Query(ctx context.Context, text string, k int) ([]Hit, error)
}

// PassageStore lists the passages stored for a tier.
type PassageStore interface {
	ListPassages(ctx context.Context, tier string) ([]*types.Passage, error)
}

// SQLiteTier ranks the stored passages of one tier by cosine distance to the
// embedded query. The scan is brute force; corpora here are small.
type SQLiteTier struct {
	name     string
	store    PassageStore
	embedder embedding.Embedder
}

// NewSQLiteTier creates a tier over the passages stored under name.
func NewSQLiteTier(name string, store PassageStore, embedder embedding.Embedder) *SQLiteTier {
	return &SQLiteTier{name: name, store: store, embedder: embedder}
}

func (t *SQLiteTier) Name() string { return t.name }

func (t *SQLiteTier) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	passages, err := t.store.ListPassages(ctx, t.name)
	if err != nil {
		return nil, fmt.Errorf("list %s passages: %w", t.name, err)
	}
	if len(passages) == 0 {
		return nil, nil
	}

	qv, err := t.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits := make([]Hit, 0, len(passages))
	for _, p := range passages {
		if len(p.Embedding) == 0 {
			continue
		}
		hits = append(hits, Hit{Text: p.Text, Distance: embedding.CosineDistance(qv, p.Embedding)})
	}
	// passages come back in insertion order, so ties keep it
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// StaticTier serves a fixed, pre-ranked passage list at distance 0.
type StaticTier struct {
	name     string
	passages []string
}

// NewStaticTier wraps a pre-computed evidence list.
func NewStaticTier(name string, passages []string) *StaticTier {
	return &StaticTier{name: name, passages: passages}
}

func (t *StaticTier) Name() string { return t.name }

func (t *StaticTier) Query(_ context.Context, _ string, k int) ([]Hit, error) {
	n := len(t.passages)
	if k > 0 && n > k {
		n = k
	}
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{Text: t.passages[i]}
	}
	return hits, nil
}
