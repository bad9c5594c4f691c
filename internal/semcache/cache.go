// Package semcache is the semantic reuse cache: it maps feedback to
// previously synthesized reports and answers whether new feedback is
// equivalent to something already solved.
package semcache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/steveyegge/bugsift/internal/ai"
	"github.com/steveyegge/bugsift/internal/embedding"
	"github.com/steveyegge/bugsift/internal/types"
)

// Store is the append-only backing store.
type Store interface {
	AddCacheEntry(ctx context.Context, entry *types.CacheEntry) error
	ListCacheEntries(ctx context.Context) ([]*types.CacheEntry, error)
	CountCacheEntries(ctx context.Context) (int, error)
}

// Verifier is the secondary equivalence oracle.
type Verifier interface {
	VerifyReuse(ctx context.Context, feedback string, candidates []types.ScoredCacheEntry) (*ai.ReuseVerdict, error)
}

// Cache answers reuse queries over stored reports.
// The cache is a speed/cost optimization: every failure inside Search
// degrades to "no reuse".
type Cache struct {
	store    Store
	embedder embedding.Embedder
	verifier Verifier
	cfg      Config
}

// New creates a cache. verifier may be nil when cfg.Verify is false.
func New(store Store, embedder embedding.Embedder, verifier Verifier, cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}
	if store == nil || embedder == nil {
		return nil, fmt.Errorf("cache requires a store and an embedder")
	}
	if cfg.Verify && verifier == nil {
		return nil, fmt.Errorf("cache verification enabled without a verifier")
	}
	return &Cache{store: store, embedder: embedder, verifier: verifier, cfg: cfg}, nil
}

// Add stores one new entry. It never deduplicates.
func (c *Cache) Add(ctx context.Context, feedback, report string, metadata map[string]string) (*types.CacheEntry, error) {
	vec, err := c.embedder.Embed(ctx, feedback)
	if err != nil {
		return nil, fmt.Errorf("embed feedback: %w", err)
	}
	entry := &types.CacheEntry{
		Feedback:  feedback,
		Embedding: vec,
		Report:    report,
		Metadata:  metadata,
	}
	if err := c.store.AddCacheEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Search returns a reuse decision for feedback, or nil for no reuse.
// Verification follows c's configuration.
func (c *Cache) Search(ctx context.Context, feedback string) *types.ReuseDecision {
	return c.SearchWith(ctx, feedback, c.cfg.TopK, c.cfg.Verify)
}

// SearchWith is Search with explicit topK and verify settings.
func (c *Cache) SearchWith(ctx context.Context, feedback string, topK int, verify bool) *types.ReuseDecision {
	nearest, err := c.Nearest(ctx, feedback, topK)
	if err != nil {
		slog.Warn("semcache: lookup failed, skipping reuse", "error", err)
		return nil
	}

	var qualifying []types.ScoredCacheEntry
	for _, n := range nearest {
		if n.Similarity >= c.cfg.SimilarityThreshold {
			qualifying = append(qualifying, n)
		}
	}
	if len(qualifying) == 0 {
		slog.Debug("semcache: no entry above threshold", "threshold", c.cfg.SimilarityThreshold, "nearest", len(nearest))
		return nil
	}

	if !verify {
		top := qualifying[0]
		return &types.ReuseDecision{
			Entry:      top.Entry,
			Similarity: top.Similarity,
			Rationale:  "direct similarity reuse (verification disabled)",
			Candidates: qualifying,
		}
	}

	if c.verifier == nil {
		slog.Warn("semcache: verification requested without a verifier, skipping reuse")
		return nil
	}
	verdict, err := c.verifier.VerifyReuse(ctx, feedback, qualifying)
	if err != nil {
		slog.Warn("semcache: verification failed, skipping reuse", "error", err)
		return nil
	}
	if !verdict.Reuse {
		slog.Debug("semcache: verifier rejected reuse", "rationale", verdict.Rationale)
		return nil
	}

	// matched_indices are 1-based; the first valid one wins
	for _, idx := range verdict.MatchedIndices {
		if idx < 1 || idx > len(qualifying) {
			continue
		}
		match := qualifying[idx-1]
		return &types.ReuseDecision{
			Entry:      match.Entry,
			Similarity: match.Similarity,
			Rationale:  verdict.Rationale,
			Candidates: qualifying,
		}
	}

	slog.Warn("semcache: verifier returned no valid indices, skipping reuse",
		"indices", verdict.MatchedIndices, "candidates", len(qualifying))
	return nil
}

// Nearest returns the topK stored entries most similar to feedback, highest
// similarity first. Similarity is cosine similarity clamped to [0, 1].
func (c *Cache) Nearest(ctx context.Context, feedback string, topK int) ([]types.ScoredCacheEntry, error) {
	entries, err := c.store.ListCacheEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	vec, err := c.embedder.Embed(ctx, feedback)
	if err != nil {
		return nil, fmt.Errorf("embed feedback: %w", err)
	}

	scored := make([]types.ScoredCacheEntry, 0, len(entries))
	for _, e := range entries {
		sim := embedding.CosineSimilarity(vec, e.Embedding)
		if sim < 0 {
			sim = 0
		}
		scored = append(scored, types.ScoredCacheEntry{Entry: *e, Similarity: sim})
	}
	// older entries win ties
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Entries returns every cached entry in insertion order.
func (c *Cache) Entries(ctx context.Context) ([]*types.CacheEntry, error) {
	return c.store.ListCacheEntries(ctx)
}

// Count returns the number of cached entries.
func (c *Cache) Count(ctx context.Context) (int, error) {
	return c.store.CountCacheEntries(ctx)
}
