package types

import "time"

// CacheEntry is one previously synthesized report kept in the semantic cache.
// Entries are append-only: never updated, never deleted.
type CacheEntry struct {
	ID        string            `json:"id"`
	Feedback  string            `json:"feedback"`
	Embedding []float32         `json:"-"`
	Report    string            `json:"report"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ScoredCacheEntry is a cache entry with its similarity to a query.
type ScoredCacheEntry struct {
	Entry      CacheEntry `json:"entry"`
	Similarity float64    `json:"similarity"`
}

// ReuseDecision is the positive outcome of a cache search. A nil
// *ReuseDecision means "no reuse".
type ReuseDecision struct {
	Entry      CacheEntry         `json:"entry"`
	Similarity float64            `json:"similarity"`
	Rationale  string             `json:"rationale"`
	Candidates []ScoredCacheEntry `json:"candidates,omitempty"` // entries that passed the threshold
}
