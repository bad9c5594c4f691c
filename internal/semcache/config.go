package semcache

import "fmt"

// Config holds semantic cache parameters.
type Config struct {
	// SimilarityThreshold is the minimum similarity for a cached entry to be
	// considered for reuse
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// TopK is how many nearest entries are retrieved per search
	TopK int `yaml:"top_k"`

	// Verify enables the secondary logical-equivalence check
	Verify bool `yaml:"verify"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.8,
		TopK:                3,
		Verify:              true,
	}
}

// Validate checks that the configuration values are sensible
func (c Config) Validate() error {
	if c.SimilarityThreshold < 0.0 || c.SimilarityThreshold > 1.0 {
		return fmt.Errorf("SimilarityThreshold must be between 0.0 and 1.0 (got %f)", c.SimilarityThreshold)
	}
	if c.TopK < 1 {
		return fmt.Errorf("TopK must be at least 1 (got %d)", c.TopK)
	}
	return nil
}
