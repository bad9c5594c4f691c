package pipeline

import (
	"fmt"
)

// Config holds the tunables of the orchestrator and runner.
type Config struct {
	MaxAttempts           int  `yaml:"max_attempts"`             // attempts before a case is dead-lettered
	Workers               int  `yaml:"workers"`                  // concurrent case workers for ProcessAll
	SearchQueries         int  `yaml:"search_queries"`           // web queries generated per escalated case
	SearchResultsPerQuery int  `yaml:"search_results_per_query"` // results requested per query
	SummaryMaxResults     int  `yaml:"summary_max_results"`      // results shown to the summarizer
	LiveRetrieval         bool `yaml:"live_retrieval"`           // query the tiers instead of using retrieved_list
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:           3,
		Workers:               1,
		SearchQueries:         5,
		SearchResultsPerQuery: 5,
		SummaryMaxResults:     8,
		LiveRetrieval:         true,
	}
}

// Validate checks that the configuration values are sensible
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MaxAttempts must be at least 1 (got %d)", c.MaxAttempts)
	}
	if c.Workers < 1 {
		return fmt.Errorf("Workers must be at least 1 (got %d)", c.Workers)
	}
	if c.SearchQueries < 1 {
		return fmt.Errorf("SearchQueries must be at least 1 (got %d)", c.SearchQueries)
	}
	if c.SearchResultsPerQuery < 1 {
		return fmt.Errorf("SearchResultsPerQuery must be at least 1 (got %d)", c.SearchResultsPerQuery)
	}
	if c.SummaryMaxResults < 1 {
		return fmt.Errorf("SummaryMaxResults must be at least 1 (got %d)", c.SummaryMaxResults)
	}
	return nil
}
