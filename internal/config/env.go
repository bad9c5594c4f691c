package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// applyEnv overrides file settings from the environment.
//
// Environment variables:
//   - BUGSIFT_DATA_DIR, BUGSIFT_CASE_FILE: paths
//   - BUGSIFT_MODEL_DEFAULT, BUGSIFT_MODEL_SIMPLE: model names
//   - BUGSIFT_AI_TIMEOUT (duration), BUGSIFT_AI_MAX_RETRIES, BUGSIFT_AI_MAX_CONCURRENT
//   - BUGSIFT_EMBEDDING_PROVIDER, BUGSIFT_EMBEDDING_MODEL, BUGSIFT_EMBEDDING_URL
//   - BUGSIFT_K, BUGSIFT_TOP_N, BUGSIFT_BETA_BASE, BUGSIFT_THRESHOLD_LOW: fusion
//   - BUGSIFT_CACHE_THRESHOLD, BUGSIFT_CACHE_TOP_K, BUGSIFT_CACHE_VERIFY: semantic cache
//   - BUGSIFT_MAX_ATTEMPTS, BUGSIFT_WORKERS, BUGSIFT_LIVE_RETRIEVAL: pipeline
//   - BUGSIFT_SEARCH_URL, BUGSIFT_SEARCH_RPS: web search
//
// Returns an error if any environment variable has an invalid value.
func (c *Config) applyEnv() error {
	steps := []func() error{
		func() error { return parseEnvString("BUGSIFT_DATA_DIR", &c.Paths.DataDir) },
		func() error { return parseEnvString("BUGSIFT_CASE_FILE", &c.Paths.CaseFile) },

		func() error { return parseEnvString("BUGSIFT_MODEL_DEFAULT", &c.AI.Model) },
		func() error { return parseEnvString("BUGSIFT_MODEL_SIMPLE", &c.AI.SimpleModel) },
		func() error { return parseEnvDuration("BUGSIFT_AI_TIMEOUT", &c.AI.Retry.Timeout) },
		func() error { return parseEnvInt("BUGSIFT_AI_MAX_RETRIES", &c.AI.Retry.MaxRetries) },
		func() error { return parseEnvInt("BUGSIFT_AI_MAX_CONCURRENT", &c.AI.Retry.MaxConcurrentCalls) },

		func() error { return parseEnvString("BUGSIFT_EMBEDDING_PROVIDER", &c.Embedding.Provider) },
		func() error { return parseEnvString("BUGSIFT_EMBEDDING_MODEL", &c.Embedding.Model) },
		func() error { return parseEnvString("BUGSIFT_EMBEDDING_URL", &c.Embedding.BaseURL) },

		func() error { return parseEnvInt("BUGSIFT_K", &c.Fusion.K) },
		func() error { return parseEnvInt("BUGSIFT_TOP_N", &c.Fusion.TopN) },
		func() error { return parseEnvFloat("BUGSIFT_BETA_BASE", &c.Fusion.BetaBase) },
		func() error { return parseEnvFloat("BUGSIFT_THRESHOLD_LOW", &c.Fusion.ThresholdLow) },

		func() error { return parseEnvFloat("BUGSIFT_CACHE_THRESHOLD", &c.Cache.SimilarityThreshold) },
		func() error { return parseEnvInt("BUGSIFT_CACHE_TOP_K", &c.Cache.TopK) },
		func() error { return parseEnvBool("BUGSIFT_CACHE_VERIFY", &c.Cache.Verify) },

		func() error { return parseEnvInt("BUGSIFT_MAX_ATTEMPTS", &c.Pipeline.MaxAttempts) },
		func() error { return parseEnvInt("BUGSIFT_WORKERS", &c.Pipeline.Workers) },
		func() error { return parseEnvBool("BUGSIFT_LIVE_RETRIEVAL", &c.Pipeline.LiveRetrieval) },

		func() error { return parseEnvString("BUGSIFT_SEARCH_URL", &c.Search.BaseURL) },
		func() error { return parseEnvFloat("BUGSIFT_SEARCH_RPS", &c.Search.RequestsPerSecond) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a Go duration string ("45s", "2m") from an environment variable
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}
