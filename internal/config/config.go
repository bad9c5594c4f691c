// Package config loads bugsift.yaml and applies BUGSIFT_* environment
// overrides on top of the per-component defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/bugsift/internal/ai"
	"github.com/steveyegge/bugsift/internal/embedding"
	"github.com/steveyegge/bugsift/internal/fusion"
	"github.com/steveyegge/bugsift/internal/pipeline"
	"github.com/steveyegge/bugsift/internal/semcache"
	"github.com/steveyegge/bugsift/internal/websearch"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "bugsift.yaml"

// Config is the complete bugsift configuration.
type Config struct {
	Paths     Paths            `yaml:"paths"`
	AI        ai.Config        `yaml:"ai"`
	Embedding embedding.Config `yaml:"embedding"`
	Fusion    fusion.Config    `yaml:"fusion"`
	Cache     semcache.Config  `yaml:"cache"`
	Pipeline  pipeline.Config  `yaml:"pipeline"`
	Search    websearch.Config `yaml:"search"`
}

// Paths locates the input file and the state directory.
type Paths struct {
	DataDir  string `yaml:"data_dir"`  // holds the database, state files and logs
	CaseFile string `yaml:"case_file"` // JSONL input
}

// Database returns the SQLite database path.
func (p Paths) Database() string { return filepath.Join(p.DataDir, "bugsift.db") }

// Progress returns the progress snapshot path.
func (p Paths) Progress() string { return filepath.Join(p.DataDir, "progress.json") }

// Counters returns the counter snapshot path.
func (p Paths) Counters() string { return filepath.Join(p.DataDir, "counters.json") }

// Reports returns the generated-report log path.
func (p Paths) Reports() string { return filepath.Join(p.DataDir, "generated_reports.jsonl") }

// Deferred returns the deferred-feedback log path.
func (p Paths) Deferred() string { return filepath.Join(p.DataDir, "deferred_feedback.jsonl") }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Paths: Paths{
			DataDir:  ".bugsift",
			CaseFile: "feedback.jsonl",
		},
		AI:        ai.DefaultConfig(),
		Embedding: embedding.DefaultConfig(),
		Fusion:    fusion.DefaultConfig(),
		Cache:     semcache.DefaultConfig(),
		Pipeline:  pipeline.DefaultConfig(),
		Search:    websearch.DefaultConfig(),
	}
}

// Load reads the config file at path (missing file means defaults), then
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// keys absent from the file keep their defaults
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every component configuration.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir is required")
	}
	if c.AI.Model == "" || c.AI.SimpleModel == "" {
		return fmt.Errorf("ai.model and ai.simple_model are required")
	}
	if err := c.AI.Retry.Validate(); err != nil {
		return fmt.Errorf("ai.retry: %w", err)
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := c.Fusion.Validate(); err != nil {
		return fmt.Errorf("fusion: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return nil
}

// String renders the effective configuration as YAML. Secrets are never
// serialized.
func (c *Config) String() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(b)
}
