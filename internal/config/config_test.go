package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Fusion, cfg.Fusion)
	assert.Equal(t, def.Cache, cfg.Cache)
	assert.Equal(t, def.Pipeline, cfg.Pipeline)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.InDelta(t, 0.8, cfg.Cache.SimilarityThreshold, 1e-9)
	assert.Equal(t, filepath.Join(".bugsift", "bugsift.db"), cfg.Paths.Database())
}

func TestLoad_FileOverridesOnlyGivenKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	content := `
paths:
  data_dir: /var/lib/bugsift
fusion:
  top_n: 5
  threshold_low: 0.6
cache:
  verify: false
pipeline:
  workers: 4
search:
  base_url: http://searx.internal:8080
  timeout: 5s
ai:
  retry:
    timeout: 20s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/bugsift", cfg.Paths.DataDir)
	assert.Equal(t, "feedback.jsonl", cfg.Paths.CaseFile, "unset keys keep defaults")
	assert.Equal(t, 5, cfg.Fusion.TopN)
	assert.Equal(t, 10, cfg.Fusion.K)
	assert.InDelta(t, 0.6, cfg.Fusion.ThresholdLow, 1e-9)
	assert.False(t, cfg.Cache.Verify)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, "http://searx.internal:8080", cfg.Search.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Search.Timeout)
	assert.Equal(t, 20*time.Second, cfg.AI.Retry.Timeout)
	assert.Equal(t, 3, cfg.AI.Retry.MaxRetries)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  workers: 4\n"), 0644))

	t.Setenv("BUGSIFT_WORKERS", "2")
	t.Setenv("BUGSIFT_CACHE_THRESHOLD", "0.9")
	t.Setenv("BUGSIFT_LIVE_RETRIEVAL", "false")
	t.Setenv("BUGSIFT_AI_TIMEOUT", "45s")
	t.Setenv("BUGSIFT_MODEL_SIMPLE", "claude-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.InDelta(t, 0.9, cfg.Cache.SimilarityThreshold, 1e-9)
	assert.False(t, cfg.Pipeline.LiveRetrieval)
	assert.Equal(t, 45*time.Second, cfg.AI.Retry.Timeout)
	assert.Equal(t, "claude-test", cfg.AI.SimpleModel)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "bad yaml", file: "fusion: [unclosed"},
		{name: "bad int env", env: map[string]string{"BUGSIFT_K": "ten"}},
		{name: "bad duration env", env: map[string]string{"BUGSIFT_AI_TIMEOUT": "soon"}},
		{name: "invalid value", file: "fusion:\n  beta_base: 0\n"},
		{name: "invalid pipeline", env: map[string]string{"BUGSIFT_MAX_ATTEMPTS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), DefaultFileName)
			if tt.file != "" {
				require.NoError(t, os.WriteFile(path, []byte(tt.file), 0644))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestPaths(t *testing.T) {
	p := Paths{DataDir: "state"}
	assert.Equal(t, filepath.Join("state", "progress.json"), p.Progress())
	assert.Equal(t, filepath.Join("state", "counters.json"), p.Counters())
	assert.Equal(t, filepath.Join("state", "generated_reports.jsonl"), p.Reports())
	assert.Equal(t, filepath.Join("state", "deferred_feedback.jsonl"), p.Deferred())
}

func TestString_OmitsSecrets(t *testing.T) {
	cfg := Default()
	cfg.AI.APIKey = "sk-secret"
	cfg.Embedding.APIKey = "sk-other"
	out := cfg.String()
	assert.NotContains(t, out, "sk-secret")
	assert.NotContains(t, out, "sk-other")
	assert.Contains(t, out, "data_dir")
}
