package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QAForge/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, Default().Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qaforge.yaml")
	yaml := `
pipeline:
  maxTokensPerChunk: 400
  workerConcurrency: 8
  retryBaseDelay: 250ms
quality:
  highThreshold: 0.9
dedup:
  persistAcrossRuns: true
output:
  splitTiers: true
  writeTimeout: 30s
llm:
  provider: Gemini
  model: gemini-2.0-flash
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv(configPathEnv, path)
	t.Setenv(llmAPIKeyEnv, "")
	t.Setenv(llmProviderEnv, "")
	t.Setenv(llmModelEnv, "")
	t.Setenv(geminiAPIKeyEnv, "g-key")
	t.Setenv(dbPathEnv, "/tmp/runs.db")
	t.Setenv(logLevelEnv, "warn")

	cfg := Load()

	assert.Equal(t, 400, cfg.Pipeline.MaxTokensPerChunk)
	assert.Equal(t, 100, cfg.Pipeline.ChunkOverlap)
	assert.Equal(t, 8, cfg.Pipeline.WorkerConcurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.RetryBaseDelay)
	assert.Equal(t, 0.9, cfg.Quality.HighThreshold)
	assert.Equal(t, 0.6, cfg.Quality.RejectThreshold)
	assert.True(t, cfg.Dedup.PersistAcrossRuns)
	assert.True(t, cfg.Output.SplitTiers)
	assert.Equal(t, 30*time.Second, cfg.Output.WriteTimeout)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, "g-key", cfg.LLM.APIKey)
	assert.Equal(t, "/tmp/runs.db", cfg.Storage.Path)
	assert.Equal(t, "warn", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadFallsBackOnBadFile(t *testing.T) {
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()
	assert.Equal(t, Default().Pipeline, cfg.Pipeline)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		kind   domain.ConfigErrorKind
	}{
		{"zero chunk size", func(c *Config) { c.Pipeline.MaxTokensPerChunk = 0 }, domain.ConfigInvalidChunking},
		{"overlap too big", func(c *Config) { c.Pipeline.ChunkOverlap = c.Pipeline.MaxTokensPerChunk }, domain.ConfigInvalidChunking},
		{"no workers", func(c *Config) { c.Pipeline.WorkerConcurrency = 0 }, domain.ConfigInvalidConcurrency},
		{"no timeout", func(c *Config) { c.Pipeline.ModelTimeoutSeconds = 0 }, domain.ConfigInvalidTimeout},
		{"no attempts", func(c *Config) { c.Pipeline.RetryAttempts = 0 }, domain.ConfigInvalidRetry},
		{"max delay below base", func(c *Config) { c.Pipeline.RetryMaxDelay = time.Millisecond }, domain.ConfigInvalidRetry},
		{"inverted thresholds", func(c *Config) { c.Quality.HighThreshold = 0.5 }, domain.ConfigInvalidThreshold},
		{"reject above one", func(c *Config) { c.Quality.RejectThreshold = 1.5 }, domain.ConfigInvalidThreshold},
		{"similarity zero", func(c *Config) { c.Dedup.SimilarityThreshold = 0 }, domain.ConfigInvalidThreshold},
		{"no write timeout", func(c *Config) { c.Output.WriteTimeout = 0 }, domain.ConfigInvalidTimeout},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "llama" }, domain.ConfigInvalidProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(&cfg)

			var cfgErr *domain.ConfigError
			require.True(t, errors.As(cfg.Validate(), &cfgErr))
			assert.Equal(t, tt.kind, cfgErr.Kind)
		})
	}
}
