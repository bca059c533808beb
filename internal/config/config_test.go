package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.Embedding.Dimension)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.5, cfg.Retrieval.Threshold, 1e-6)
	assert.Equal(t, 12000, cfg.Advisor.MaxChars)
	assert.Equal(t, 1000, cfg.Chunking.ChunkSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
embedding:
  provider: openai
  model: text-embedding-3-small
  dimension: 1536
  timeout: 5s
retrieval:
  top_k: 8
  threshold: 0.3
chunking:
  chunk_size: 800
  chunk_overlap: 200
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 800, cfg.Chunking.ChunkSize)
	assert.Equal(t, 200, cfg.Chunking.ChunkOverlap)
	// untouched keys keep their defaults
	assert.Equal(t, 8, cfg.Embedding.BatchSize)
	assert.True(t, cfg.Retrieval.Deduplicate)
}

func TestLoadConfig_EnvOverlay(t *testing.T) {
	t.Setenv("HAE_RETRIEVAL__TOP_K", "3")
	t.Setenv("HAE_INDEX__PATH", "/tmp/idx")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "/tmp/idx", cfg.Index.Path)
}

func TestLoadConfig_AdvisorKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Advisor.Key)
	// ollama embeddings need no key
	assert.Empty(t, cfg.Embedding.Key)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Retrieval.TopK = 7
	cfg.Embedding.Timeout = 90 * time.Second
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Retrieval.TopK)
	assert.Equal(t, 90*time.Second, loaded.Embedding.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad embedding provider", func(c *Config) { c.Embedding.Provider = "bert" }},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }},
		{"zero batch", func(c *Config) { c.Embedding.BatchSize = 0 }},
		{"bad advisor", func(c *Config) { c.Advisor.Provider = "claude" }},
		{"zero chunk size", func(c *Config) { c.Chunking.ChunkSize = 0 }},
		{"overlap too large", func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize }},
		{"zero top k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"threshold above one", func(c *Config) { c.Retrieval.Threshold = 1.5 }},
		{"dedup out of range", func(c *Config) { c.Retrieval.DedupThreshold = 2 }},
		{"no index path", func(c *Config) { c.Index.Path = "" }},
		{"bad driver", func(c *Config) {
			c.Mirror.Postgres.Enabled = true
			c.Mirror.Postgres.Driver = "mysql"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("disabled advisor ignores provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Advisor.Enabled = false
		cfg.Advisor.Provider = ""
		assert.NoError(t, cfg.Validate())
	})
}
