package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const envPrefix = "HAE_"

type Config struct {
	Embedding  EmbeddingConfig  `yaml:"embedding" koanf:"embedding"`
	Advisor    AdvisorConfig    `yaml:"advisor" koanf:"advisor"`
	Chunking   ChunkingConfig   `yaml:"chunking" koanf:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" koanf:"retrieval"`
	Index      IndexConfig      `yaml:"index" koanf:"index"`
	Mirror     MirrorConfig     `yaml:"mirror" koanf:"mirror"`
	References ReferencesConfig `yaml:"references" koanf:"references"`
	Log        LogConfig        `yaml:"log" koanf:"log"`
}

// LLMConfig describes how to reach a model endpoint.
type LLMConfig struct {
	Provider string `yaml:"provider" koanf:"provider"`
	BaseURL  string `yaml:"base_url" koanf:"base_url"`
	Model    string `yaml:"model" koanf:"model"`
	Key      string `yaml:"key" koanf:"key"`
}

type EmbeddingConfig struct {
	LLMConfig `yaml:",inline" koanf:",squash"`
	Dimension int           `yaml:"dimension" koanf:"dimension"`
	BatchSize int           `yaml:"batch_size" koanf:"batch_size"`
	Workers   int           `yaml:"workers" koanf:"workers"`
	Timeout   time.Duration `yaml:"timeout" koanf:"timeout"`
}

type AdvisorConfig struct {
	LLMConfig   `yaml:",inline" koanf:",squash"`
	Enabled     bool          `yaml:"enabled" koanf:"enabled"`
	MaxChars    int           `yaml:"max_chars" koanf:"max_chars"`
	Temperature float64       `yaml:"temperature" koanf:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" koanf:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" koanf:"timeout"`
}

type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" koanf:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" koanf:"chunk_overlap"`
	Workers      int `yaml:"workers" koanf:"workers"`
}

type RetrievalConfig struct {
	TopK           int     `yaml:"top_k" koanf:"top_k"`
	Threshold      float32 `yaml:"threshold" koanf:"threshold"`
	Deduplicate    bool    `yaml:"deduplicate" koanf:"deduplicate"`
	DedupThreshold float64 `yaml:"dedup_threshold" koanf:"dedup_threshold"`
}

type IndexConfig struct {
	Path       string `yaml:"path" koanf:"path"`
	ChunksPath string `yaml:"chunks_path" koanf:"chunks_path"`
}

type MirrorConfig struct {
	Chromem  ChromemConfig  `yaml:"chromem" koanf:"chromem"`
	Postgres DatabaseConfig `yaml:"postgres" koanf:"postgres"`
}

type ChromemConfig struct {
	Enabled       bool   `yaml:"enabled" koanf:"enabled"`
	Path          string `yaml:"path" koanf:"path"`
	Collection    string `yaml:"collection" koanf:"collection"`
	InMemory      bool   `yaml:"in_memory" koanf:"in_memory"`
	Compress      bool   `yaml:"compress" koanf:"compress"`
	EncryptionKey string `yaml:"encryption_key" koanf:"encryption_key"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled" koanf:"enabled"`
	Driver   string `yaml:"driver" koanf:"driver"`
	DSN      string `yaml:"dsn" koanf:"dsn"`
	Password string `yaml:"password" koanf:"password"`
	Table    string `yaml:"table" koanf:"table"`
	Debug    bool   `yaml:"debug" koanf:"debug"`
}

type ReferencesConfig struct {
	Path  string `yaml:"path" koanf:"path"`
	Sheet string `yaml:"sheet" koanf:"sheet"`
}

type LogConfig struct {
	Level string `yaml:"level" koanf:"level"`
}

// DefaultConfig returns the settings used when no config file is present.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			LLMConfig: LLMConfig{
				Provider: "ollama",
				BaseURL:  "http://localhost:11434",
				Model:    "bge-m3",
			},
			Dimension: 1024,
			BatchSize: 8,
			Workers:   4,
			Timeout:   60 * time.Second,
		},
		Advisor: AdvisorConfig{
			LLMConfig: LLMConfig{
				Provider: "langchain",
				BaseURL:  "https://api.openai.com/v1",
				Model:    "gpt-4o-mini",
			},
			Enabled:     true,
			MaxChars:    12000,
			Temperature: 0.3,
			MaxTokens:   500,
			Timeout:     60 * time.Second,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    1000,
			ChunkOverlap: 0,
			Workers:      4,
		},
		Retrieval: RetrievalConfig{
			TopK:           5,
			Threshold:      0.5,
			Deduplicate:    true,
			DedupThreshold: 0.95,
		},
		Index: IndexConfig{
			Path:       "data/vectorstore/faiss_index",
			ChunksPath: "data/processed/chunks.json",
		},
		Mirror: MirrorConfig{
			Chromem: ChromemConfig{
				Path:       "data/chromemdb",
				Collection: "hae_chunks",
			},
			Postgres: DatabaseConfig{
				Driver: "pgdriver",
				Table:  "hae_chunks",
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// HAE_* environment overrides. A double underscore separates nesting levels:
// HAE_RETRIEVAL__TOP_K -> retrieval.top_k.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.applyKeyFallbacks()
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// applyKeyFallbacks fills API keys from the conventional environment variable.
func (c *Config) applyKeyFallbacks() {
	fallback := os.Getenv("OPENAI_API_KEY")
	if c.Advisor.Key == "" {
		c.Advisor.Key = fallback
	}
	if c.Embedding.Key == "" && c.Embedding.Provider == "openai" {
		c.Embedding.Key = fallback
	}
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var (
	embeddingProviders = map[string]bool{"ollama": true, "openai": true}
	advisorProviders   = map[string]bool{"langchain": true, "openai": true}
	databaseDrivers    = map[string]bool{"pgdriver": true, "pq": true}
)

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if !embeddingProviders[c.Embedding.Provider] {
		return fmt.Errorf("invalid embedding provider %q: must be one of ollama, openai", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding batch_size must be positive")
	}
	if c.Advisor.Enabled && !advisorProviders[c.Advisor.Provider] {
		return fmt.Errorf("invalid advisor provider %q: must be one of langchain, openai", c.Advisor.Provider)
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size)")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.Retrieval.Threshold < -1 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("threshold must be in [-1, 1]")
	}
	if c.Retrieval.DedupThreshold < 0 || c.Retrieval.DedupThreshold > 1 {
		return fmt.Errorf("dedup_threshold must be in [0, 1]")
	}
	if c.Index.Path == "" {
		return fmt.Errorf("index path is required")
	}
	if c.Mirror.Postgres.Enabled && !databaseDrivers[c.Mirror.Postgres.Driver] {
		return fmt.Errorf("invalid postgres driver %q: must be one of pgdriver, pq", c.Mirror.Postgres.Driver)
	}
	return nil
}
