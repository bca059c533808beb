package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/okandolu/hae-gpt/internal/config"
	"github.com/okandolu/hae-gpt/internal/models"
)

const (
	defaultBatchSize = 8
	defaultWorkers   = 4
	defaultTimeout   = 60 * time.Second
)

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// Service implements Embedder on top of a langchaingo embedder. Batches are
// sent concurrently; per-item failures become zero vectors.
type Service struct {
	backend   embeddings.Embedder
	dimension int
	batchSize int
	workers   int
	timeout   time.Duration
}

type Option func(*Service)

func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTimeout bounds every backend call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService wraps backend, expecting vectors of the given dimension.
func NewService(backend embeddings.Embedder, dimension int, opts ...Option) *Service {
	s := &Service{
		backend:   backend,
		dimension: dimension,
		batchSize: defaultBatchSize,
		workers:   defaultWorkers,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewEmbedder builds a Service for the configured provider.
func NewEmbedder(cfg *config.EmbeddingConfig) (*Service, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("initializing ollama: %w", err)
		}
		client = llm
	case "openai":
		llm, err := openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("initializing openai: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return NewService(embedder, cfg.Dimension,
		WithBatchSize(cfg.BatchSize),
		WithWorkers(cfg.Workers),
		WithTimeout(cfg.Timeout),
	), nil
}

// Dimension is the vector length this service produces.
func (s *Service) Dimension() int {
	return s.dimension
}

// EmbedOne embeds a single non-empty text.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.ErrEmptyText
	}

	return s.embedQuery(ctx, text)
}

// EmbedMany embeds texts in order. See EmbedBatch for failure handling.
func (s *Service) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := s.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(res.Failed) > 0 {
		log.Warn().Int("failed", len(res.Failed)).Int("total", len(texts)).Msg("Some texts were embedded as zero vectors")
	}
	return res.Vectors, nil
}

func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vec, err := s.backend.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrServiceUnavailable, err)
	}
	if len(vec) != s.dimension {
		return nil, fmt.Errorf("%w: embedding has %d values, want %d", models.ErrDimensionMismatch, len(vec), s.dimension)
	}
	return vec, nil
}
