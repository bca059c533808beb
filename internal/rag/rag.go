package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/okandolu/hae-gpt/internal/chunker"
	"github.com/okandolu/hae-gpt/internal/config"
	"github.com/okandolu/hae-gpt/internal/embedding"
	"github.com/okandolu/hae-gpt/internal/helper"
	"github.com/okandolu/hae-gpt/internal/llmservice"
	"github.com/okandolu/hae-gpt/internal/models"
	"github.com/okandolu/hae-gpt/internal/parser"
	"github.com/okandolu/hae-gpt/internal/progress"
	"github.com/okandolu/hae-gpt/internal/references"
	"github.com/okandolu/hae-gpt/internal/report"
	"github.com/okandolu/hae-gpt/internal/retriever"
	"github.com/okandolu/hae-gpt/internal/vectorindex"
)

// embedGroupSize is how many chunk texts go to the embedder between
// progress updates.
const embedGroupSize = 64

// Embedder is what the pipeline needs from the embedding service.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) (*embedding.BatchResult, error)
	Dimension() int
}

// Pipeline composes extraction, chunking, embedding, indexing and retrieval.
type Pipeline struct {
	cfg       *config.Config
	embedder  Embedder
	chunker   *chunker.Chunker
	index     *vectorindex.Index
	retriever *retriever.Retriever
	catalog   *references.Catalog
	reporter  progress.Reporter
	searcher  retriever.Searcher
}

type Option func(*Pipeline)

func WithCatalog(c *references.Catalog) Option {
	return func(p *Pipeline) { p.catalog = c }
}

func WithReporter(r progress.Reporter) Option {
	return func(p *Pipeline) { p.reporter = r }
}

// WithSearcher makes Query search s instead of the in-memory index.
func WithSearcher(s retriever.Searcher) Option {
	return func(p *Pipeline) { p.searcher = s }
}

func New(cfg *config.Config, embedder Embedder, ch *chunker.Chunker, index *vectorindex.Index, opts ...Option) (*Pipeline, error) {
	if index.Dimension() != embedder.Dimension() {
		return nil, fmt.Errorf("%w: index dimension %d, embedder dimension %d", models.ErrDimensionMismatch, index.Dimension(), embedder.Dimension())
	}
	p := &Pipeline{
		cfg:      cfg,
		embedder: embedder,
		chunker:  ch,
		index:    index,
		reporter: progress.Nop{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.searcher == nil {
		p.searcher = index
	}
	p.retriever = retriever.New(embedder, p.searcher, retriever.OptionsFromConfig(&cfg.Retrieval))
	return p, nil
}

// NewFromConfig builds the embedder, the optional split advisor, the
// reference catalog and the index. An existing index at the configured
// path is loaded; otherwise a new one is created.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	emb, err := embedding.NewEmbedder(&cfg.Embedding)
	if err != nil {
		return nil, err
	}

	var advisor llmservice.SplitAdvisor
	if cfg.Advisor.Enabled {
		if cfg.Advisor.Key == "" {
			log.Warn().Msg("Split advisor enabled but no API key set, using fixed stride")
		} else if advisor, err = llmservice.NewAdvisor(&cfg.Advisor); err != nil {
			return nil, err
		}
	}

	index, err := LoadIndex(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.References.Path != "" {
		catalog, err := references.Load(cfg.References.Path, cfg.References.Sheet)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCatalog(catalog))
	}

	return New(cfg, emb, chunker.NewFromConfig(cfg, advisor), index, opts...)
}

// LoadIndex loads the configured index or returns an empty one when no
// artifacts exist yet.
func LoadIndex(cfg *config.Config) (*vectorindex.Index, error) {
	index, err := vectorindex.Load(cfg.Index.Path)
	if errors.Is(err, models.ErrNotFound) {
		log.Info().Str("path", cfg.Index.Path).Msg("No index found, starting empty")
		return vectorindex.New(cfg.Embedding.Dimension), nil
	}
	return index, err
}

func (p *Pipeline) Index() *vectorindex.Index {
	return p.index
}

func (p *Pipeline) Retriever() *retriever.Retriever {
	return p.retriever
}

// Process extracts and chunks documents. Documents that fail extraction are
// reported and skipped.
func (p *Pipeline) Process(ctx context.Context, paths []string) (*chunker.Result, []parser.Failure, error) {
	files, err := parser.CollectFiles(paths)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Int("files", len(files)).Msg("Processing documents")

	pages, failures := parser.ParseDocuments(files)
	res := p.chunker.Process(ctx, pages)

	if p.catalog != nil {
		matched := p.catalog.Attach(res.Chunks)
		log.Debug().Int("matched", matched).Int("chunks", len(res.Chunks)).Msg("Attached references")
	}
	return res, failures, nil
}

// IngestResult describes one ingestion run.
type IngestResult struct {
	Chunks  []models.Chunk
	Summary report.Summary
}

// Ingest processes documents, embeds the chunks and appends them to the
// index. Individual embedding failures are stored as zero vectors, which
// never match a query. The index is not saved.
func (p *Pipeline) Ingest(ctx context.Context, paths []string) (*IngestResult, error) {
	res, failures, err := p.Process(ctx, paths)
	if err != nil {
		return nil, err
	}

	vectors, failed, err := p.embedChunks(ctx, res.Chunks)
	if err != nil {
		return nil, err
	}
	if err := p.index.Add(res.Chunks, vectors); err != nil {
		return nil, err
	}

	summary := report.Summarize(res.Chunks, res.Stats, failures)
	summary.FailedEmbeds = failed
	return &IngestResult{Chunks: res.Chunks, Summary: summary}, nil
}

func (p *Pipeline) embedChunks(ctx context.Context, chunks []models.Chunk) ([][]float32, int, error) {
	vectors := make([][]float32, 0, len(chunks))
	failed := 0

	p.reporter.Start(len(chunks), "Embedding")
	defer p.reporter.Finish()

	for start := 0; start < len(chunks); start += embedGroupSize {
		end := min(start+embedGroupSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		res, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, 0, fmt.Errorf("embedding chunks %d-%d: %w", start, end, err)
		}
		for _, i := range res.Failed {
			c := chunks[start+i]
			log.Warn().Str("file", c.Filename).Int("page", c.Page).Int("chunk", c.Index).Msg("Embedding failed, storing zero vector")
		}
		failed += len(res.Failed)
		vectors = append(vectors, res.Vectors...)
		p.reporter.Update(end, fmt.Sprintf("Embedded %d/%d chunks", end, len(chunks)))
	}
	return vectors, failed, nil
}

// Query retrieves contexts for a question and derives the generator payload
// and citations from them.
func (p *Pipeline) Query(ctx context.Context, question string, opts retriever.Options) (*models.QueryResponse, error) {
	hits, err := p.retriever.Retrieve(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	return &models.QueryResponse{
		Query:     question,
		Hits:      hits,
		Contexts:  retriever.FormatContextsForLLM(hits),
		Citations: retriever.ContextMetadata(hits),
	}, nil
}

// Delete removes a source from the index by rebuilding it.
func (p *Pipeline) Delete(source string) int {
	return p.index.DeleteBySource(source)
}

// Save persists the index at the configured path.
func (p *Pipeline) Save() error {
	return p.index.Save(p.cfg.Index.Path)
}

// WriteChunks writes chunk export records as a JSON array.
func WriteChunks(path string, chunks []models.Chunk) error {
	if err := helper.EnsureParent(path); err != nil {
		return err
	}
	records := make([]models.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = models.NewChunkRecord(c)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		f.Close()
		return fmt.Errorf("writing chunks: %w", err)
	}
	return f.Close()
}
