package chunker

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/okandolu/hae-gpt/internal/config"
	"github.com/okandolu/hae-gpt/internal/helper"
	"github.com/okandolu/hae-gpt/internal/llmservice"
	"github.com/okandolu/hae-gpt/internal/models"
)

const (
	DefaultStride           = 1000
	DefaultMaxAdvisoryChars = 12000
	DefaultWorkers          = 4
)

var (
	abstractRe   = regexp.MustCompile(models.AbstractRegex)
	referencesRe = regexp.MustCompile(models.ReferencesRegex)
	appendixRe   = regexp.MustCompile(models.AppendixRegex)
)

// Chunker turns page text into chunks. Abstracts and tables stay whole,
// references and appendices are dropped, and everything else is split at
// offsets proposed by the advisor or, without one, at a fixed stride.
type Chunker struct {
	advisor  llmservice.SplitAdvisor
	stride   int
	overlap  int
	maxChars int
	workers  int
	stats    collector
}

type Option func(*Chunker)

// WithAdvisor enables advisory splitting. A nil advisor keeps the fixed stride.
func WithAdvisor(a llmservice.SplitAdvisor) Option {
	return func(c *Chunker) { c.advisor = a }
}

func WithStride(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.stride = n
		}
	}
}

// WithOverlap extends every fixed-stride chunk by n characters into the next one.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// WithMaxAdvisoryChars caps the text length sent in one advisory request.
func WithMaxAdvisoryChars(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChars = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.workers = n
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		stride:   DefaultStride,
		maxChars: DefaultMaxAdvisoryChars,
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.stride {
		c.overlap = c.stride / 2
	}
	c.stats.init()
	return c
}

// NewFromConfig builds a chunker from the chunking and advisor settings.
func NewFromConfig(cfg *config.Config, advisor llmservice.SplitAdvisor) *Chunker {
	return New(
		WithAdvisor(advisor),
		WithStride(cfg.Chunking.ChunkSize),
		WithOverlap(cfg.Chunking.ChunkOverlap),
		WithMaxAdvisoryChars(cfg.Advisor.MaxChars),
		WithWorkers(cfg.Chunking.Workers),
	)
}

// Classify inspects the first characters of text for section markers.
// Tabular text that is neither an abstract nor a skipped section is
// classified as a table.
func Classify(text string) models.Classification {
	head := helper.Prefix(strings.ToLower(strings.TrimSpace(text)), models.ClassifyPrefixLen)

	switch {
	case abstractRe.MatchString(head):
		return models.ClassAbstract
	case referencesRe.MatchString(head), appendixRe.MatchString(head):
		return models.ClassSkipped
	case HasTableMarkers(text):
		return models.ClassTable
	default:
		return models.ClassContent
	}
}

// HasTableMarkers reports whether text carries explicit table delimiters.
func HasTableMarkers(text string) bool {
	for _, marker := range models.TableMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// ChunkPage splits one page. The result never contains empty chunks.
func (c *Chunker) ChunkPage(ctx context.Context, page models.Page) []models.Chunk {
	return c.chunkPage(ctx, page, nil)
}

func (c *Chunker) chunkPage(ctx context.Context, page models.Page, labels *sectionLabels) []models.Chunk {
	class := Classify(page.Text)
	c.stats.page(class)

	var chunks []models.Chunk
	switch class {
	case models.ClassSkipped:
		log.Debug().Str("file", page.Filename).Int("page", page.Page).Msg("References or appendix detected, skipping")
		return nil
	case models.ClassAbstract:
		if strings.TrimSpace(page.Text) == "" {
			return nil
		}
		chunks = []models.Chunk{newChunk(page, page.Text, class, models.StrategySingleAbstract)}
		chunks[0].Section = labels.at(0)
	case models.ClassTable:
		chunks = []models.Chunk{newChunk(page, page.Text, class, models.StrategySingleTable)}
		chunks[0].HasTable = true
		chunks[0].Section = labels.at(0)
	default:
		chunks = c.splitContent(ctx, page, labels)
	}

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].TotalChunks = len(chunks)
		c.stats.chunk(chunks[i].Strategy)
	}
	return chunks
}

func (c *Chunker) splitContent(ctx context.Context, page models.Page, labels *sectionLabels) []models.Chunk {
	runes := []rune(page.Text)
	if len(runes) == 0 {
		return nil
	}

	offsets := c.offsets(ctx, runes)

	var chunks []models.Chunk
	for i, off := range offsets {
		end := len(runes)
		if i+1 < len(offsets) {
			end = offsets[i+1].pos
		}
		if off.strategy == models.StrategyFixedStride && c.overlap > 0 {
			end = min(end+c.overlap, len(runes))
		}

		content := strings.TrimSpace(string(runes[off.pos:end]))
		if content == "" {
			continue
		}
		chunk := newChunk(page, content, models.ClassContent, off.strategy)
		chunk.Section = labels.at(off.pos)
		chunks = append(chunks, chunk)
	}
	return chunks
}

func newChunk(page models.Page, content string, class models.Classification, strategy models.Strategy) models.Chunk {
	id, err := helper.GenerateUUID()
	if err != nil {
		id = fmt.Sprintf("%s-p%d-%d", page.Filename, page.Page, len(content))
	}
	return models.Chunk{
		ID:             id,
		Content:        content,
		Filename:       page.Filename,
		Source:         page.Source,
		Page:           page.Page,
		TotalPages:     page.TotalPages,
		Classification: class,
		Strategy:       strategy,
		HasTable:       page.HasTable,
		CreatedAt:      page.CreatedAt,
	}
}

// Result is the output of Process.
type Result struct {
	Chunks []models.Chunk
	Stats  Stats
}

// Process chunks pages in order. Pages of the same source share section
// labels, so a heading on page 3 still names the chunks of page 4. Pages are
// chunked concurrently but the output keeps input order.
func (c *Chunker) Process(ctx context.Context, pages []models.Page) *Result {
	labels := make([]*sectionLabels, len(pages))
	trackers := make(map[string]*sectionTracker)
	for i, page := range pages {
		t, ok := trackers[page.Source]
		if !ok {
			t = &sectionTracker{}
			trackers[page.Source] = t
		}
		labels[i] = t.scan(page.Text)
	}

	perPage := make([][]models.Chunk, len(pages))
	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	for i, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			c.stats.blank()
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, page models.Page) {
			defer wg.Done()
			defer func() { <-sem }()
			perPage[i] = c.chunkPage(ctx, page, labels[i])
		}(i, page)
	}
	wg.Wait()

	var chunks []models.Chunk
	for _, pc := range perPage {
		chunks = append(chunks, pc...)
	}

	log.Info().Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Chunking finished")
	return &Result{Chunks: chunks, Stats: c.Stats()}
}

// Stats returns the counters accumulated since the chunker was created.
func (c *Chunker) Stats() Stats {
	s := c.stats.snapshot()
	if r, ok := c.advisor.(llmservice.UsageReporter); ok {
		usage := r.Usage()
		s.Advisor = &usage
	}
	return s
}
