package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/okandolu/hae-gpt/internal/config"
	"github.com/okandolu/hae-gpt/internal/helper"
	"github.com/okandolu/hae-gpt/internal/models"
)

const (
	// OverlapPrefixLen is how many leading characters are compared for duplicates.
	OverlapPrefixLen = 200
	ExcerptLen       = 200

	DefaultDedupThreshold = 0.95

	noContexts = "No relevant contexts found."
)

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the similarity search the retriever runs against.
type Searcher interface {
	Search(query []float32, k int, threshold float32) ([]models.Hit, error)
}

// Options control one retrieval. A zero K or DedupThreshold falls back to
// the retriever defaults; Threshold is always taken as given, so callers
// that only override some fields should start from Defaults().
type Options struct {
	K              int
	Threshold      float32
	Deduplicate    bool
	DedupThreshold float64
}

// OptionsFromConfig returns the configured retrieval defaults.
func OptionsFromConfig(cfg *config.RetrievalConfig) Options {
	return Options{
		K:              cfg.TopK,
		Threshold:      cfg.Threshold,
		Deduplicate:    cfg.Deduplicate,
		DedupThreshold: cfg.DedupThreshold,
	}
}

type Retriever struct {
	embedder QueryEmbedder
	index    Searcher
	defaults Options
}

func New(embedder QueryEmbedder, index Searcher, defaults Options) *Retriever {
	if defaults.DedupThreshold <= 0 {
		defaults.DedupThreshold = DefaultDedupThreshold
	}
	return &Retriever{embedder: embedder, index: index, defaults: defaults}
}

// Defaults returns the options used by Retrieve when none are overridden.
func (r *Retriever) Defaults() Options {
	return r.defaults
}

// Retrieve embeds the query and returns at most opts.K hits above the
// threshold, best first. With deduplication on, twice as many hits are
// fetched and near-duplicates of better hits are dropped. An empty result
// is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]models.Hit, error) {
	if opts.K <= 0 {
		opts.K = r.defaults.K
	}
	if opts.DedupThreshold <= 0 {
		opts.DedupThreshold = r.defaults.DedupThreshold
	}

	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	fetch := opts.K
	if opts.Deduplicate {
		fetch = 2 * opts.K
	}
	hits, err := r.index.Search(vec, fetch, opts.Threshold)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	if opts.Deduplicate {
		hits = Deduplicate(hits, opts.DedupThreshold)
		if len(hits) > opts.K {
			hits = hits[:opts.K]
		}
	}

	log.Debug().Str("query", helper.Prefix(query, 100)).Int("hits", len(hits)).Msg("Retrieved contexts")
	for i, h := range hits {
		if i == 3 {
			break
		}
		log.Debug().Int("rank", i+1).Str("file", h.Chunk.Filename).Int("page", h.Chunk.Page).Float32("score", h.Score).Msg("Top hit")
	}
	return hits, nil
}

// Deduplicate walks hits in order and drops every hit whose leading words
// overlap an already kept hit by more than threshold.
func Deduplicate(hits []models.Hit, threshold float64) []models.Hit {
	if len(hits) <= 1 {
		return hits
	}

	kept := make([]models.Hit, 0, len(hits))
	for _, h := range hits {
		duplicate := false
		for _, k := range kept {
			if ContentOverlap(h.Chunk.Content, k.Chunk.Content) > threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, h)
		}
	}

	if removed := len(hits) - len(kept); removed > 0 {
		log.Debug().Int("removed", removed).Msg("Removed duplicate chunks")
	}
	return kept
}

// ContentOverlap is the Jaccard similarity of the lower-cased word sets of
// the first OverlapPrefixLen characters of a and b. It is 0 when either set
// is empty.
func ContentOverlap(a, b string) float64 {
	wa := prefixWords(a)
	wb := prefixWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func prefixWords(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(helper.Prefix(s, OverlapPrefixLen)))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// FormatContextsForLLM renders one numbered block per hit, in order.
func FormatContextsForLLM(hits []models.Hit) string {
	if len(hits) == 0 {
		return noContexts
	}

	blocks := make([]string, len(hits))
	for i, h := range hits {
		c := h.Chunk
		var b strings.Builder
		fmt.Fprintf(&b, "\n[Context %d]", i+1)
		if c.Reference != "" {
			fmt.Fprintf(&b, "\nSource: %s", c.Reference)
			if c.PublicationYear != "" {
				fmt.Fprintf(&b, " (%s)", c.PublicationYear)
			}
		} else {
			fmt.Fprintf(&b, "\nSource: %s (Page %d)", c.Filename, c.Page)
		}
		if c.Section != "" {
			fmt.Fprintf(&b, "\nSection: %s", c.Section)
		}
		fmt.Fprintf(&b, "\nSimilarity: %.3f", h.Score)
		if c.HasTable {
			b.WriteString("\n[Contains table data]")
		}
		fmt.Fprintf(&b, "\n\nContent:\n%s\n", c.Content)
		b.WriteString(strings.Repeat("-", 80))
		blocks[i] = b.String()
	}
	return strings.Join(blocks, "\n")
}

// ContextMetadata projects hits into citations.
func ContextMetadata(hits []models.Hit) []models.Citation {
	citations := make([]models.Citation, len(hits))
	for i, h := range hits {
		citations[i] = NewCitation(h)
	}
	return citations
}

// NewCitation builds the citation view of one hit.
func NewCitation(h models.Hit) models.Citation {
	c := h.Chunk
	filename := c.Filename
	if filename == "" {
		filename = "Unknown"
	}
	section := c.Section
	if section == "" {
		section = "Unknown Section"
	}
	return models.Citation{
		Filename:        filename,
		Page:            c.Page,
		Section:         section,
		Similarity:      h.Score,
		Excerpt:         helper.Prefix(c.Content, ExcerptLen) + "...",
		HasTable:        c.HasTable,
		Reference:       c.Reference,
		PublicationYear: c.PublicationYear,
	}
}
