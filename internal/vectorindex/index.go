package vectorindex

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/okandolu/hae-gpt/internal/models"
)

// Index is an append-only flat inner-product index. Vectors live in one
// contiguous buffer and chunks in a parallel slice; an entry's position is
// its only handle. Vectors are L2-normalized on the way in, so the inner
// product is the cosine similarity.
//
// Index is safe for concurrent use: writers take the lock exclusively and
// searches share it.
type Index struct {
	mu      sync.RWMutex
	dim     int
	vectors []float32
	chunks  []models.Chunk
	zero    []bool
}

// Entry is a read-only copy of one stored position.
type Entry struct {
	Position int
	Chunk    models.Chunk
	Vector   []float32
}

// New creates an empty index for vectors of the given dimension.
func New(dim int) *Index {
	return &Index{dim: dim}
}

func (ix *Index) Dimension() int {
	return ix.dim
}

func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Add appends chunks with their vectors at the next positions. The whole
// call is rejected before anything is written if the counts differ or a
// vector has the wrong length.
func (ix *Index) Add(chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks, %d vectors", models.ErrDimensionMismatch, len(chunks), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("%w: vector %d has length %d, index dimension is %d", models.ErrDimensionMismatch, i, len(v), ix.dim)
		}
	}

	buf := make([]float32, 0, len(vectors)*ix.dim)
	zero := make([]bool, len(vectors))
	for i, v := range vectors {
		n, isZero := normalized(v)
		buf = append(buf, n...)
		zero[i] = isZero
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors = append(ix.vectors, buf...)
	ix.chunks = append(ix.chunks, chunks...)
	ix.zero = append(ix.zero, zero...)

	log.Debug().Int("added", len(chunks)).Int("total", len(ix.chunks)).Msg("Added vectors to index")
	return nil
}

// Search returns at most k hits with score >= threshold, best first. Equal
// scores keep position order. Zero vectors never match.
func (ix *Index) Search(query []float32, k int, threshold float32) ([]models.Hit, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has length %d, index dimension is %d", models.ErrDimensionMismatch, len(query), ix.dim)
	}
	if k <= 0 {
		return []models.Hit{}, nil
	}
	q, isZero := normalized(query)
	if isZero {
		return []models.Hit{}, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	total := len(ix.chunks)
	if total == 0 {
		return []models.Hit{}, nil
	}

	type scored struct {
		pos   int
		score float32
	}
	all := make([]scored, 0, total)
	for pos := 0; pos < total; pos++ {
		if ix.zero[pos] {
			continue
		}
		all = append(all, scored{pos: pos, score: dot(q, ix.vectors[pos*ix.dim:(pos+1)*ix.dim])})
	}
	slices.SortFunc(all, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.pos, b.pos)
	})

	fetch := min(2*k, len(all))
	hits := make([]models.Hit, 0, min(k, fetch))
	for _, s := range all[:fetch] {
		if s.score < threshold {
			break
		}
		hits = append(hits, models.Hit{Chunk: ix.chunks[s.pos], Score: s.score})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// DeleteBySource removes every entry whose source path or filename equals
// source. The index is rebuilt from the retained entries, so this is a
// maintenance operation, not a fast path. It returns the number removed.
func (ix *Index) DeleteBySource(source string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var (
		vectors []float32
		chunks  []models.Chunk
		zero    []bool
	)
	for pos, c := range ix.chunks {
		if c.Source == source || c.Filename == source {
			continue
		}
		vectors = append(vectors, ix.vectors[pos*ix.dim:(pos+1)*ix.dim]...)
		chunks = append(chunks, c)
		zero = append(zero, ix.zero[pos])
	}

	removed := len(ix.chunks) - len(chunks)
	if removed > 0 {
		ix.vectors, ix.chunks, ix.zero = vectors, chunks, zero
		log.Info().Str("source", source).Int("removed", removed).Int("remaining", len(chunks)).Msg("Rebuilt index without source")
	}
	return removed
}

// Reset removes every entry.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors, ix.chunks, ix.zero = nil, nil, nil
}

// Entries returns a copy of every stored position in order.
func (ix *Index) Entries() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entries := make([]Entry, len(ix.chunks))
	for pos, c := range ix.chunks {
		entries[pos] = Entry{
			Position: pos,
			Chunk:    c,
			Vector:   slices.Clone(ix.vectors[pos*ix.dim : (pos+1)*ix.dim]),
		}
	}
	return entries
}

// Stats describes the indexed corpus.
type Stats struct {
	TotalDocuments   int      `json:"total_documents"`
	TotalVectors     int      `json:"total_vectors"`
	UniqueFiles      int      `json:"unique_files"`
	Files            []string `json:"files"`
	ChunksWithTables int      `json:"chunks_with_tables"`
	AvgChunkLength   float64  `json:"avg_chunk_length"`
	Dimension        int      `json:"dimension"`
}

func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s := Stats{
		TotalDocuments: len(ix.chunks),
		TotalVectors:   len(ix.vectors) / max(ix.dim, 1),
		Dimension:      ix.dim,
	}
	files := make(map[string]struct{})
	var runes int
	for _, c := range ix.chunks {
		files[c.Filename] = struct{}{}
		if c.HasTable {
			s.ChunksWithTables++
		}
		runes += utf8.RuneCountInString(c.Content)
	}
	for f := range files {
		s.Files = append(s.Files, f)
	}
	slices.Sort(s.Files)
	s.UniqueFiles = len(s.Files)
	if len(ix.chunks) > 0 {
		s.AvgChunkLength = float64(runes) / float64(len(ix.chunks))
	}
	return s
}

// normalized returns v scaled to unit length and whether v was all zeros.
func normalized(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out, true
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out, false
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
