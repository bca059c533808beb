package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"github.com/okandolu/hae-gpt/internal/config"
	"github.com/okandolu/hae-gpt/internal/helper"
	"github.com/okandolu/hae-gpt/internal/models"
	"github.com/okandolu/hae-gpt/internal/vectorindex"
)

// chromem needs an embedding function even though every document and query
// arrives with its vector.
var errNoEmbedder = errors.New("chromem mirror stores precomputed vectors only")

func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoEmbedder
}

// Mirror keeps a copy of the index entries in a chromem-go collection that
// can be exported as an encrypted snapshot.
type Mirror struct {
	db            *chromem.DB
	collection    *chromem.Collection
	name          string
	compress      bool
	encryptionKey string
	filePath      string
}

// NewMirror opens the configured chromem database, in memory or persistent,
// and gets or creates the collection.
func NewMirror(cfg *config.ChromemConfig) (*Mirror, error) {
	if cfg.EncryptionKey != "" && len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("%w: chromem encryption key must be 32 bytes, got %d", models.ErrInvalidInput, len(cfg.EncryptionKey))
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}

	return &Mirror{
		db:            db,
		collection:    collection,
		name:          cfg.Collection,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
		filePath:      exportPath(cfg),
	}, nil
}

func exportPath(cfg *config.ChromemConfig) string {
	name := cfg.Collection + ".gob"
	if cfg.Compress {
		name += ".gz"
	}
	if cfg.EncryptionKey != "" {
		name += ".enc"
	}
	return filepath.Join(cfg.Path, "export", name)
}

// ExportPath is where Export writes the snapshot.
func (m *Mirror) ExportPath() string {
	return m.filePath
}

func (m *Mirror) Count() int {
	return m.collection.Count()
}

// Store adds index entries as documents. Entries with an all-zero vector
// are skipped and counted in the returned value.
func (m *Mirror) Store(ctx context.Context, entries []vectorindex.Entry) (skipped int, err error) {
	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		if isZero(e.Vector) {
			skipped++
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        documentID(e),
			Content:   e.Chunk.Content,
			Metadata:  toMetadata(e.Chunk),
			Embedding: e.Vector,
		})
	}
	if len(docs) == 0 {
		return skipped, nil
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return skipped, fmt.Errorf("failed to add documents: %w", err)
	}
	log.Info().Str("collection", m.name).Int("documents", len(docs)).Int("skipped", skipped).Msg("Mirrored entries into chromem")
	return skipped, nil
}

// Search runs a similarity query against the mirror; used to cross-check
// results of the primary index. A zero query matches nothing.
func (m *Mirror) Search(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
	n := min(k, m.collection.Count())
	if isZero(query) {
		n = 0
	}
	if n <= 0 {
		return []models.Hit{}, nil
	}

	results, err := m.collection.QueryEmbedding(ctx, unit(query), n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]models.Hit, len(results))
	for i, r := range results {
		c := fromMetadata(r.Metadata)
		c.ID = r.ID
		c.Content = r.Content
		hits[i] = models.Hit{Chunk: c, Score: r.Similarity}
	}
	return hits, nil
}

// DeleteBySource removes the documents whose source path or filename
// equals source.
func (m *Mirror) DeleteBySource(ctx context.Context, source string) error {
	for _, key := range []string{"source", "filename"} {
		if err := m.collection.Delete(ctx, map[string]string{key: source}, nil); err != nil {
			return fmt.Errorf("failed to delete source %s: %w", source, err)
		}
	}
	return nil
}

// Reset drops and recreates the collection.
func (m *Mirror) Reset() error {
	if err := m.db.DeleteCollection(m.name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	c, err := m.db.GetOrCreateCollection(m.name, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return nil
}

// Export writes the collection to ExportPath, encrypted when a key is set.
func (m *Mirror) Export() error {
	log.Debug().
		Str("collection", m.name).
		Str("file", m.filePath).
		Bool("compress", m.compress).
		Bool("encrypted", m.encryptionKey != "").
		Msg("Exporting chromem collection")

	if err := helper.EnsureParent(m.filePath); err != nil {
		return err
	}
	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads the collection back from ExportPath.
func (m *Mirror) Import() error {
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	c := m.db.GetCollection(m.name, noEmbedding)
	if c == nil {
		return fmt.Errorf("%w: collection %s not in export", models.ErrNotFound, m.name)
	}
	m.collection = c
	return nil
}

func documentID(e vectorindex.Entry) string {
	if e.Chunk.ID != "" {
		return e.Chunk.ID
	}
	return "pos-" + strconv.Itoa(e.Position)
}

func toMetadata(c models.Chunk) map[string]string {
	meta := map[string]string{
		"filename":       c.Filename,
		"source":         c.Source,
		"page":           strconv.Itoa(c.Page),
		"total_pages":    strconv.Itoa(c.TotalPages),
		"classification": string(c.Classification),
		"chunk_strategy": string(c.Strategy),
		"chunk_id":       strconv.Itoa(c.Index),
		"total_chunks":   strconv.Itoa(c.TotalChunks),
		"has_table":      strconv.FormatBool(c.HasTable),
		"created_at":     c.CreatedAt.Format(time.RFC3339),
	}
	if c.Section != "" {
		meta["section"] = c.Section
	}
	if c.Reference != "" {
		meta["reference"] = c.Reference
	}
	if c.PublicationYear != "" {
		meta["publication_year"] = c.PublicationYear
	}
	return meta
}

func fromMetadata(meta map[string]string) models.Chunk {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(meta[k])
		return n
	}
	hasTable, _ := strconv.ParseBool(meta["has_table"])
	created, _ := time.Parse(time.RFC3339, meta["created_at"])
	return models.Chunk{
		Filename:        meta["filename"],
		Source:          meta["source"],
		Page:            atoi("page"),
		TotalPages:      atoi("total_pages"),
		Section:         meta["section"],
		Classification:  models.Classification(meta["classification"]),
		Strategy:        models.Strategy(meta["chunk_strategy"]),
		Index:           atoi("chunk_id"),
		TotalChunks:     atoi("total_chunks"),
		HasTable:        hasTable,
		Reference:       meta["reference"],
		PublicationYear: meta["publication_year"],
		CreatedAt:       created,
	}
}

func unit(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
