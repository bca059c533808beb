package chromemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okandolu/hae-gpt/internal/config"
	"github.com/okandolu/hae-gpt/internal/models"
	"github.com/okandolu/hae-gpt/internal/vectorindex"
)

func testEntries() []vectorindex.Entry {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return []vectorindex.Entry{
		{Position: 0, Vector: []float32{1, 0, 0}, Chunk: models.Chunk{ID: "a", Content: "attack treatment", Filename: "a.pdf", Source: "/d/a.pdf", Page: 2, Section: "Treatment", HasTable: true, Strategy: models.StrategyAdvisory, CreatedAt: created}},
		{Position: 1, Vector: []float32{0, 1, 0}, Chunk: models.Chunk{ID: "b", Content: "diagnosis", Filename: "b.pdf", Source: "/d/b.pdf", Page: 1, Reference: "Ref B", PublicationYear: "2021", CreatedAt: created}},
		{Position: 2, Vector: []float32{0, 0, 0}, Chunk: models.Chunk{ID: "z", Content: "failed embedding", Filename: "b.pdf", Source: "/d/b.pdf"}},
	}
}

func memoryConfig(t *testing.T) *config.ChromemConfig {
	return &config.ChromemConfig{
		Path:          t.TempDir(),
		Collection:    "hae_chunks",
		InMemory:      true,
		EncryptionKey: "0123456789abcdef0123456789abcdef",
	}
}

func TestMirror_StoreAndSearch(t *testing.T) {
	ctx := context.Background()
	m, err := NewMirror(memoryConfig(t))
	require.NoError(t, err)

	skipped, err := m.Store(ctx, testEntries())
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 2, m.Count())

	hits, err := m.Search(ctx, []float32{0.9, 0.1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Chunk.ID)
	assert.Equal(t, "attack treatment", hits[0].Chunk.Content)
	assert.Equal(t, 2, hits[0].Chunk.Page)
	assert.Equal(t, "Treatment", hits[0].Chunk.Section)
	assert.True(t, hits[0].Chunk.HasTable)
	assert.Equal(t, models.StrategyAdvisory, hits[0].Chunk.Strategy)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Equal(t, "Ref B", hits[1].Chunk.Reference)
}

func TestMirror_SearchEmpty(t *testing.T) {
	m, err := NewMirror(memoryConfig(t))
	require.NoError(t, err)

	hits, err := m.Search(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMirror_DeleteBySourceAndReset(t *testing.T) {
	ctx := context.Background()
	m, err := NewMirror(memoryConfig(t))
	require.NoError(t, err)
	_, err = m.Store(ctx, testEntries())
	require.NoError(t, err)

	require.NoError(t, m.DeleteBySource(ctx, "/d/a.pdf"))
	assert.Equal(t, 1, m.Count())

	require.NoError(t, m.DeleteBySource(ctx, "/d/missing.pdf"))
	assert.Equal(t, 1, m.Count())

	require.NoError(t, m.Reset())
	assert.Zero(t, m.Count())
}

func TestMirror_DeleteByFilename(t *testing.T) {
	ctx := context.Background()
	m, err := NewMirror(memoryConfig(t))
	require.NoError(t, err)
	_, err = m.Store(ctx, testEntries()[:2])
	require.NoError(t, err)

	require.NoError(t, m.DeleteBySource(ctx, "a.pdf"))
	assert.Equal(t, 1, m.Count())

	hits, err := m.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].Chunk.ID)
}

func TestMirror_SearchZeroQuery(t *testing.T) {
	ctx := context.Background()
	m, err := NewMirror(memoryConfig(t))
	require.NoError(t, err)
	_, err = m.Store(ctx, testEntries())
	require.NoError(t, err)

	hits, err := m.Search(ctx, []float32{0, 0, 0}, 3)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestMirror_ResetEmpties(t *testing.T) {
	m, err := NewMirror(memoryConfig(t))
	require.NoError(t, err)
	require.NoError(t, m.Reset())
	assert.Zero(t, m.Count())
}

func TestMirror_ExportImport(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	m, err := NewMirror(cfg)
	require.NoError(t, err)
	_, err = m.Store(ctx, testEntries())
	require.NoError(t, err)
	require.NoError(t, m.Export())
	assert.FileExists(t, m.ExportPath())

	restored, err := NewMirror(cfg)
	require.NoError(t, err)
	require.NoError(t, restored.Import())
	assert.Equal(t, 2, restored.Count())
}

func TestNewMirror_BadKey(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.EncryptionKey = "short"

	_, err := NewMirror(cfg)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestMetadataRoundTrip(t *testing.T) {
	c := testEntries()[1].Chunk
	got := fromMetadata(toMetadata(c))
	got.ID, got.Content = c.ID, c.Content
	assert.Equal(t, c, got)
}
