package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okandolu/hae-gpt/internal/models"
	"github.com/okandolu/hae-gpt/internal/retriever"
)

func TestMirrorSearcher_AppliesThreshold(t *testing.T) {
	var gotK int
	s := NewMirrorSearcher(context.Background(), func(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
		gotK = k
		return []models.Hit{
			{Chunk: models.Chunk{ID: "a"}, Score: 0.9},
			{Chunk: models.Chunk{ID: "b"}, Score: 0.4},
		}, nil
	})

	hits, err := s.Search([]float32{1, 0, 0}, 4, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Chunk.ID)
	assert.Equal(t, 4, gotK)

	hits, err = s.Search([]float32{1, 0, 0}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMirrorSearcher_Error(t *testing.T) {
	s := NewMirrorSearcher(context.Background(), func(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
		return nil, errors.New("connection reset")
	})
	_, err := s.Search([]float32{1}, 1, 0)
	assert.Error(t, err)
}

func TestPipeline_QueryWithSearcher(t *testing.T) {
	mirror := NewMirrorSearcher(context.Background(), func(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
		return []models.Hit{{Chunk: models.Chunk{Filename: "mirror.pdf", Page: 2, Content: "from the mirror"}, Score: 0.8}}, nil
	})
	p := testPipeline(t, &keywordEmbedder{}, WithSearcher(mirror))

	resp, err := p.Query(context.Background(), "icatibant", retriever.Options{K: 2, Threshold: 0.3})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "mirror.pdf", resp.Citations[0].Filename)
	assert.Contains(t, resp.Contexts, "Source: mirror.pdf (Page 2)")
}
