package rag

import (
	"context"

	"github.com/okandolu/hae-gpt/internal/models"
)

// SearchFunc queries a mirror store for the k nearest chunks.
type SearchFunc func(ctx context.Context, query []float32, k int) ([]models.Hit, error)

// MirrorSearcher lets a mirror store stand in for the index during
// retrieval. Mirrors have no threshold, so it is applied here.
type MirrorSearcher struct {
	ctx    context.Context
	search SearchFunc
}

func NewMirrorSearcher(ctx context.Context, search SearchFunc) *MirrorSearcher {
	return &MirrorSearcher{ctx: ctx, search: search}
}

func (m *MirrorSearcher) Search(query []float32, k int, threshold float32) ([]models.Hit, error) {
	if k <= 0 {
		return []models.Hit{}, nil
	}
	hits, err := m.search(m.ctx, query, k)
	if err != nil {
		return nil, err
	}
	kept := make([]models.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= threshold {
			kept = append(kept, h)
		}
	}
	return kept, nil
}
