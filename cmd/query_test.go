package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okandolu/hae-gpt/internal/citation"
	"github.com/okandolu/hae-gpt/internal/models"
)

func sampleResponse() *models.QueryResponse {
	return &models.QueryResponse{
		Query:    "What triggers attacks?",
		Contexts: "\n[Context 1]\nSource: guide.pdf (Page 3)",
		Citations: []models.Citation{{
			Filename:   "guide.pdf",
			Page:       3,
			Section:    "Triggers",
			Similarity: 0.81234,
			Excerpt:    "Stress and trauma...",
		}},
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"text", "[Context 1]"},
		{"markdown", "guide"},
		{"plain", "SOURCES / KAYNAKLAR"},
		{"html", "<h2>"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, render(&buf, sampleResponse(), tt.format, citation.ModePatient))
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, sampleResponse(), "json", citation.ModeAcademic))

	var out struct {
		Query     string           `json:"query"`
		Citations citation.Sources `json:"citations"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "What triggers attacks?", out.Query)
	assert.Equal(t, 1, out.Citations.TotalSources)
	assert.InDelta(t, 0.8123, out.Citations.Sources[0].SimilarityScore, 1e-9)
}

func TestRender_UnknownFormat(t *testing.T) {
	err := render(&bytes.Buffer{}, sampleResponse(), "yaml", citation.ModePatient)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
