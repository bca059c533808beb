package report

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/okandolu/hae-gpt/internal/chunker"
	"github.com/okandolu/hae-gpt/internal/llmservice"
	"github.com/okandolu/hae-gpt/internal/models"
	"github.com/okandolu/hae-gpt/internal/parser"
)

func sampleChunks() []models.Chunk {
	return []models.Chunk{
		{Filename: "a.pdf", TotalPages: 3, Content: "abcd", Strategy: models.StrategyAdvisory},
		{Filename: "a.pdf", TotalPages: 3, Content: "ef", Strategy: models.StrategyAdvisory},
		{Filename: "b.pdf", TotalPages: 1, Content: "table", Strategy: models.StrategySingleTable, HasTable: true},
		{Filename: "a.pdf", TotalPages: 3, Content: "abstract", Strategy: models.StrategySingleAbstract},
	}
}

func TestSummarize(t *testing.T) {
	failures := []parser.Failure{{Path: "c.pdf", Err: errors.New("not a PDF")}}
	s := Summarize(sampleChunks(), chunker.Stats{AdvisoryCalls: 2}, failures)

	assert.Equal(t, 4, s.TotalChunks)
	assert.Equal(t, 2, s.UniqueFiles)
	assert.InDelta(t, 19.0/4.0, s.AvgChunkLength, 1e-9)

	require.Len(t, s.Strategies, 3)
	assert.Equal(t, models.StrategyAdvisory, s.Strategies[0].Strategy)
	assert.InDelta(t, 50.0, s.Strategies[0].Percent, 1e-9)

	require.Len(t, s.Documents, 2)
	assert.Equal(t, Document{Filename: "a.pdf", Pages: 3, Chunks: 3, AvgLength: 14.0 / 3.0}, s.Documents[0])
	assert.Equal(t, 1, s.Documents[1].TableChunks)

	require.Len(t, s.Failures, 1)
	assert.Equal(t, "not a PDF", s.Failures[0].Error)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, chunker.Stats{}, nil)
	assert.Zero(t, s.TotalChunks)
	assert.Zero(t, s.AvgChunkLength)
	assert.Empty(t, s.Strategies)
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.xlsx")
	stats := chunker.Stats{AdvisoryCalls: 3, Advisor: &llmservice.UsageStats{TotalTokens: 1200, TotalCostUSD: 0.0004}}
	s := Summarize(sampleChunks(), stats, nil)
	s.FailedEmbeds = 1

	require.NoError(t, Write(path, s))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Strategies", "Documents", "Failures"}, f.GetSheetList())

	total, err := f.GetCellValue("Summary", "B2")
	require.NoError(t, err)
	assert.Equal(t, "4", total)

	rows, err := f.GetRows("Documents")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a.pdf", rows[1][0])

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, "Advisor tokens", summary[len(summary)-2][0])
}
