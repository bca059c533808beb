// Package report summarises an ingestion run and writes it as a workbook.
package report

import (
	"cmp"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/okandolu/hae-gpt/internal/chunker"
	"github.com/okandolu/hae-gpt/internal/helper"
	"github.com/okandolu/hae-gpt/internal/models"
	"github.com/okandolu/hae-gpt/internal/parser"
)

type StrategyCount struct {
	Strategy models.Strategy `json:"strategy"`
	Count    int             `json:"count"`
	Percent  float64         `json:"percent"`
}

type Document struct {
	Filename    string  `json:"filename"`
	Pages       int     `json:"pages"`
	Chunks      int     `json:"chunks"`
	TableChunks int     `json:"table_chunks"`
	AvgLength   float64 `json:"avg_length"`
}

type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Summary is the processing summary of one ingestion.
type Summary struct {
	TotalChunks    int             `json:"total_chunks"`
	UniqueFiles    int             `json:"unique_files"`
	AvgChunkLength float64         `json:"avg_chunk_length"`
	Strategies     []StrategyCount `json:"strategies"`
	Documents      []Document      `json:"documents"`
	Failures       []Failure       `json:"failures,omitempty"`
	Chunking       chunker.Stats   `json:"chunking"`
	FailedEmbeds   int             `json:"failed_embeddings"`
}

// Summarize builds a summary from the produced chunks and run statistics.
func Summarize(chunks []models.Chunk, stats chunker.Stats, failures []parser.Failure) Summary {
	s := Summary{TotalChunks: len(chunks), Chunking: stats}

	byStrategy := make(map[models.Strategy]int)
	docs := make(map[string]*Document)
	var order []string
	totalRunes := 0
	for _, c := range chunks {
		n := utf8.RuneCountInString(c.Content)
		totalRunes += n
		byStrategy[c.Strategy]++

		d, ok := docs[c.Filename]
		if !ok {
			d = &Document{Filename: c.Filename}
			docs[c.Filename] = d
			order = append(order, c.Filename)
		}
		d.Chunks++
		d.Pages = max(d.Pages, c.TotalPages)
		if c.HasTable {
			d.TableChunks++
		}
		d.AvgLength += float64(n)
	}

	s.UniqueFiles = len(order)
	if len(chunks) > 0 {
		s.AvgChunkLength = float64(totalRunes) / float64(len(chunks))
	}
	for strategy, count := range byStrategy {
		s.Strategies = append(s.Strategies, StrategyCount{
			Strategy: strategy,
			Count:    count,
			Percent:  100 * float64(count) / float64(len(chunks)),
		})
	}
	slices.SortFunc(s.Strategies, func(a, b StrategyCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Strategy, b.Strategy)
	})
	for _, name := range order {
		d := docs[name]
		d.AvgLength /= float64(d.Chunks)
		s.Documents = append(s.Documents, *d)
	}
	for _, f := range failures {
		s.Failures = append(s.Failures, Failure{Path: f.Path, Error: f.Err.Error()})
	}
	return s
}

// Log writes the summary to the global logger.
func (s Summary) Log() {
	log.Info().
		Int("chunks", s.TotalChunks).
		Int("files", s.UniqueFiles).
		Float64("avg_chunk_length", s.AvgChunkLength).
		Int("failed_documents", len(s.Failures)).
		Int("failed_embeddings", s.FailedEmbeds).
		Msg("Processing summary")
	for _, sc := range s.Strategies {
		log.Info().Str("strategy", string(sc.Strategy)).Int("count", sc.Count).Msgf("%.1f%%", sc.Percent)
	}
	if u := s.Chunking.Advisor; u != nil {
		log.Info().
			Int("calls", u.Calls).
			Int("tokens", u.TotalTokens).
			Float64("cost_usd", u.TotalCostUSD).
			Int("fallbacks", s.Chunking.AdvisoryFailures).
			Msg("Split advisor usage")
	}
}

// Write saves the summary as an xlsx workbook with one sheet per view.
func Write(path string, s Summary) error {
	if err := helper.EnsureParent(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	summary := [][]any{
		{"Metric", "Value"},
		{"Total chunks", s.TotalChunks},
		{"Unique files", s.UniqueFiles},
		{"Average chunk length", s.AvgChunkLength},
		{"Blank pages", s.Chunking.BlankPages},
		{"Skipped pages", s.Chunking.SkippedPages},
		{"Advisory calls", s.Chunking.AdvisoryCalls},
		{"Advisory fallbacks", s.Chunking.AdvisoryFailures},
		{"Failed embeddings", s.FailedEmbeds},
		{"Failed documents", len(s.Failures)},
	}
	if u := s.Chunking.Advisor; u != nil {
		summary = append(summary,
			[]any{"Advisor tokens", u.TotalTokens},
			[]any{"Advisor cost (USD)", u.TotalCostUSD},
		)
	}

	strategies := [][]any{{"Strategy", "Chunks", "Percent"}}
	for _, sc := range s.Strategies {
		strategies = append(strategies, []any{string(sc.Strategy), sc.Count, sc.Percent})
	}

	documents := [][]any{{"Filename", "Pages", "Chunks", "Table chunks", "Average length"}}
	for _, d := range s.Documents {
		documents = append(documents, []any{d.Filename, d.Pages, d.Chunks, d.TableChunks, d.AvgLength})
	}

	failures := [][]any{{"Path", "Error"}}
	for _, fl := range s.Failures {
		failures = append(failures, []any{fl.Path, fl.Error})
	}

	sheets := []struct {
		name string
		rows [][]any
	}{
		{"Summary", summary},
		{"Strategies", strategies},
		{"Documents", documents},
		{"Failures", failures},
	}
	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return err
		}
		if err := writeRows(f, sh.name, sh.rows, header); err != nil {
			return fmt.Errorf("writing sheet %s: %w", sh.name, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	log.Info().Str("path", path).Msg("Wrote processing report")
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if len(rows) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, headerStyle)
}
