// Package citation renders retrieval citations for readers.
package citation

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/okandolu/hae-gpt/internal/helper"
	"github.com/okandolu/hae-gpt/internal/models"
)

// Mode selects the citation style.
type Mode string

const (
	ModePatient  Mode = "patient"
	ModeAcademic Mode = "academic"
)

const (
	plainExcerptLen = 150
	ruleWidth       = 80
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

func displayName(filename string) string {
	return strings.ReplaceAll(filename, ".pdf", "")
}

// Markdown renders citations as a numbered markdown source list.
func Markdown(cites []models.Citation, mode Mode) string {
	if len(cites) == 0 {
		return "_No sources cited_"
	}

	lines := []string{"## 📚 Kaynaklar\n"}
	for i, c := range cites {
		n := i + 1
		var line string
		if mode == ModeAcademic {
			if c.Reference != "" {
				line = fmt.Sprintf("[%d] %s", n, c.Reference)
			} else {
				line = fmt.Sprintf("[%d] *%s* (n.d.). %s. Page %d.", n, displayName(c.Filename), c.Section, c.Page)
			}
			line += fmt.Sprintf(" [Relevance score: %.3f]", c.Similarity)
			lines = append(lines, line, fmt.Sprintf("\n   > Excerpt: \"%s\"", c.Excerpt))
			if c.HasTable {
				lines = append(lines, "   > *Note: Contains tabular data*")
			}
		} else {
			if c.Reference != "" {
				line = fmt.Sprintf("**[%d]** %s (Sayfa %d)", n, c.Reference, c.Page)
			} else {
				line = fmt.Sprintf("**[%d]** %s, Sayfa %d.", n, displayName(c.Filename), c.Page)
			}
			line += fmt.Sprintf(" [Benzerlik: %.3f]", c.Similarity)
			lines = append(lines, line, fmt.Sprintf("\n   > Alıntı: \"%s\"", c.Excerpt))
			if c.HasTable {
				lines = append(lines, "   > *Not: Tablo verisi içerir*")
			}
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// Plain renders citations for terminals.
func Plain(cites []models.Citation, mode Mode) string {
	if len(cites) == 0 {
		return "No sources cited."
	}

	header := "SOURCES / KAYNAKLAR"
	if mode == ModeAcademic {
		header = "REFERENCES"
	}
	rule := strings.Repeat("=", ruleWidth)
	lines := []string{rule, header, rule, ""}

	for i, c := range cites {
		n := i + 1
		switch {
		case mode == ModeAcademic && c.Reference != "":
			lines = append(lines,
				fmt.Sprintf("[%d] %s", n, c.Reference),
				fmt.Sprintf("    Relevance: %.3f", c.Similarity))
		case mode == ModeAcademic:
			lines = append(lines,
				fmt.Sprintf("[%d] %s (n.d.)", n, displayName(c.Filename)),
				fmt.Sprintf("    %s, Page %d", c.Section, c.Page),
				fmt.Sprintf("    Relevance: %.3f", c.Similarity))
		case c.Reference != "":
			lines = append(lines,
				fmt.Sprintf("[%d] %s", n, c.Reference),
				fmt.Sprintf("    Sayfa: %d", c.Page),
				fmt.Sprintf("    Benzerlik: %.3f", c.Similarity))
		default:
			lines = append(lines,
				fmt.Sprintf("[%d] %s (Sayfa %d)", n, c.Filename, c.Page),
				fmt.Sprintf("    Bölüm: %s", c.Section),
				fmt.Sprintf("    Benzerlik: %.3f", c.Similarity))
		}
		lines = append(lines, fmt.Sprintf("    Excerpt: %s...", helper.Prefix(c.Excerpt, plainExcerptLen)), "")
	}
	return strings.Join(lines, "\n")
}

// Source is one entry of the JSON citation payload.
type Source struct {
	Index           int     `json:"index"`
	Filename        string  `json:"filename"`
	Page            int     `json:"page"`
	Section         string  `json:"section"`
	SimilarityScore float64 `json:"similarity_score"`
	Excerpt         string  `json:"excerpt"`
	HasTable        bool    `json:"has_table"`
	Reference       *string `json:"reference"`
	PublicationYear *string `json:"publication_year"`
}

// Sources is the JSON citation payload.
type Sources struct {
	TotalSources int      `json:"total_sources"`
	Sources      []Source `json:"sources"`
}

// JSON builds the structured citation payload with 1-based indices and
// similarity rounded to four places.
func JSON(cites []models.Citation) Sources {
	out := Sources{TotalSources: len(cites), Sources: make([]Source, len(cites))}
	for i, c := range cites {
		s := Source{
			Index:           i + 1,
			Filename:        c.Filename,
			Page:            c.Page,
			Section:         c.Section,
			SimilarityScore: math.Round(float64(c.Similarity)*1e4) / 1e4,
			Excerpt:         c.Excerpt,
			HasTable:        c.HasTable,
		}
		if c.Reference != "" {
			ref := c.Reference
			s.Reference = &ref
		}
		if c.PublicationYear != "" {
			year := c.PublicationYear
			s.PublicationYear = &year
		}
		out.Sources[i] = s
	}
	return out
}

// HTML renders the markdown citation list to HTML.
func HTML(cites []models.Citation, mode Mode) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(cites, mode)), &buf); err != nil {
		return "", fmt.Errorf("rendering citations: %w", err)
	}
	return buf.String(), nil
}
