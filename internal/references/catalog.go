// Package references maps source documents to their bibliographic reference.
package references

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/okandolu/hae-gpt/internal/models"
)

// Entry is the bibliographic record of one document.
type Entry struct {
	Filename        string
	Reference       string
	PublicationYear string
}

// Catalog looks up entries by file name, ignoring case and extension.
type Catalog struct {
	entries map[string]Entry
}

func New(entries ...Entry) *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		c.entries[key(e.Filename)] = e
	}
	return c
}

func key(filename string) string {
	base := strings.ToLower(strings.TrimSpace(filepath.Base(filename)))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load reads a catalog workbook. The first row of the sheet is the header
// and must name a filename column and a reference column; a year column is
// optional. An empty sheet name selects the first sheet.
func Load(path, sheet string) (*Catalog, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening reference catalog: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return New(), nil
	}

	fileCol, refCol, yearCol := -1, -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "filename", "file", "dosya":
			fileCol = i
		case "reference", "apa_reference", "vancouver", "kaynak":
			refCol = i
		case "publication_year", "year", "yil", "yıl":
			yearCol = i
		}
	}
	if fileCol < 0 || refCol < 0 {
		return nil, fmt.Errorf("%w: catalog header needs filename and reference columns, got %v", models.ErrInvalidInput, rows[0])
	}

	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var entries []Entry
	for _, row := range rows[1:] {
		e := Entry{
			Filename:        cell(row, fileCol),
			Reference:       cell(row, refCol),
			PublicationYear: cell(row, yearCol),
		}
		if e.Filename == "" || e.Reference == "" {
			continue
		}
		entries = append(entries, e)
	}

	log.Info().Str("path", path).Int("entries", len(entries)).Msg("Loaded reference catalog")
	return New(entries...), nil
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

func (c *Catalog) Lookup(filename string) (Entry, bool) {
	e, ok := c.entries[key(filename)]
	return e, ok
}

// Attach stamps reference and year onto chunks whose file is catalogued and
// returns how many chunks matched.
func (c *Catalog) Attach(chunks []models.Chunk) int {
	matched := 0
	for i := range chunks {
		e, ok := c.Lookup(chunks[i].Filename)
		if !ok {
			continue
		}
		chunks[i].Reference = e.Reference
		chunks[i].PublicationYear = e.PublicationYear
		matched++
	}
	return matched
}
