package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"

	"github.com/okandolu/hae-gpt/internal/models"
)

var slideRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// Failure records a document that could not be extracted.
type Failure struct {
	Path string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

// Supported reports whether the file extension has an extractor.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx", ".pptx", ".xlsx", ".md", ".markdown", ".txt":
		return true
	}
	return false
}

// CollectFiles expands directories into the supported files they contain.
// Explicit file arguments are kept even when their extension is unknown so
// the caller sees them fail.
func CollectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", models.ErrNotFound, p)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && Supported(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// ParseDocuments extracts every document. A document that fails is logged,
// reported in the failures and skipped; the rest are still returned.
func ParseDocuments(paths []string) ([]models.Page, []Failure) {
	var (
		pages    []models.Page
		failures []Failure
	)
	for _, path := range paths {
		docPages, err := ParseFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Failed to extract document, skipping")
			failures = append(failures, Failure{Path: path, Err: err})
			continue
		}
		log.Debug().Str("file", path).Int("pages", len(docPages)).Msg("Extracted document")
		pages = append(pages, docPages...)
	}
	return pages, failures
}

// ParseFile extracts the pages of one document. Formats without pages
// produce one page per slide or sheet, or a single page.
func ParseFile(path string) ([]models.Page, error) {
	var (
		texts []pageText
		err   error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		texts, err = parsePDF(path)
	case ".docx":
		texts, err = parseDOCX(path)
	case ".pptx":
		texts, err = parsePPTX(path)
	case ".xlsx":
		texts, err = parseXLSX(path)
	case ".md", ".markdown":
		texts, err = parseMarkdown(path)
	case ".txt":
		texts, err = parseText(path)
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return toPages(path, texts), nil
}

type pageText struct {
	body   string
	tables []string
}

func (p pageText) text() string {
	if len(p.tables) == 0 {
		return p.body
	}
	var b strings.Builder
	b.WriteString(p.body)
	for _, t := range p.tables {
		b.WriteString("\n\n")
		b.WriteString(models.TableDataMarker)
		b.WriteString("\n")
		b.WriteString(t)
	}
	return b.String()
}

func toPages(path string, texts []pageText) []models.Page {
	source, err := filepath.Abs(path)
	if err != nil {
		source = path
	}
	now := time.Now().UTC()

	pages := make([]models.Page, len(texts))
	for i, t := range texts {
		pages[i] = models.Page{
			Text:       t.text(),
			Page:       i + 1,
			TotalPages: len(texts),
			Filename:   filepath.Base(path),
			Source:     source,
			CreatedAt:  now,
			HasTable:   len(t.tables) > 0,
		}
	}
	return pages
}

// tableRows renders rows as table data lines, cells joined by the cell separator.
func tableRows(rows [][]string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		lines = append(lines, strings.Join(row, models.TableCellSep))
	}
	return strings.Join(lines, "\n")
}

func parsePDF(filePath string) ([]pageText, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	numPages := reader.NumPage()
	texts := make([]pageText, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			texts = append(texts, pageText{})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Str("file", filePath).Int("page", i).Msg("Failed to extract page text")
			texts = append(texts, pageText{})
			continue
		}
		texts = append(texts, pageText{body: text})
	}
	return texts, nil
}

func parseDOCX(filePath string) ([]pageText, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening docx: %w", err)
	}
	defer r.Close()

	body, tables, err := extractXMLText(r.Editable().GetContent())
	if err != nil {
		return nil, fmt.Errorf("reading docx body: %w", err)
	}
	return []pageText{{body: body, tables: tables}}, nil
}

func parsePPTX(filePath string) ([]pageText, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening pptx: %w", err)
	}
	defer f.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := slideRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, file: file})
	}
	slices.SortFunc(slides, func(a, b slide) int { return a.num - b.num })

	texts := make([]pageText, 0, len(slides))
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, fmt.Errorf("opening slide %d: %w", s.num, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading slide %d: %w", s.num, err)
		}
		body, tables, err := extractXMLText(string(data))
		if err != nil {
			return nil, fmt.Errorf("parsing slide %d: %w", s.num, err)
		}
		texts = append(texts, pageText{body: body, tables: tables})
	}
	return texts, nil
}

func parseXLSX(filePath string) ([]pageText, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening xlsx: %w", err)
	}

	texts := make([]pageText, 0, len(f.Sheets))
	for _, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, strings.TrimSpace(cell.String()))
			}
			rows = append(rows, cells)
		}
		pt := pageText{body: "Sheet: " + sheet.Name}
		if t := tableRows(rows); t != "" {
			pt.tables = []string{t}
		}
		texts = append(texts, pt)
	}
	return texts, nil
}

func parseText(filePath string) ([]pageText, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []pageText{{body: string(data)}}, nil
}
