package parser

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// extractXMLText pulls the visible text out of WordprocessingML or
// DrawingML. Paragraphs become lines; table rows are returned separately,
// one table per element of tables.
func extractXMLText(content string) (body string, tables []string, err error) {
	dec := xml.NewDecoder(strings.NewReader(content))

	var (
		text      strings.Builder
		para      strings.Builder
		inText    bool
		depth     int
		rows      [][]string
		row       []string
		cell      strings.Builder
		inCell    bool
		cellParas int
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tbl":
				depth++
				if depth == 1 {
					rows = nil
				}
			case "tr":
				row = nil
			case "tc":
				inCell = true
				cellParas = 0
				cell.Reset()
			case "tab":
				para.WriteString("\t")
			case "br":
				para.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				line := strings.TrimSpace(para.String())
				para.Reset()
				if line == "" {
					continue
				}
				if inCell {
					if cellParas > 0 {
						cell.WriteString(" ")
					}
					cell.WriteString(line)
					cellParas++
					continue
				}
				text.WriteString(line)
				text.WriteString("\n")
			case "tc":
				inCell = false
				row = append(row, cell.String())
			case "tr":
				rows = append(rows, row)
			case "tbl":
				depth--
				if depth == 0 {
					if t := tableRows(rows); t != "" {
						tables = append(tables, t)
					}
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}

	if rest := strings.TrimSpace(para.String()); rest != "" {
		text.WriteString(rest)
	}
	return strings.TrimSpace(text.String()), tables, nil
}
