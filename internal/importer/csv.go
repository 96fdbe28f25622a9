package importer

import (
	"errors"
	"strings"
)

// ErrEmptyInput is returned when the CSV text holds no non-blank lines.
var ErrEmptyInput = errors.New("csv input is empty")

// Document is a tokenized CSV file: the header row plus data rows. Rows
// may be ragged; a short row simply has fewer cells than the header and
// the missing trailing cells are treated as absent.
type Document struct {
	Headers []string
	Rows    [][]string
}

// Parse tokenizes CSV text. Fields may be enclosed in double quotes, in
// which case they can carry commas, newlines, and doubled quotes (an
// escaped literal quote). Enclosing quotes are stripped from the emitted
// cells. Blank and whitespace-only lines are discarded. A leading UTF-8
// BOM is tolerated.
func Parse(text string) (Document, error) {
	text = strings.TrimPrefix(text, "\uFEFF")

	var (
		rows     [][]string
		row      []string
		field    strings.Builder
		inQuotes bool
		content  bool
	)

	endField := func() {
		row = append(row, field.String())
		field.Reset()
	}
	endRow := func() {
		endField()
		if content {
			rows = append(rows, row)
		}
		row = nil
		content = false
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inQuotes:
			if c == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					field.WriteRune('"')
					i++
					continue
				}
				inQuotes = false
				continue
			}
			field.WriteRune(c)
		case c == '"':
			inQuotes = true
			content = true
		case c == ',':
			endField()
			content = true
		case c == '\n':
			endRow()
		case c == '\r':
			if i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			endRow()
		default:
			if c != ' ' && c != '\t' {
				content = true
			}
			field.WriteRune(c)
		}
	}
	if field.Len() > 0 || len(row) > 0 || content {
		endRow()
	}

	if len(rows) == 0 {
		return Document{}, ErrEmptyInput
	}
	return Document{Headers: rows[0], Rows: rows[1:]}, nil
}

// Cell returns the row's cell at the given column index, along with
// whether the cell exists. Ragged rows make trailing cells absent rather
// than empty.
func cellAt(row []string, idx int) (string, bool) {
	if idx < 0 || idx >= len(row) {
		return "", false
	}
	return row[idx], true
}
