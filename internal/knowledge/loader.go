package knowledge

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// maxLineSize bounds a single JSONL record. Canonical answers can be long.
const maxLineSize = 1024 * 1024

// LoadFile loads a knowledge base from a .jsonl or .xlsx file and returns a
// validated catalog.
func LoadFile(path string) (*Catalog, error) {
	var (
		entries []Entry
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening knowledge base %s: %w", path, err)
		}
		defer f.Close()
		entries, err = ReadJSONL(f)
	case ".xlsx":
		entries, err = LoadXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base %s: %w", path, err)
	}
	return NewCatalog(entries)
}

// ReadJSONL reads one entry per line. Blank lines are skipped; a malformed
// line fails the whole load.
func ReadJSONL(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var entries []Entry
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(text, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading jsonl: %w", err)
	}
	return entries, nil
}

// WriteJSONL writes entries one per line.
func WriteJSONL(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encoding entry %q: %w", e.ID, err)
		}
	}
	return nil
}

// Spreadsheet column names. The header row may list them in any order.
const (
	colID              = "id"
	colKBID            = "kb_id"
	colTitle           = "title"
	colCanonicalAnswer = "canonical_answer"
	colVariants        = "question_variants"
	colTags            = "tags"
	colSources         = "sources"
	colUrgency         = "urgency"
)

// LoadXLSX reads entries from the first sheet of a workbook. The first row is
// a header; list cells separate items with "||" or newlines.
func LoadXLSX(path string) ([]Entry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := header[colID]; !ok {
		if i, ok := header[colKBID]; ok {
			header[colID] = i
		} else {
			return nil, fmt.Errorf("sheet %q: missing %q column", sheet, colID)
		}
	}

	cell := func(row []string, col string) string {
		i, ok := header[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var entries []Entry
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		entries = append(entries, Entry{
			ID:               cell(row, colID),
			Title:            cell(row, colTitle),
			CanonicalAnswer:  cell(row, colCanonicalAnswer),
			QuestionVariants: splitList(cell(row, colVariants)),
			Tags:             splitList(cell(row, colTags)),
			Sources:          splitList(cell(row, colSources)),
			Urgency:          Urgency(strings.ToLower(cell(row, colUrgency))),
		})
	}
	return entries, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// splitList splits a spreadsheet list cell on "||" and newlines.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(strings.ReplaceAll(s, "||", "\n"), func(r rune) bool {
		return r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
