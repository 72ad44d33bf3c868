package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// parseCSV reads a CSV byte slice. Exports disagree on delimiters, so the
// header line picks between comma and semicolon; quoting is lenient.
func parseCSV(data []byte) (*Table, error) {
	data = stripBOM(data)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1 // ragged rows are normalized afterwards
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	all, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(all) == 0 {
		return nil, ErrEmptyFile
	}

	headers := make([]string, len(all[0]))
	for i, h := range all[0] {
		headers[i] = strings.TrimSpace(h)
	}
	return normalizeRows(headers, all[1:]), nil
}

// sniffDelimiter inspects the first line: if it has semicolons but no
// commas, the file is a semicolon CSV (common in European locales).
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.ContainsRune(line, ';') && !bytes.ContainsRune(line, ',') {
		return ';'
	}
	if bytes.ContainsRune(line, '\t') && !bytes.ContainsRune(line, ',') && !bytes.ContainsRune(line, ';') {
		return '\t'
	}
	return ','
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}
