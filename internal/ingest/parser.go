// Package ingest turns uploaded spreadsheet and CSV bytes into header and
// row matrices. Parsing is format detection plus a per-format reader; all
// row shaping (padding ragged rows, dropping blank trailers) happens here so
// downstream code always sees rectangular data.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format identifies a supported source file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	ErrEmptyFile         = errors.New("file is empty")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Table is the parsed content of one source file: a header row and zero or
// more data rows, all padded to the header width.
type Table struct {
	Headers []string
	Rows    [][]string
}

// zip local file header magic; xlsx files are zip archives.
var zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// DetectFormat picks the parser for a file. The extension decides when it is
// recognizable; otherwise the content is sniffed (zip magic means xlsx,
// anything else is treated as CSV).
func DetectFormat(filename string, head []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		// Legacy binary Excel is not supported; say so instead of
		// feeding the zip sniffer garbage.
		return "", fmt.Errorf("%w: legacy .xls (save as .xlsx or .csv)", ErrUnsupportedFormat)
	}
	if len(head) == 0 {
		return "", ErrEmptyFile
	}
	if bytes.HasPrefix(head, zipMagic) {
		return FormatXLSX, nil
	}
	return FormatCSV, nil
}

// Parse reads the whole file and dispatches on detected format. Workbooks
// are read from the first non-empty sheet.
func Parse(filename string, r io.Reader) (*Table, error) {
	return ParseSheet(filename, r, "")
}

// ParseSheet is Parse with an explicit XLSX sheet name, for deployments
// where the data sheet is configured instead of sniffed. An empty name keeps
// the first-non-empty-sheet behavior; CSV files ignore the name.
func ParseSheet(filename string, r io.Reader, xlsxSheet string) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	format, err := DetectFormat(filename, data)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		return parseCSV(data)
	case FormatXLSX:
		if xlsxSheet != "" {
			return ParseXLSXSheet(data, xlsxSheet)
		}
		return parseXLSX(data)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// normalizeRows pads or truncates every row to the header width and drops
// rows that are entirely empty. A header-only file yields zero rows.
func normalizeRows(headers []string, rows [][]string) *Table {
	width := len(headers)
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		switch {
		case len(row) < width:
			padded := make([]string, width)
			copy(padded, row)
			row = padded
		case len(row) > width:
			row = row[:width]
		}
		out = append(out, row)
	}
	return &Table{Headers: headers, Rows: out}
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
