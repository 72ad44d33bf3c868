package google

import (
	"fmt"
	"strconv"
	"strings"

	"sheetpipe/internal/ingest"
)

// tableFromValues converts a Sheets values matrix into a table. The first
// row is the header; data rows are padded or truncated to the header width
// and blank rows are dropped.
func tableFromValues(values [][]interface{}) (ingest.Table, error) {
	if len(values) == 0 {
		return ingest.Table{}, ingest.ErrEmptyFile
	}

	headers := toStrings(values[0])
	if isBlankRow(headers) {
		return ingest.Table{}, ingest.ErrEmptyFile
	}

	table := ingest.Table{Headers: headers}
	for _, raw := range values[1:] {
		row := fitRow(toStrings(raw), len(headers))
		if isBlankRow(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// toStrings renders every cell as text. Sheets returns numeric cells as
// float64; FormatFloat keeps "1024" from turning into "1.024e+03".
func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch cell := v.(type) {
		case string:
			out[i] = strings.TrimSpace(cell)
		case float64:
			out[i] = strconv.FormatFloat(cell, 'f', -1, 64)
		case bool:
			out[i] = strconv.FormatBool(cell)
		case nil:
			out[i] = ""
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(cell))
		}
	}
	return out
}

func fitRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	if len(row) > width {
		return row[:width]
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
