package mapping

import "strings"

// NormalizeHeader canonicalizes a source header cell so that "Field A",
// "field_a" and "FIELD-A" all resolve to the same key: trim, lowercase, and
// collapse every run of spaces, underscores, dashes and dots into a single
// underscore.
func NormalizeHeader(h string) string {
	h = strings.TrimSpace(strings.ToLower(h))
	if h == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(h))
	pendingSep := false
	for _, r := range h {
		switch r {
		case ' ', '\t', '_', '-', '.':
			pendingSep = true
		default:
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// headerIndex builds a lookup from normalized header to column position.
// The first occurrence wins when a file repeats a header.
func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		key := NormalizeHeader(h)
		if key == "" {
			continue
		}
		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}
	return idx
}
