package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sheetpipe/internal/core"
)

// dateLayouts are tried in order. The list is fixed so the same cell always
// parses the same way regardless of which file it arrived in.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006", // slash dates are month-first
	"1/2/2006",
	"02.01.2006", // dotted dates are day-first
	"Jan 2, 2006",
	"2006/01/02",
}

// excelEpoch is day zero of Excel's 1900 date system.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Coerce converts a raw cell into a typed field value according to kind.
func Coerce(raw string, kind core.FieldKind) (core.FieldValue, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case core.FieldText:
		return core.TextValue(raw), nil
	case core.FieldDecimal:
		d, err := parseDecimal(raw)
		if err != nil {
			return core.FieldValue{}, err
		}
		return core.DecimalValue(d), nil
	case core.FieldInteger:
		i, err := strconv.ParseInt(stripThousands(raw), 10, 64)
		if err != nil {
			return core.FieldValue{}, fmt.Errorf("not an integer: %q", raw)
		}
		return core.IntegerValue(i), nil
	case core.FieldDate:
		t, err := parseDate(raw)
		if err != nil {
			return core.FieldValue{}, err
		}
		return core.DateValue(t), nil
	case core.FieldBool:
		b, err := parseBool(raw)
		if err != nil {
			return core.FieldValue{}, err
		}
		return core.BoolValue(b), nil
	default:
		return core.FieldValue{}, fmt.Errorf("unknown field kind %q", kind)
	}
}

// parseDecimal accepts comma or dot decimal separators and strips common
// currency symbols and thousands separators before parsing.
func parseDecimal(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "$€£ ")
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty decimal")
	}
	// "1.234,56" and "1,234.56" both show up in exports. Whichever separator
	// comes last is the decimal point; the other is thousands noise.
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		if strings.Count(s, ",") > 1 {
			// Multiple commas can only be thousands grouping, "1,234,567".
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot > lastComma && lastComma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a decimal: %q", raw)
	}
	return d, nil
}

func stripThousands(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ",", "")
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	// Excel serial dates arrive as bare numbers when cells lose their format.
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 && serial < 300000 {
		days := int(serial)
		frac := serial - float64(days)
		t := excelEpoch.AddDate(0, 0, days)
		return t.Add(time.Duration(frac * 24 * float64(time.Hour))), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date: %q", raw)
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "y", "1", "x":
		return true, nil
	case "false", "no", "n", "0", "":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", raw)
}
