package schema

import (
	"math"
	"strconv"
	"strings"
)

// nullTokens are spreadsheet spellings of an empty cell.
var nullTokens = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
	"none": true,
	"-":    true,
	"#n/a": true,
}

func isNull(s string) bool {
	return nullTokens[strings.ToLower(strings.TrimSpace(s))]
}

// cellAt returns the trimmed, UTF-8-sanitized cell i of row, or "" when the
// row is short. Some sheets are exported as Windows-1252.
func cellAt(row []string, i int) string {
	if i >= 0 && i < len(row) {
		return strings.ToValidUTF8(strings.TrimSpace(row[i]), "\uFFFD")
	}
	return ""
}

// parseFloat parses a numeric cell. ok is false when the cell is non-null
// text that is not a finite number; a nil result with ok=true means absent.
func parseFloat(s string) (v *float64, ok bool) {
	if isNull(s) {
		return nil, true
	}
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, false
	}
	return &f, true
}

func optStr(s string) *string {
	if isNull(s) {
		return nil
	}
	s = strings.TrimSpace(s)
	return &s
}

func isEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
