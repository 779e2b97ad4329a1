package model

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaError lists every structural problem found in an input table.
// It is only returned once validation has run over all columns.
type SchemaError struct {
	Table           string
	MissingIdentity []string
	Unknown         []string
	Malformed       []string
	InvalidMetrics  []string
	MissingMetrics  map[int][]string // year → metric names absent for that year
}

// Empty reports whether no violation was recorded.
func (e *SchemaError) Empty() bool {
	return len(e.MissingIdentity) == 0 && len(e.Unknown) == 0 &&
		len(e.Malformed) == 0 && len(e.InvalidMetrics) == 0 && len(e.MissingMetrics) == 0
}

// Count returns the number of individual violations.
func (e *SchemaError) Count() int {
	n := len(e.MissingIdentity) + len(e.Unknown) + len(e.Malformed) + len(e.InvalidMetrics)
	for _, m := range e.MissingMetrics {
		n += len(m)
	}
	return n
}

// AddMissingMetric records that year has no column for metric.
func (e *SchemaError) AddMissingMetric(year int, metric string) {
	if e.MissingMetrics == nil {
		e.MissingMetrics = make(map[int][]string)
	}
	e.MissingMetrics[year] = append(e.MissingMetrics[year], metric)
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.MissingIdentity) > 0 {
		parts = append(parts, "missing identity columns: "+strings.Join(e.MissingIdentity, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown columns: "+strings.Join(e.Unknown, ", "))
	}
	if len(e.Malformed) > 0 {
		parts = append(parts, "malformed column names: "+strings.Join(e.Malformed, ", "))
	}
	if len(e.InvalidMetrics) > 0 {
		parts = append(parts, "invalid metric names: "+strings.Join(e.InvalidMetrics, ", "))
	}
	if len(e.MissingMetrics) > 0 {
		years := make([]int, 0, len(e.MissingMetrics))
		for y := range e.MissingMetrics {
			years = append(years, y)
		}
		sort.Ints(years)
		for _, y := range years {
			parts = append(parts, fmt.Sprintf("year %d missing metrics: %s", y, strings.Join(e.MissingMetrics[y], ", ")))
		}
	}
	table := e.Table
	if table == "" {
		table = "input"
	}
	return fmt.Sprintf("schema error in %s table (%d violations): %s", table, e.Count(), strings.Join(parts, "; "))
}

// DataIntegrityError reports a value that is present but cannot be used,
// such as a non-positive rate used as a divisor. Absent values never
// produce this error.
type DataIntegrityError struct {
	Field   string
	Brand   string
	Country string
	Year    int
	Value   float64
	Raw     string // unparsed cell text, when the value was not numeric
	Reason  string
}

func (e *DataIntegrityError) Error() string {
	var where []string
	if e.Brand != "" {
		where = append(where, "brand="+e.Brand)
	}
	if e.Country != "" {
		where = append(where, "country="+e.Country)
	}
	if e.Year != 0 {
		where = append(where, fmt.Sprintf("year=%d", e.Year))
	}
	val := fmt.Sprintf("%g", e.Value)
	if e.Raw != "" {
		val = fmt.Sprintf("%q", e.Raw)
	}
	msg := fmt.Sprintf("data integrity: %s=%s: %s", e.Field, val, e.Reason)
	if len(where) > 0 {
		msg += " (" + strings.Join(where, " ") + ")"
	}
	return msg
}
