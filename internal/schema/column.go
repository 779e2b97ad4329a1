// Package schema validates raw wide price tables and pivots them into the
// long (brand, country, pack, year) form.
package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Metric is one of the per-year value columns of the price sheet.
type Metric string

const (
	MetricPrice               Metric = "price"
	MetricExchangeRate        Metric = "exchange_rate"
	MetricTargetCurrency      Metric = "target_currency"
	MetricCostPerUnit         Metric = "cost_per_unit"
	MetricCostPerStrengthUnit Metric = "cost_per_strength_unit"
)

// AllMetrics is the closed set of metric names, in sheet order.
var AllMetrics = []Metric{
	MetricPrice,
	MetricExchangeRate,
	MetricTargetCurrency,
	MetricCostPerUnit,
	MetricCostPerStrengthUnit,
}

// Identity columns of the price sheet.
const (
	ColBrand       = "brand_name"
	ColCountry     = "country"
	ColForm        = "form"
	ColFormulation = "formulation"
	ColPriceID     = "price_id"
)

// IdentityColumns lists every identity column in sheet order.
var IdentityColumns = []string{ColBrand, ColCountry, ColForm, ColFormulation, ColPriceID}

var (
	yearFirstRe   = regexp.MustCompile(`^(\d+)-(.+)$`)
	metricFirstRe = regexp.MustCompile(`^(.+)-(\d+)$`)
)

type columnClass int

const (
	classIdentity columnClass = iota
	classMetric
	classUnknown
	classMalformed
	classInvalidMetric
)

// column is the parsed form of one header cell.
type column struct {
	class    columnClass
	name     string // canonical: identity name or "<metric>-<year>"
	identity string
	metric   Metric
	year     int
}

func isMetric(s string) bool {
	for _, m := range AllMetrics {
		if string(m) == s {
			return true
		}
	}
	return false
}

func isIdentity(s string) bool {
	for _, c := range IdentityColumns {
		if c == s {
			return true
		}
	}
	return false
}

// normalizeHeader lowercases a header cell and trims spaces around each
// dash-separated segment. " 2021 - Price " → "2021-price"
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	parts := strings.Split(strings.ToLower(strings.TrimSpace(h)), "-")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, "-")
}

// classify parses a normalized header. Both "2021-price" and "price-2021"
// canonicalize to "price-2021".
func classify(h string) column {
	if isIdentity(h) {
		return column{class: classIdentity, name: h, identity: h}
	}

	var digits, rest string
	if m := yearFirstRe.FindStringSubmatch(h); m != nil {
		digits, rest = m[1], m[2]
	} else if m := metricFirstRe.FindStringSubmatch(h); m != nil {
		rest, digits = m[1], m[2]
	} else {
		// No numeric year segment. A bare metric name or a metric with a
		// garbage suffix is malformed rather than unknown.
		if isMetric(h) {
			return column{class: classMalformed, name: h}
		}
		if i := strings.Index(h, "-"); i >= 0 {
			if isMetric(h[:i]) || isMetric(h[strings.LastIndex(h, "-")+1:]) {
				return column{class: classMalformed, name: h}
			}
		}
		return column{class: classUnknown, name: h}
	}

	if len(digits) != 4 {
		return column{class: classMalformed, name: h}
	}
	if !isMetric(rest) {
		return column{class: classInvalidMetric, name: h}
	}
	year, _ := strconv.Atoi(digits)
	return column{
		class:  classMetric,
		name:   fmt.Sprintf("%s-%d", rest, year),
		metric: Metric(rest),
		year:   year,
	}
}

// ParseMetricColumn turns "2021-price" or "price-2021" into (price, 2021).
func ParseMetricColumn(name string) (Metric, int, error) {
	c := classify(normalizeHeader(name))
	switch c.class {
	case classMetric:
		return c.metric, c.year, nil
	case classIdentity:
		return "", 0, fmt.Errorf("column %q is an identity column", name)
	case classInvalidMetric:
		return "", 0, fmt.Errorf("column %q: invalid metric name", name)
	case classMalformed:
		return "", 0, fmt.Errorf("column %q: malformed metric-year name", name)
	default:
		return "", 0, fmt.Errorf("column %q: unknown column", name)
	}
}
