package schema

import (
	"fmt"
	"sort"
	"strings"

	"mfntool/internal/model"
)

// RawTable is a sheet as read from disk: one header row plus data rows,
// every cell still text.
type RawTable struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Schema declares the identity columns that must be present and the
// metrics every observed year must carry.
type Schema struct {
	Identity []string
	Required []Metric
}

// DefaultSchema requires brand, country and pack identity columns and all
// five metrics per year.
func DefaultSchema() Schema {
	return Schema{
		Identity: []string{ColBrand, ColCountry, ColForm},
		Required: AllMetrics,
	}
}

// Layout is the validated column map of a price sheet.
type Layout struct {
	identity map[string]int
	metrics  map[int]map[Metric]int // year → metric → column index
	Years    []int
}

// Validate checks every header cell and returns the column layout. All
// violations are collected into a single *model.SchemaError.
func (s Schema) Validate(header []string) (*Layout, error) {
	l := &Layout{
		identity: make(map[string]int),
		metrics:  make(map[int]map[Metric]int),
	}
	serr := &model.SchemaError{Table: "price"}

	for i, raw := range header {
		h := normalizeHeader(raw)
		if h == "" {
			serr.Unknown = append(serr.Unknown, fmt.Sprintf("<blank column %d>", i+1))
			continue
		}
		c := classify(h)
		switch c.class {
		case classIdentity:
			if _, dup := l.identity[c.identity]; dup {
				serr.Malformed = append(serr.Malformed, raw+" (duplicate)")
				continue
			}
			l.identity[c.identity] = i
		case classMetric:
			byMetric, ok := l.metrics[c.year]
			if !ok {
				byMetric = make(map[Metric]int)
				l.metrics[c.year] = byMetric
			}
			if _, dup := byMetric[c.metric]; dup {
				serr.Malformed = append(serr.Malformed, raw+" (duplicate of "+c.name+")")
				continue
			}
			byMetric[c.metric] = i
		case classInvalidMetric:
			serr.InvalidMetrics = append(serr.InvalidMetrics, raw)
		case classMalformed:
			serr.Malformed = append(serr.Malformed, raw)
		default:
			serr.Unknown = append(serr.Unknown, raw)
		}
	}

	for _, id := range s.Identity {
		if _, ok := l.identity[id]; !ok {
			serr.MissingIdentity = append(serr.MissingIdentity, id)
		}
	}

	for year := range l.metrics {
		l.Years = append(l.Years, year)
	}
	sort.Ints(l.Years)
	if len(l.Years) == 0 {
		serr.Malformed = append(serr.Malformed, "no <year>-<metric> columns")
	}
	for _, year := range l.Years {
		for _, m := range s.Required {
			if _, ok := l.metrics[year][m]; !ok {
				serr.AddMissingMetric(year, string(m))
			}
		}
	}

	if !serr.Empty() {
		return nil, serr
	}
	return l, nil
}

// Normalize validates t with the default schema and pivots it to long form.
func Normalize(t *RawTable) ([]model.PriceRecord, error) {
	return DefaultSchema().Normalize(t)
}

// Normalize validates the header of t and pivots each data row into one
// PriceRecord per observed year. Output is ordered by (brand, year),
// stable with respect to sheet order.
func (s Schema) Normalize(t *RawTable) ([]model.PriceRecord, error) {
	layout, err := s.Validate(t.Header)
	if err != nil {
		return nil, err
	}

	out := make([]model.PriceRecord, 0, len(t.Rows)*len(layout.Years))
	for rowIdx, row := range t.Rows {
		if isEmptyRow(row) {
			continue
		}
		base := model.PriceRecord{
			Brand:       layout.identityValue(row, ColBrand),
			Country:     model.CanonicalCountry(layout.identityValue(row, ColCountry)),
			Pack:        layout.identityValue(row, ColForm),
			Formulation: layout.identityValue(row, ColFormulation),
			PriceID:     layout.identityValue(row, ColPriceID),
		}

		for _, year := range layout.Years {
			rec := base // struct copy
			rec.Year = year
			if err := layout.fill(&rec, row, year); err != nil {
				return nil, fmt.Errorf("row %d: %w", rowIdx+2, err)
			}
			out = append(out, rec)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Brand != out[j].Brand {
			return out[i].Brand < out[j].Brand
		}
		return out[i].Year < out[j].Year
	})
	return out, nil
}

func (l *Layout) identityValue(row []string, col string) string {
	i, ok := l.identity[col]
	if !ok {
		return ""
	}
	return cellAt(row, i)
}

// fill sets the metric fields of rec from the year's columns.
func (l *Layout) fill(rec *model.PriceRecord, row []string, year int) error {
	cols := l.metrics[year]
	num := func(m Metric) (*float64, error) {
		i, ok := cols[m]
		if !ok {
			return nil, nil
		}
		cell := cellAt(row, i)
		v, ok := parseFloat(cell)
		if !ok {
			return nil, &model.DataIntegrityError{
				Field:   string(m),
				Brand:   rec.Brand,
				Country: rec.Country,
				Year:    year,
				Raw:     cell,
				Reason:  "not a number",
			}
		}
		return v, nil
	}

	var err error
	if rec.LocalPrice, err = num(MetricPrice); err != nil {
		return err
	}
	if rec.ExchangeRate, err = num(MetricExchangeRate); err != nil {
		return err
	}
	if rec.CostPerUnit, err = num(MetricCostPerUnit); err != nil {
		return err
	}
	if rec.CostPerStrengthUnit, err = num(MetricCostPerStrengthUnit); err != nil {
		return err
	}
	if i, ok := cols[MetricTargetCurrency]; ok {
		if cur := optStr(cellAt(row, i)); cur != nil {
			upper := strings.ToUpper(*cur)
			rec.TargetCurrency = &upper
		}
	}
	return nil
}
