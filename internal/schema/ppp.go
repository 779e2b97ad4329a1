package schema

import (
	"fmt"
	"sort"
	"strconv"

	"mfntool/internal/model"
)

// ParsePPPTable melts a wide PPP sheet (country, 2020, 2021, ...) into one
// PPPRate per (country, year). Empty cells become rates with a nil value;
// they are dropped at join time like any other missing match.
func ParsePPPTable(t *RawTable) ([]model.PPPRate, error) {
	serr := &model.SchemaError{Table: "ppp"}
	countryIdx := -1
	yearCols := make(map[int]int) // column index → year

	for i, raw := range t.Header {
		h := normalizeHeader(raw)
		switch {
		case h == ColCountry || h == "country_name":
			if countryIdx >= 0 {
				serr.Malformed = append(serr.Malformed, raw+" (duplicate)")
				continue
			}
			countryIdx = i
		case h == "":
			serr.Unknown = append(serr.Unknown, fmt.Sprintf("<blank column %d>", i+1))
		default:
			year, err := strconv.Atoi(h)
			if err != nil {
				serr.Unknown = append(serr.Unknown, raw)
				continue
			}
			if len(h) != 4 {
				serr.Malformed = append(serr.Malformed, raw)
				continue
			}
			yearCols[i] = year
		}
	}
	if countryIdx < 0 {
		serr.MissingIdentity = append(serr.MissingIdentity, ColCountry)
	}
	if len(yearCols) == 0 {
		serr.Malformed = append(serr.Malformed, "no year columns")
	}
	if !serr.Empty() {
		return nil, serr
	}

	var rates []model.PPPRate
	for _, row := range t.Rows {
		if isEmptyRow(row) {
			continue
		}
		country := model.CanonicalCountry(cellAt(row, countryIdx))
		if country == "" {
			continue
		}
		for col, year := range yearCols {
			cell := cellAt(row, col)
			v, ok := parseFloat(cell)
			if !ok {
				return nil, &model.DataIntegrityError{
					Field:   "ppp_rate",
					Country: country,
					Year:    year,
					Raw:     cell,
					Reason:  "not a number",
				}
			}
			rates = append(rates, model.PPPRate{Country: country, Year: year, Rate: v})
		}
	}

	sort.SliceStable(rates, func(i, j int) bool {
		if rates[i].Country != rates[j].Country {
			return rates[i].Country < rates[j].Country
		}
		return rates[i].Year < rates[j].Year
	})
	return rates, nil
}
