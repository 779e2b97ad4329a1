// Package aggregate converts between flat price rows and the nested
// brand × country × pack → year → metrics form used for display.
package aggregate

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mfntool/internal/model"
)

type groupKey struct {
	brand   string
	country string
	pack    string
}

// Aggregate nests rows by (brand, country, pack). Groups keep the order in
// which they first appear; country names are title-cased. When two rows
// share a (brand, country, pack, year) the first wins.
func Aggregate(rows []model.PriceRecord) []model.AggregatedRecord {
	title := cases.Title(language.English)

	index := make(map[groupKey]int)
	var out []model.AggregatedRecord
	for i := range rows {
		r := &rows[i]
		k := groupKey{r.Brand, model.CanonicalCountry(r.Country), r.Pack}
		pos, ok := index[k]
		if !ok {
			pos = len(out)
			index[k] = pos
			out = append(out, model.AggregatedRecord{
				Brand:   r.Brand,
				Country: title.String(k.country),
				Pack:    r.Pack,
				Years:   make(map[int]model.YearMetrics),
			})
		}
		if _, dup := out[pos].Years[r.Year]; dup {
			continue
		}
		out[pos].Years[r.Year] = model.YearMetrics{
			LocalCostPerUnit: model.CopyFloat(r.CostPerUnit),
			USDCostPerUnit:   model.CopyFloat(r.USDPricePerUnit),
			PPPCostPerUnit:   model.CopyFloat(r.PPPPricePerUnit),
			MFNPriceUSD:      model.CopyFloat(r.ReferencePrice),
		}
	}
	return out
}

// Unroll flattens aggregated records back to one row per (brand, country,
// pack, year), years ascending within each record. Only the columns carried
// by YearMetrics are set.
func Unroll(recs []model.AggregatedRecord) []model.PriceRecord {
	var out []model.PriceRecord
	for _, a := range recs {
		years := make([]int, 0, len(a.Years))
		for y := range a.Years {
			years = append(years, y)
		}
		sort.Ints(years)

		country := strings.ToLower(a.Country)
		for _, y := range years {
			m := a.Years[y]
			out = append(out, model.PriceRecord{
				Brand:           a.Brand,
				Country:         country,
				Pack:            a.Pack,
				Year:            y,
				CostPerUnit:     model.CopyFloat(m.LocalCostPerUnit),
				USDPricePerUnit: model.CopyFloat(m.USDCostPerUnit),
				PPPPricePerUnit: model.CopyFloat(m.PPPCostPerUnit),
				ReferencePrice:  model.CopyFloat(m.MFNPriceUSD),
			})
		}
	}
	return out
}
