// Package convert turns long-form local prices into USD and PPP-adjusted
// prices. Rows that cannot be converted because a value is absent are
// dropped; values that are present but unusable fail the conversion.
package convert

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"mfntool/internal/model"
)

// Options controls exchange-rate fallbacks and deduplication.
type Options struct {
	// Fallbacks maps a country without its own exchange rate to the anchor
	// country whose same-year rate it borrows.
	Fallbacks map[string]string
	// DedupKey names the fields that identify a row; see KeyFields.
	DedupKey []string
}

// DefaultOptions borrows the German euro rate for France and Belgium and
// deduplicates on (brand, country, pack, year).
func DefaultOptions() Options {
	return Options{
		Fallbacks: map[string]string{
			"france":  "germany",
			"belgium": "germany",
		},
		DedupKey: []string{"brand", "country", "pack", "year"},
	}
}

// Stats counts rows dropped at each stage.
type Stats struct {
	Input          int
	AllNull        int
	NoUSDPrice     int
	NoPPPMatch     int
	Duplicates     int
	Output         int
	AnchorBackfill int
}

// Convert runs the full conversion: empty-row filter, exchange-rate
// fallbacks, USD conversion, PPP join, deduplication and the derived price
// columns. The input slice is not modified.
func Convert(recs []model.PriceRecord, ppp []model.PPPRate, opt Options) ([]model.PriceRecord, Stats, error) {
	st := Stats{Input: len(recs)}

	keyFn, err := KeyFunc(opt.DedupKey)
	if err != nil {
		return nil, st, err
	}

	rows := DropAllNull(recs)
	st.AllNull = len(recs) - len(rows)

	rows, st.AnchorBackfill = ApplyExchangeRates(rows, opt.Fallbacks)

	n := len(rows)
	rows, err = ToUSD(rows)
	if err != nil {
		return nil, st, err
	}
	st.NoUSDPrice = n - len(rows)

	n = len(rows)
	rows, err = JoinPPP(rows, ppp)
	if err != nil {
		return nil, st, err
	}
	st.NoPPPMatch = n - len(rows)

	n = len(rows)
	rows = Dedup(rows, keyFn)
	st.Duplicates = n - len(rows)

	st.Output = len(rows)
	return rows, st, nil
}

// DropAllNull removes rows whose price, exchange_rate, cost_per_unit and
// cost_per_strength_unit are all absent.
func DropAllNull(recs []model.PriceRecord) []model.PriceRecord {
	out := make([]model.PriceRecord, 0, len(recs))
	for _, r := range recs {
		if r.LocalPrice == nil && r.ExchangeRate == nil && r.CostPerUnit == nil && r.CostPerStrengthUnit == nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

type countryYear struct {
	country string
	year    int
}

// ApplyExchangeRates applies the two fallback rules in order:
//
//  1. target_currency GBP forces exchange_rate = 1.0.
//  2. A fallback country with no rate takes its anchor's rate for the same
//     year; its target_currency becomes USD when unset.
//
// It returns new rows and the number of rates backfilled from an anchor.
func ApplyExchangeRates(recs []model.PriceRecord, fallbacks map[string]string) ([]model.PriceRecord, int) {
	out := make([]model.PriceRecord, len(recs))
	copy(out, recs)

	for i := range out {
		if out[i].TargetCurrency != nil && strings.EqualFold(*out[i].TargetCurrency, "GBP") {
			out[i].ExchangeRate = model.Float(1.0)
		}
	}

	if len(fallbacks) == 0 {
		return out, 0
	}

	fb := make(map[string]string, len(fallbacks))
	anchors := make(map[string]bool)
	for c, a := range fallbacks {
		fb[model.CanonicalCountry(c)] = model.CanonicalCountry(a)
		anchors[model.CanonicalCountry(a)] = true
	}
	// First non-null anchor rate per (anchor, year), in row order.
	anchorRates := make(map[countryYear]float64)
	for _, r := range out {
		if !anchors[r.Country] || !model.Valid(r.ExchangeRate) {
			continue
		}
		k := countryYear{r.Country, r.Year}
		if _, seen := anchorRates[k]; !seen {
			anchorRates[k] = *r.ExchangeRate
		}
	}

	backfilled := 0
	for i := range out {
		anchor, ok := fb[out[i].Country]
		if !ok {
			continue
		}
		if !model.Valid(out[i].ExchangeRate) {
			if rate, ok := anchorRates[countryYear{anchor, out[i].Year}]; ok {
				out[i].ExchangeRate = model.Float(rate)
				backfilled++
			}
		}
		if out[i].TargetCurrency == nil {
			usd := "USD"
			out[i].TargetCurrency = &usd
		}
	}
	return out, backfilled
}

// ToUSD sets usd_price_per_unit and usd_price. Rows without an exchange
// rate or cost per unit are dropped; a non-positive or infinite rate is an
// error.
func ToUSD(recs []model.PriceRecord) ([]model.PriceRecord, error) {
	out := make([]model.PriceRecord, 0, len(recs))
	for _, r := range recs {
		if !model.Valid(r.ExchangeRate) || !model.Valid(r.CostPerUnit) {
			continue
		}
		rate := *r.ExchangeRate
		if rate <= 0 || math.IsInf(rate, 0) {
			return nil, &model.DataIntegrityError{
				Field:   "exchange_rate",
				Brand:   r.Brand,
				Country: r.Country,
				Year:    r.Year,
				Value:   rate,
				Reason:  "exchange rate must be positive and finite",
			}
		}
		r.USDPricePerUnit = model.Float(*r.CostPerUnit * rate)
		if model.Valid(r.LocalPrice) {
			r.USDPrice = model.Float(*r.LocalPrice * rate)
		}
		out = append(out, r)
	}
	return out, nil
}

// JoinPPP inner-joins rows to PPP rates on (country, year) and sets
// ppp_price_per_unit and ppp_price. Rows with no rate are dropped; a zero,
// negative or infinite rate on a matched row is an error.
func JoinPPP(recs []model.PriceRecord, ppp []model.PPPRate) ([]model.PriceRecord, error) {
	index := make(map[countryYear]float64, len(ppp))
	for _, p := range ppp {
		if !model.Valid(p.Rate) {
			continue
		}
		k := countryYear{model.CanonicalCountry(p.Country), p.Year}
		if _, dup := index[k]; !dup {
			index[k] = *p.Rate
		}
	}

	out := make([]model.PriceRecord, 0, len(recs))
	for _, r := range recs {
		rate, ok := index[countryYear{r.Country, r.Year}]
		if !ok {
			continue
		}
		if rate <= 0 || math.IsInf(rate, 0) {
			return nil, &model.DataIntegrityError{
				Field:   "ppp_rate",
				Brand:   r.Brand,
				Country: r.Country,
				Year:    r.Year,
				Value:   rate,
				Reason:  "PPP rate must be positive and finite",
			}
		}
		if model.Valid(r.CostPerUnit) {
			r.PPPPricePerUnit = model.Float(*r.CostPerUnit / rate)
		}
		if model.Valid(r.LocalPrice) {
			r.PPPPrice = model.Float(*r.LocalPrice / rate)
		}
		out = append(out, r)
	}
	return out, nil
}

// KeyFields are the field names accepted in a dedup key.
var KeyFields = []string{"brand", "country", "pack", "year", "formulation", "price_id"}

// KeyFunc builds a row-key function from field names.
func KeyFunc(fields []string) (func(*model.PriceRecord) string, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("dedup key is empty")
	}
	getters := make([]func(*model.PriceRecord) string, 0, len(fields))
	for _, f := range fields {
		switch strings.ToLower(f) {
		case "brand", "brand_name":
			getters = append(getters, func(r *model.PriceRecord) string { return r.Brand })
		case "country":
			getters = append(getters, func(r *model.PriceRecord) string { return r.Country })
		case "pack", "form":
			getters = append(getters, func(r *model.PriceRecord) string { return r.Pack })
		case "year":
			getters = append(getters, func(r *model.PriceRecord) string { return fmt.Sprint(r.Year) })
		case "formulation":
			getters = append(getters, func(r *model.PriceRecord) string { return r.Formulation })
		case "price_id":
			getters = append(getters, func(r *model.PriceRecord) string { return r.PriceID })
		default:
			return nil, fmt.Errorf("unknown dedup key field %q", f)
		}
	}
	return func(r *model.PriceRecord) string {
		parts := make([]string, len(getters))
		for i, g := range getters {
			parts[i] = g(r)
		}
		return strings.Join(parts, "\x00")
	}, nil
}

// Dedup sorts rows by (brand, country, pack, year, formulation, price_id)
// and keeps the first row of each key. Ties keep input order.
func Dedup(recs []model.PriceRecord, key func(*model.PriceRecord) string) []model.PriceRecord {
	sorted := make([]model.PriceRecord, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]
		switch {
		case a.Brand != b.Brand:
			return a.Brand < b.Brand
		case a.Country != b.Country:
			return a.Country < b.Country
		case a.Pack != b.Pack:
			return a.Pack < b.Pack
		case a.Year != b.Year:
			return a.Year < b.Year
		case a.Formulation != b.Formulation:
			return a.Formulation < b.Formulation
		default:
			return a.PriceID < b.PriceID
		}
	})

	seen := make(map[string]bool, len(sorted))
	out := sorted[:0]
	for i := range sorted {
		k := key(&sorted[i])
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, sorted[i])
	}
	return out
}
