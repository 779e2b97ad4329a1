package mfn

import (
	"fmt"

	"mfntool/internal/model"
)

// DefaultMinMarkets is the smallest basket that admits a (brand, year).
const DefaultMinMarkets = 5

// FilterResult reports what FilterBasket kept.
type FilterResult struct {
	Rows          []model.PriceRecord
	GroupsKept    int
	GroupsDropped int
	RowsDropped   int
}

type brandYear struct {
	brand string
	year  int
}

// FilterBasket drops every (brand, year) group with fewer than minMarkets
// distinct reference countries. Rows of kept groups are returned in input
// order, non-reference rows included.
func FilterBasket(rows []model.PriceRecord, basket model.Basket, minMarkets int) (*FilterResult, error) {
	if minMarkets < 1 {
		return nil, fmt.Errorf("minimum basket size must be at least 1, got %d", minMarkets)
	}

	countries := make(map[brandYear]map[string]struct{})
	for i := range rows {
		k := brandYear{rows[i].Brand, rows[i].Year}
		set, ok := countries[k]
		if !ok {
			set = make(map[string]struct{})
			countries[k] = set
		}
		if basket.IsReference(rows[i].Country) {
			set[model.CanonicalCountry(rows[i].Country)] = struct{}{}
		}
	}

	res := &FilterResult{Rows: make([]model.PriceRecord, 0, len(rows))}
	for _, set := range countries {
		if len(set) >= minMarkets {
			res.GroupsKept++
		} else {
			res.GroupsDropped++
		}
	}
	for _, r := range rows {
		if len(countries[brandYear{r.Brand, r.Year}]) < minMarkets {
			res.RowsDropped++
			continue
		}
		res.Rows = append(res.Rows, r)
	}
	return res, nil
}
