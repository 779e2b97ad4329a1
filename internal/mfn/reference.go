// Package mfn computes "most favored nation" reference prices: the
// second-lowest PPP-adjusted price across a basket of reference markets.
package mfn

import (
	"math"
	"sort"

	"mfntool/internal/model"
)

// SecondLowest returns the value at index 1 of the ascending sort of
// values, ignoring NaN. Ties are positional: [5, 5, 9] yields 5. A single
// value is its own second-lowest; no values yields nil.
func SecondLowest(values []float64) *float64 {
	vs := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			vs = append(vs, v)
		}
	}
	switch len(vs) {
	case 0:
		return nil
	case 1:
		return model.Float(vs[0])
	}
	sort.Float64s(vs)
	return model.Float(vs[1])
}

// Grouping selects the reference-price group key and which countries are
// eligible to contribute a price.
type Grouping struct {
	Basket model.Basket
	// ByPack gives every pack size its own reference price.
	ByPack bool
}

// Key returns the group r belongs to.
func (g Grouping) Key(r *model.PriceRecord) model.GroupKey {
	k := model.GroupKey{Brand: r.Brand, Year: r.Year}
	if g.ByPack {
		k.Pack = r.Pack
	}
	return k
}

// ReferencePrices computes the second-lowest of price(row) per group over
// reference-market rows. Every group seen in rows gets an entry; groups
// without an eligible price map to nil.
func (g Grouping) ReferencePrices(rows []model.PriceRecord, price func(*model.PriceRecord) *float64) map[model.GroupKey]*float64 {
	values := make(map[model.GroupKey][]float64)
	for i := range rows {
		r := &rows[i]
		k := g.Key(r)
		if _, ok := values[k]; !ok {
			values[k] = nil
		}
		if !g.Basket.IsReference(r.Country) {
			continue
		}
		if p := price(r); model.Valid(p) {
			values[k] = append(values[k], *p)
		}
	}

	refs := make(map[model.GroupKey]*float64, len(values))
	for k, vs := range values {
		refs[k] = SecondLowest(vs)
	}
	return refs
}

// Broadcast returns a copy of rows with set called on every row using its
// group's value from refs.
func (g Grouping) Broadcast(rows []model.PriceRecord, refs map[model.GroupKey]*float64, set func(*model.PriceRecord, *float64)) []model.PriceRecord {
	out := make([]model.PriceRecord, len(rows))
	copy(out, rows)
	for i := range out {
		set(&out[i], model.CopyFloat(refs[g.Key(&out[i])]))
	}
	return out
}

// AssignReferencePrice sets mfn_price on every row to the second-lowest
// ppp_price of its group.
func AssignReferencePrice(rows []model.PriceRecord, g Grouping) []model.PriceRecord {
	refs := g.ReferencePrices(rows, func(r *model.PriceRecord) *float64 { return r.PPPPrice })
	return g.Broadcast(rows, refs, func(r *model.PriceRecord, v *float64) { r.ReferencePrice = v })
}
