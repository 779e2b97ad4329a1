package mfn

import (
	"mfntool/internal/model"
)

func net(p *float64, keep float64) *float64 {
	if !model.Valid(p) {
		return nil
	}
	return model.Float(*p * keep)
}

// ApplyGTN returns a copy of rows with the net_* columns set to the gross
// value times (1 - fraction) for the row's country, and net_mfn_price set
// to the second-lowest net_ppp_price of each group. Countries missing from
// gtn get no discount. Gross columns are left untouched.
func ApplyGTN(rows []model.PriceRecord, gtn model.GTNTable, g Grouping) ([]model.PriceRecord, error) {
	gtn = gtn.Normalize()
	if err := gtn.Validate(); err != nil {
		return nil, err
	}

	out := make([]model.PriceRecord, len(rows))
	copy(out, rows)
	for i := range out {
		r := &out[i]
		keep := 1 - gtn.Fraction(r.Country)
		r.NetCostPerUnit = net(r.CostPerUnit, keep)
		r.NetUSDPricePerUnit = net(r.USDPricePerUnit, keep)
		r.NetPPPPricePerUnit = net(r.PPPPricePerUnit, keep)
		r.NetPPPPrice = net(r.PPPPrice, keep)
	}

	refs := g.ReferencePrices(out, func(r *model.PriceRecord) *float64 { return r.NetPPPPrice })
	return g.Broadcast(out, refs, func(r *model.PriceRecord, v *float64) { r.NetReferencePrice = v }), nil
}
