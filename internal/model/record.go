// Package model holds the row types shared by every stage of the MFN price
// pipeline, from the normalized long table to the nested display form.
package model

import "math"

// PriceRecord is one long-form row: one brand × country × pack × year.
// The same struct carries the long table (derived columns nil), the
// processed table (derived columns set) and GTN output (net columns set),
// so one Parquet schema covers every cached snapshot.
//
// Optional (*type) fields map to Parquet optional columns; nil means the
// value was absent in the source or has not been derived yet.
type PriceRecord struct {
	// ── Identity ──────────────────────────────────────────────────────
	// (Brand, Country, Pack, Year) is unique after deduplication.
	// Formulation and PriceID are carried from the source sheet only.
	Brand       string `parquet:"brand_name" json:"brand_name" db:"brand_name"`
	Country     string `parquet:"country" json:"country" db:"country"` // lowercased canonical name
	Pack        string `parquet:"form" json:"form" db:"form"`
	Formulation string `parquet:"formulation" json:"formulation,omitempty" db:"formulation"`
	PriceID     string `parquet:"price_id" json:"price_id,omitempty" db:"price_id"`
	Year        int    `parquet:"year" json:"year" db:"year"`

	// ── Source metrics (local currency) ───────────────────────────────
	LocalPrice          *float64 `parquet:"price,optional" json:"price,omitempty" db:"price"`
	ExchangeRate        *float64 `parquet:"exchange_rate,optional" json:"exchange_rate,omitempty" db:"exchange_rate"`
	TargetCurrency      *string  `parquet:"target_currency,optional" json:"target_currency,omitempty" db:"target_currency"`
	CostPerUnit         *float64 `parquet:"cost_per_unit,optional" json:"cost_per_unit,omitempty" db:"cost_per_unit"`
	CostPerStrengthUnit *float64 `parquet:"cost_per_strength_unit,optional" json:"cost_per_strength_unit,omitempty" db:"cost_per_strength_unit"`

	// ── Derived (gross) ───────────────────────────────────────────────
	USDPricePerUnit *float64 `parquet:"usd_price_per_unit,optional" json:"usd_price_per_unit,omitempty" db:"usd_price_per_unit"`
	PPPPricePerUnit *float64 `parquet:"ppp_price_per_unit,optional" json:"ppp_price_per_unit,omitempty" db:"ppp_price_per_unit"`
	USDPrice        *float64 `parquet:"usd_price,optional" json:"usd_price,omitempty" db:"usd_price"`
	PPPPrice        *float64 `parquet:"ppp_price,optional" json:"ppp_price,omitempty" db:"ppp_price"`
	// ReferencePrice is broadcast: every row of a group holds the same value.
	ReferencePrice *float64 `parquet:"mfn_price,optional" json:"mfn_price,omitempty" db:"mfn_price"`

	// ── Derived (net of GTN discount) ─────────────────────────────────
	NetCostPerUnit     *float64 `parquet:"net_cost_per_unit,optional" json:"net_cost_per_unit,omitempty" db:"net_cost_per_unit"`
	NetUSDPricePerUnit *float64 `parquet:"net_usd_price_per_unit,optional" json:"net_usd_price_per_unit,omitempty" db:"net_usd_price_per_unit"`
	NetPPPPricePerUnit *float64 `parquet:"net_ppp_price_per_unit,optional" json:"net_ppp_price_per_unit,omitempty" db:"net_ppp_price_per_unit"`
	NetPPPPrice        *float64 `parquet:"net_ppp_price,optional" json:"net_ppp_price,omitempty" db:"net_ppp_price"`
	NetReferencePrice  *float64 `parquet:"net_mfn_price,optional" json:"net_mfn_price,omitempty" db:"net_mfn_price"`
}

// RowKey identifies a row after deduplication.
type RowKey struct {
	Brand   string
	Country string
	Pack    string
	Year    int
}

// Key returns the row's identity tuple.
func (r *PriceRecord) Key() RowKey {
	return RowKey{Brand: r.Brand, Country: r.Country, Pack: r.Pack, Year: r.Year}
}

// GroupKey is the reference-price grouping key. Pack is empty unless the
// caller groups per pack size.
type GroupKey struct {
	Brand string
	Year  int
	Pack  string
}

// PPPRate is one (country, year) health purchasing-power-parity factor.
type PPPRate struct {
	Country string   `parquet:"country" json:"country" db:"country"`
	Year    int      `parquet:"year" json:"year" db:"year"`
	Rate    *float64 `parquet:"ppp_rate,optional" json:"ppp_rate,omitempty" db:"ppp_rate"`
}

// YearMetrics is the per-year slice of an AggregatedRecord.
type YearMetrics struct {
	LocalCostPerUnit *float64 `json:"Cost Per Unit Local"`
	USDCostPerUnit   *float64 `json:"Cost Per Unit USD"`
	PPPCostPerUnit   *float64 `json:"Cost Per Unit PPP"`
	MFNPriceUSD      *float64 `json:"MFN Price USD"`
}

// AggregatedRecord is the display form: one brand × country × pack with
// its metrics nested per year. Country is title-cased.
type AggregatedRecord struct {
	Brand   string              `json:"Brand Name"`
	Country string              `json:"Country"`
	Pack    string              `json:"Pack"`
	Years   map[int]YearMetrics `json:"Year"`
}

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// Valid reports whether p holds a usable number (non-nil, not NaN).
func Valid(p *float64) bool {
	return p != nil && !math.IsNaN(*p)
}

// Deref returns *p or 0 when p is nil.
func Deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// CopyFloat returns an independent copy of p.
func CopyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Clone returns a copy of r that shares no pointers with it.
func (r PriceRecord) Clone() PriceRecord {
	c := r
	c.LocalPrice = CopyFloat(r.LocalPrice)
	c.ExchangeRate = CopyFloat(r.ExchangeRate)
	c.TargetCurrency = copyString(r.TargetCurrency)
	c.CostPerUnit = CopyFloat(r.CostPerUnit)
	c.CostPerStrengthUnit = CopyFloat(r.CostPerStrengthUnit)
	c.USDPricePerUnit = CopyFloat(r.USDPricePerUnit)
	c.PPPPricePerUnit = CopyFloat(r.PPPPricePerUnit)
	c.USDPrice = CopyFloat(r.USDPrice)
	c.PPPPrice = CopyFloat(r.PPPPrice)
	c.ReferencePrice = CopyFloat(r.ReferencePrice)
	c.NetCostPerUnit = CopyFloat(r.NetCostPerUnit)
	c.NetUSDPricePerUnit = CopyFloat(r.NetUSDPricePerUnit)
	c.NetPPPPricePerUnit = CopyFloat(r.NetPPPPricePerUnit)
	c.NetPPPPrice = CopyFloat(r.NetPPPPrice)
	c.NetReferencePrice = CopyFloat(r.NetReferencePrice)
	return c
}
