package mfn

import (
	"math"
	"sort"

	"mfntool/internal/model"
)

// EstimateInput is a one-off product priced in a handful of markets. All
// three maps are keyed by market name.
type EstimateInput struct {
	MarketPrices  map[string]float64 `json:"market_prices" yaml:"market_prices"`
	ExchangeRates map[string]float64 `json:"exchange_rates" yaml:"exchange_rates"`
	PPPRates      map[string]float64 `json:"ppp_rates" yaml:"ppp_rates"`
	GTN           model.GTNTable     `json:"gtn,omitempty" yaml:"gtn"`
	ApplyGTN      bool               `json:"apply_gtn" yaml:"apply_gtn"`
}

// MarketEstimate holds the intermediate values for one usable market.
type MarketEstimate struct {
	Market       string   `json:"market"`
	LocalPrice   float64  `json:"local_price"`
	ExchangeRate float64  `json:"exchange_rate"`
	PPPRate      float64  `json:"ppp_rate"`
	USDPrice     float64  `json:"usd_price"`
	PPPPrice     float64  `json:"ppp_price"`
	GTNFraction  *float64 `json:"gtn_fraction,omitempty"`
	NetUSDPrice  *float64 `json:"net_usd_price,omitempty"`
	NetPPPPrice  *float64 `json:"net_ppp_price,omitempty"`
}

// Estimate is the estimator result. MarketsUsed may be shorter than the
// requested markets.
type Estimate struct {
	Markets     []MarketEstimate `json:"markets"`
	MarketsUsed []string         `json:"markets_used"`
	MFNPrice    *float64         `json:"mfn_price"`
	NetMFNPrice *float64         `json:"net_mfn_price,omitempty"`
}

// EstimateCustomProduct applies the currency conversion and the
// second-lowest rule to in.MarketPrices. Markets missing from any map, or
// with a non-positive exchange or PPP rate, are skipped. An invalid GTN
// table is an error only when ApplyGTN is set.
func EstimateCustomProduct(in EstimateInput) (*Estimate, error) {
	var gtn model.GTNTable
	if in.ApplyGTN {
		gtn = in.GTN.Normalize()
		if err := gtn.Validate(); err != nil {
			return nil, err
		}
	}

	markets := make([]string, 0, len(in.MarketPrices))
	for m := range in.MarketPrices {
		markets = append(markets, m)
	}
	sort.Strings(markets)

	est := &Estimate{MarketsUsed: []string{}}
	var ppp, netPPP []float64
	for _, m := range markets {
		price := in.MarketPrices[m]
		fx, okFX := in.ExchangeRates[m]
		rate, okPPP := in.PPPRates[m]
		if !okFX || !okPPP || !usableRate(fx) || !usableRate(rate) || math.IsNaN(price) {
			continue
		}

		me := MarketEstimate{
			Market:       m,
			LocalPrice:   price,
			ExchangeRate: fx,
			PPPRate:      rate,
			USDPrice:     price * fx,
			PPPPrice:     price / rate,
		}
		ppp = append(ppp, me.PPPPrice)

		if in.ApplyGTN {
			f := gtn.Fraction(m)
			me.GTNFraction = model.Float(f)
			me.NetUSDPrice = model.Float(me.USDPrice * (1 - f))
			me.NetPPPPrice = model.Float(me.PPPPrice * (1 - f))
			netPPP = append(netPPP, *me.NetPPPPrice)
		}

		est.Markets = append(est.Markets, me)
		est.MarketsUsed = append(est.MarketsUsed, m)
	}

	est.MFNPrice = SecondLowest(ppp)
	if in.ApplyGTN {
		est.NetMFNPrice = SecondLowest(netPPP)
	}
	return est, nil
}

func usableRate(r float64) bool {
	return r > 0 && !math.IsInf(r, 0)
}
