package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Basket is the ordered set of markets used for basket-size counting and
// reference-price eligibility. NonReference markets (the US by default)
// stay in the output as observation rows but never count toward either.
type Basket struct {
	Markets      []string `yaml:"markets"`
	NonReference []string `yaml:"non_reference"`
}

// DefaultBasket returns the eight international reference markets plus the
// US observation market.
// Belgium borrows exchange rates during conversion but is not a reference
// market.
func DefaultBasket() Basket {
	return Basket{
		Markets: []string{
			"united kingdom",
			"france",
			"germany",
			"italy",
			"canada",
			"japan",
			"denmark",
			"switzerland",
			"united states",
		},
		NonReference: []string{"united states"},
	}
}

// IsReference reports whether rows from country count toward basket size
// and the reference price. An empty basket admits every country.
func (b Basket) IsReference(country string) bool {
	country = CanonicalCountry(country)
	for _, nr := range b.NonReference {
		if CanonicalCountry(nr) == country {
			return false
		}
	}
	if len(b.Markets) == 0 {
		return true
	}
	for _, m := range b.Markets {
		if CanonicalCountry(m) == country {
			return true
		}
	}
	return false
}

// With returns a copy of b with extra markets appended (duplicates skipped).
func (b Basket) With(markets ...string) Basket {
	out := Basket{
		Markets:      append([]string(nil), b.Markets...),
		NonReference: append([]string(nil), b.NonReference...),
	}
	for _, m := range markets {
		m = CanonicalCountry(m)
		dup := false
		for _, have := range out.Markets {
			if CanonicalCountry(have) == m {
				dup = true
				break
			}
		}
		if !dup {
			out.Markets = append(out.Markets, m)
		}
	}
	return out
}

// CanonicalCountry lowercases and trims a country name.
func CanonicalCountry(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// GTNTable maps a lowercased country to its gross-to-net discount fraction.
type GTNTable map[string]float64

// DefaultGTN returns the default per-market discount fractions.
func DefaultGTN() GTNTable {
	return GTNTable{
		"united kingdom": 0.20,
		"france":         0.25,
		"germany":        0.20,
		"italy":          0.25,
		"canada":         0.15,
		"japan":          0.10,
		"denmark":        0.20,
		"switzerland":    0.15,
		"united states":  0.45,
	}
}

// Fraction returns the discount for country; missing countries get 0.
func (g GTNTable) Fraction(country string) float64 {
	if g == nil {
		return 0
	}
	return g[CanonicalCountry(country)]
}

// Normalize returns a copy with canonical country keys.
func (g GTNTable) Normalize() GTNTable {
	out := make(GTNTable, len(g))
	for k, v := range g {
		out[CanonicalCountry(k)] = v
	}
	return out
}

// Validate rejects fractions outside [0, 1].
func (g GTNTable) Validate() error {
	countries := make([]string, 0, len(g))
	for k := range g {
		countries = append(countries, k)
	}
	sort.Strings(countries)
	for _, c := range countries {
		f := g[c]
		if f < 0 || f > 1 || math.IsNaN(f) {
			return &DataIntegrityError{
				Field:   "gtn_fraction",
				Country: c,
				Value:   f,
				Reason:  "fraction must be within [0, 1]",
			}
		}
	}
	return nil
}

// String renders the table in sorted country order.
func (g GTNTable) String() string {
	countries := make([]string, 0, len(g))
	for k := range g {
		countries = append(countries, k)
	}
	sort.Strings(countries)
	parts := make([]string, len(countries))
	for i, c := range countries {
		parts[i] = fmt.Sprintf("%s=%.2f", c, g[c])
	}
	return strings.Join(parts, ",")
}
