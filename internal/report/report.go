// Package report renders pipeline output as aligned text, JSON or CSV.
// Money values are rounded to cents for display only.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"mfntool/internal/mfn"
	"mfntool/internal/model"
)

// Formats accepted by Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Cents formats p rounded to two decimals, or "-" when absent.
func Cents(p *float64) string {
	if !model.Valid(p) {
		return "-"
	}
	return decimal.NewFromFloat(*p).StringFixed(2)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAggregated renders aggregated records in the given format.
func WriteAggregated(w io.Writer, format string, recs []model.AggregatedRecord) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, recs)
	case FormatText, "":
		return writeAggregatedText(w, recs)
	default:
		return fmt.Errorf("unsupported format %q for aggregated output", format)
	}
}

func writeAggregatedText(w io.Writer, recs []model.AggregatedRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Brand Name\tCountry\tPack\tYear\tCost Per Unit Local\tCost Per Unit USD\tCost Per Unit PPP\tMFN Price USD\t")
	for _, a := range recs {
		years := make([]int, 0, len(a.Years))
		for y := range a.Years {
			years = append(years, y)
		}
		sort.Ints(years)
		for _, y := range years {
			m := a.Years[y]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t\n",
				a.Brand, a.Country, a.Pack, y,
				Cents(m.LocalCostPerUnit), Cents(m.USDCostPerUnit), Cents(m.PPPCostPerUnit), Cents(m.MFNPriceUSD))
		}
	}
	return tw.Flush()
}

// rowColumns is the flat CSV layout for price rows.
var rowColumns = []string{
	"brand_name", "country", "form", "year",
	"cost_per_unit", "usd_price_per_unit", "ppp_price_per_unit", "ppp_price", "mfn_price",
	"net_cost_per_unit", "net_usd_price_per_unit", "net_ppp_price_per_unit", "net_ppp_price", "net_mfn_price",
}

func rawFloat(p *float64) string {
	if !model.Valid(p) {
		return ""
	}
	return strconv.FormatFloat(*p, 'g', -1, 64)
}

// WriteRows renders flat price rows. CSV keeps full precision; text
// rounds to cents.
func WriteRows(w io.Writer, format string, rows []model.PriceRecord) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, rows)
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(rowColumns); err != nil {
			return err
		}
		for i := range rows {
			r := &rows[i]
			if err := cw.Write([]string{
				r.Brand, r.Country, r.Pack, strconv.Itoa(r.Year),
				rawFloat(r.CostPerUnit), rawFloat(r.USDPricePerUnit), rawFloat(r.PPPPricePerUnit),
				rawFloat(r.PPPPrice), rawFloat(r.ReferencePrice),
				rawFloat(r.NetCostPerUnit), rawFloat(r.NetUSDPricePerUnit), rawFloat(r.NetPPPPricePerUnit),
				rawFloat(r.NetPPPPrice), rawFloat(r.NetReferencePrice),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case FormatText, "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, strings.Join(rowColumns, "\t")+"\t")
		for i := range rows {
			r := &rows[i]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				r.Brand, r.Country, r.Pack, r.Year,
				Cents(r.CostPerUnit), Cents(r.USDPricePerUnit), Cents(r.PPPPricePerUnit),
				Cents(r.PPPPrice), Cents(r.ReferencePrice),
				Cents(r.NetCostPerUnit), Cents(r.NetUSDPricePerUnit), Cents(r.NetPPPPricePerUnit),
				Cents(r.NetPPPPrice), Cents(r.NetReferencePrice))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format %q for row output", format)
	}
}

// WriteEstimate renders an estimator result.
func WriteEstimate(w io.Writer, format string, est *mfn.Estimate) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, est)
	case FormatText, "":
	default:
		return fmt.Errorf("unsupported format %q for estimate output", format)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Market\tLocal Price\tExchange Rate\tPPP Rate\tUSD Price\tPPP Price\tNet PPP Price\t")
	for _, m := range est.Markets {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%s\t%s\t%s\t\n",
			m.Market, Cents(&m.LocalPrice), m.ExchangeRate, m.PPPRate,
			Cents(&m.USDPrice), Cents(&m.PPPPrice), Cents(m.NetPPPPrice))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nMarkets used: %s\n", strings.Join(est.MarketsUsed, ", "))
	fmt.Fprintf(w, "MFN price:     %s\n", Cents(est.MFNPrice))
	if est.NetMFNPrice != nil {
		fmt.Fprintf(w, "Net MFN price: %s\n", Cents(est.NetMFNPrice))
	}
	return nil
}
