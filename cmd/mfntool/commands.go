package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"

	"mfntool/internal/aggregate"
	"mfntool/internal/config"
	"mfntool/internal/mfn"
	"mfntool/internal/model"
	"mfntool/internal/pipeline"
	"mfntool/internal/report"
	"mfntool/internal/schema"
	"mfntool/internal/store"
)

var formatFlag = &cli.StringFlag{
	Name:    "format",
	Aliases: []string{"f"},
	Value:   report.FormatText,
	Usage:   "Output format (text, json, csv where supported)",
}

var refreshFlag = &cli.BoolFlag{
	Name:  "refresh",
	Usage: "Rebuild snapshots from the source sheets",
}

// loadConfig reads the config file and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("store") {
		cfg.Store.Backend = c.String("store")
	}
	if c.IsSet("postgres-url") {
		cfg.Store.PostgresURL = c.String("postgres-url")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// openService builds the pipeline over the configured store. The returned
// func closes the store.
func openService(c *cli.Context) (*pipeline.Service, *config.Config, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := store.Open(c.Context, cfg.StoreOptions())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	log.Debug().Str("backend", cfg.Store.Backend).Msg("snapshot store ready")

	src := pipeline.FileSource{
		PricePath:  cfg.PricePath(),
		PriceSheet: cfg.PriceSheet,
		PPPPath:    cfg.PPPPath(),
		PPPSheet:   cfg.PPPSheet,
	}
	opt := pipeline.Options{
		LongTable:      cfg.Store.LongTable,
		ProcessedTable: cfg.Store.ProcessedTable,
		PPPTable:       cfg.Store.PPPTable,
		Schema:         schema.DefaultSchema(),
		Convert:        cfg.ConvertOptions(),
		Grouping:       cfg.Grouping(),
		MinBasketSize:  cfg.MinBasketSize,
	}
	svc := pipeline.New(st, src, opt, log.Logger)
	return svc, cfg, func() { st.Close() }, nil
}

func processCommand() *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "Build processed prices and print them per brand, country and pack",
		Flags: []cli.Flag{
			refreshFlag,
			formatFlag,
			&cli.StringSliceFlag{
				Name:  "add-market",
				Usage: "Extra reference market for this run (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			svc, cfg, closeStore, err := openService(c)
			if err != nil {
				return err
			}
			defer closeStore()

			var recs []model.AggregatedRecord
			if extra := c.StringSlice("add-market"); len(extra) > 0 {
				basket := cfg.Basket.With(extra...)
				log.Info().Strs("markets", basket.Markets).Msg("re-evaluating basket")
				rows, err := svc.ProcessForBasket(c.Context, basket)
				if err != nil {
					return err
				}
				recs = aggregate.Aggregate(rows)
			} else {
				recs, err = svc.GetProcessedData(c.Context, c.Bool("refresh"))
				if err != nil {
					return err
				}
			}
			if len(recs) == 0 {
				log.Warn().Msg("no brand-year passed the basket filter")
			}
			return report.WriteAggregated(os.Stdout, c.String("format"), recs)
		},
	}
}

func gtnCommand() *cli.Command {
	return &cli.Command{
		Name:  "gtn",
		Usage: "Apply gross-to-net discounts and print net reference prices",
		Flags: []cli.Flag{
			refreshFlag,
			formatFlag,
			&cli.StringSliceFlag{
				Name:  "gtn",
				Usage: "Override a market discount as country=fraction (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			svc, cfg, closeStore, err := openService(c)
			if err != nil {
				return err
			}
			defer closeStore()

			overrides, err := parseAssignments(c.StringSlice("gtn"))
			if err != nil {
				return fmt.Errorf("--gtn: %w", err)
			}
			gtn := cfg.GTN.Normalize()
			for country, f := range overrides {
				gtn[model.CanonicalCountry(country)] = f
			}

			rows, err := svc.NetRows(c.Context, c.Bool("refresh"), gtn)
			if err != nil {
				return err
			}
			return report.WriteRows(os.Stdout, c.String("format"), rows)
		},
	}
}

func estimateCommand() *cli.Command {
	return &cli.Command{
		Name:  "estimate",
		Usage: "Estimate the MFN price of a product from a few market prices",
		Flags: []cli.Flag{
			formatFlag,
			&cli.StringFlag{
				Name:  "input",
				Usage: "YAML or JSON file with market_prices, exchange_rates, ppp_rates",
			},
			&cli.StringSliceFlag{Name: "price", Usage: "market=local price (repeatable)"},
			&cli.StringSliceFlag{Name: "fx", Usage: "market=exchange rate to USD (repeatable)"},
			&cli.StringSliceFlag{Name: "ppp", Usage: "market=PPP rate (repeatable)"},
			&cli.BoolFlag{Name: "apply-gtn", Usage: "Also compute net prices with the configured GTN table"},
		},
		Action: func(c *cli.Context) error {
			in, err := estimateInput(c)
			if err != nil {
				return err
			}
			if c.Bool("apply-gtn") {
				in.ApplyGTN = true
			}
			if in.ApplyGTN && in.GTN == nil {
				cfg, err := loadConfig(c)
				if err != nil {
					return err
				}
				in.GTN = cfg.GTN
			}

			est, err := mfn.EstimateCustomProduct(in)
			if err != nil {
				return err
			}
			if skipped := len(in.MarketPrices) - len(est.MarketsUsed); skipped > 0 {
				log.Info().Int("skipped", skipped).Msg("markets without usable rates were left out")
			}
			return report.WriteEstimate(os.Stdout, c.String("format"), est)
		},
	}
}

func estimateInput(c *cli.Context) (mfn.EstimateInput, error) {
	var in mfn.EstimateInput
	if path := c.String("input"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return in, fmt.Errorf("read estimate input: %w", err)
		}
		if err := yaml.Unmarshal(data, &in); err != nil {
			return in, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	for _, f := range []struct {
		flag string
		dst  *map[string]float64
	}{
		{"price", &in.MarketPrices},
		{"fx", &in.ExchangeRates},
		{"ppp", &in.PPPRates},
	} {
		kv, err := parseAssignments(c.StringSlice(f.flag))
		if err != nil {
			return in, fmt.Errorf("--%s: %w", f.flag, err)
		}
		if *f.dst == nil {
			*f.dst = make(map[string]float64)
		}
		for k, v := range kv {
			(*f.dst)[k] = v
		}
	}
	if len(in.MarketPrices) == 0 {
		return in, fmt.Errorf("no market prices given; use --input or --price")
	}
	return in, nil
}

func unrollCommand() *cli.Command {
	return &cli.Command{
		Name:  "unroll",
		Usage: "Flatten aggregated JSON (from process --format json) back to rows",
		Flags: []cli.Flag{
			formatFlag,
			&cli.StringFlag{Name: "input", Usage: "Aggregated JSON file", Required: true},
		},
		Action: func(c *cli.Context) error {
			data, err := os.ReadFile(c.String("input"))
			if err != nil {
				return fmt.Errorf("read aggregated input: %w", err)
			}
			var recs []model.AggregatedRecord
			if err := json.Unmarshal(data, &recs); err != nil {
				return fmt.Errorf("parse aggregated input: %w", err)
			}
			return report.WriteRows(os.Stdout, c.String("format"), aggregate.Unroll(recs))
		},
	}
}

// parseAssignments turns ["germany=1.1", ...] into a map.
func parseAssignments(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%q is not key=value", p)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out[k] = f
	}
	return out, nil
}
