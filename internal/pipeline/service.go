// Package pipeline wires the normalizer, converter, basket filter and
// reference-price calculator together over a snapshot store.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"mfntool/internal/aggregate"
	"mfntool/internal/convert"
	"mfntool/internal/mfn"
	"mfntool/internal/model"
	"mfntool/internal/schema"
	"mfntool/internal/store"
)

// Options configures a Service.
type Options struct {
	LongTable      string
	ProcessedTable string
	PPPTable       string

	Schema        schema.Schema
	Convert       convert.Options
	Grouping      mfn.Grouping
	MinBasketSize int
}

// DefaultOptions matches the default configuration.
func DefaultOptions() Options {
	return Options{
		LongTable:      store.LongTable,
		ProcessedTable: store.ProcessedTable,
		PPPTable:       store.PPPTable,
		Schema:         schema.DefaultSchema(),
		Convert:        convert.DefaultOptions(),
		Grouping:       mfn.Grouping{Basket: model.DefaultBasket()},
		MinBasketSize:  mfn.DefaultMinMarkets,
	}
}

// Service builds the long, PPP and processed tables, reading each from the
// store first unless a refresh is requested. A snapshot that cannot be read
// is logged and rebuilt.
type Service struct {
	store  store.Store
	source Source
	opt    Options
	log    zerolog.Logger
}

// New returns a Service.
func New(st store.Store, src Source, opt Options, log zerolog.Logger) *Service {
	return &Service{store: st, source: src, opt: opt, log: log}
}

// LongTable returns the normalized long table.
func (s *Service) LongTable(ctx context.Context, refresh bool) ([]model.PriceRecord, error) {
	if !refresh {
		if rows := s.cachedRows(ctx, s.opt.LongTable); len(rows) > 0 {
			return rows, nil
		}
	}

	t, err := s.source.PriceTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("load price table: %w", err)
	}
	rows, err := s.opt.Schema.Normalize(t)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", t.Name, err)
	}
	s.log.Info().
		Str("table", t.Name).
		Int("source_rows", len(t.Rows)).
		Int("long_rows", len(rows)).
		Msg("normalized price table")

	s.saveRows(ctx, s.opt.LongTable, rows)
	return rows, nil
}

// PPP returns the long PPP rate table.
func (s *Service) PPP(ctx context.Context, refresh bool) ([]model.PPPRate, error) {
	if !refresh {
		rates, err := s.store.LoadRates(ctx, s.opt.PPPTable)
		if err != nil {
			s.log.Warn().Err(err).Str("snapshot", s.opt.PPPTable).Msg("snapshot unreadable, rebuilding")
		} else if len(rates) > 0 {
			s.log.Debug().Str("snapshot", s.opt.PPPTable).Int("rates", len(rates)).Msg("loaded snapshot")
			return rates, nil
		}
	}

	t, err := s.source.PPPTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("load PPP table: %w", err)
	}
	rates, err := schema.ParsePPPTable(t)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", t.Name, err)
	}
	s.log.Info().Str("table", t.Name).Int("rates", len(rates)).Msg("parsed PPP table")

	if err := s.store.SaveRates(ctx, s.opt.PPPTable, rates); err != nil {
		s.log.Warn().Err(err).Str("snapshot", s.opt.PPPTable).Msg("snapshot not saved")
	}
	return rates, nil
}

// ProcessedRows returns rows with USD, PPP and reference prices for every
// (brand, year) that passes the basket filter.
func (s *Service) ProcessedRows(ctx context.Context, refresh bool) ([]model.PriceRecord, error) {
	if !refresh {
		if rows := s.cachedRows(ctx, s.opt.ProcessedTable); len(rows) > 0 {
			return rows, nil
		}
	}

	long, err := s.LongTable(ctx, refresh)
	if err != nil {
		return nil, err
	}
	ppp, err := s.PPP(ctx, refresh)
	if err != nil {
		return nil, err
	}
	rows, err := s.process(ctx, long, ppp, s.opt.Grouping)
	if err != nil {
		return nil, err
	}

	s.saveRows(ctx, s.opt.ProcessedTable, rows)
	return rows, nil
}

// GetProcessedData returns the processed rows in display form.
func (s *Service) GetProcessedData(ctx context.Context, refresh bool) ([]model.AggregatedRecord, error) {
	rows, err := s.ProcessedRows(ctx, refresh)
	if err != nil {
		return nil, err
	}
	return aggregate.Aggregate(rows), nil
}

// ProcessForBasket recomputes processed rows from the cached long and PPP
// tables with a different basket. The processed snapshot is not touched.
func (s *Service) ProcessForBasket(ctx context.Context, basket model.Basket) ([]model.PriceRecord, error) {
	long, err := s.LongTable(ctx, false)
	if err != nil {
		return nil, err
	}
	ppp, err := s.PPP(ctx, false)
	if err != nil {
		return nil, err
	}
	g := s.opt.Grouping
	g.Basket = basket
	return s.process(ctx, long, ppp, g)
}

// NetRows returns processed rows with GTN-adjusted net prices.
func (s *Service) NetRows(ctx context.Context, refresh bool, gtn model.GTNTable) ([]model.PriceRecord, error) {
	rows, err := s.ProcessedRows(ctx, refresh)
	if err != nil {
		return nil, err
	}
	out, err := mfn.ApplyGTN(rows, gtn, s.opt.Grouping)
	if err != nil {
		return nil, fmt.Errorf("apply GTN: %w", err)
	}
	s.log.Info().Int("rows", len(out)).Str("gtn", gtn.String()).Msg("applied GTN")
	return out, nil
}

func (s *Service) process(ctx context.Context, long []model.PriceRecord, ppp []model.PPPRate, g mfn.Grouping) ([]model.PriceRecord, error) {
	rows, st, err := convert.Convert(long, ppp, s.opt.Convert)
	if err != nil {
		return nil, fmt.Errorf("convert prices: %w", err)
	}
	s.log.Info().
		Int("rows_in", st.Input).
		Int("all_null", st.AllNull).
		Int("anchor_backfill", st.AnchorBackfill).
		Int("no_usd_price", st.NoUSDPrice).
		Int("no_ppp_match", st.NoPPPMatch).
		Int("duplicates", st.Duplicates).
		Int("rows_out", st.Output).
		Msg("converted prices")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := mfn.FilterBasket(rows, g.Basket, s.opt.MinBasketSize)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Int("min_markets", s.opt.MinBasketSize).
		Int("groups_kept", res.GroupsKept).
		Int("groups_dropped", res.GroupsDropped).
		Int("rows_dropped", res.RowsDropped).
		Msg("filtered baskets")

	return mfn.AssignReferencePrice(res.Rows, g), nil
}

func (s *Service) cachedRows(ctx context.Context, name string) []model.PriceRecord {
	rows, err := s.store.LoadRows(ctx, name)
	if err != nil {
		s.log.Warn().Err(err).Str("snapshot", name).Msg("snapshot unreadable, rebuilding")
		return nil
	}
	if len(rows) > 0 {
		s.log.Debug().Str("snapshot", name).Int("rows", len(rows)).Msg("loaded snapshot")
	}
	return rows
}

func (s *Service) saveRows(ctx context.Context, name string, rows []model.PriceRecord) {
	if err := s.store.SaveRows(ctx, name, rows); err != nil {
		s.log.Warn().Err(err).Str("snapshot", name).Msg("snapshot not saved")
	}
}
