package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mfntool/internal/model"
)

// PostgresSchema creates the snapshot tables. It is safe to run repeatedly.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	name        TEXT PRIMARY KEY,
	snapshot_id UUID NOT NULL,
	kind        TEXT NOT NULL,
	row_count   INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshot_price_rows (
	name                   TEXT NOT NULL,
	seq                    INTEGER NOT NULL,
	brand_name             TEXT NOT NULL,
	country                TEXT NOT NULL,
	form                   TEXT NOT NULL,
	formulation            TEXT NOT NULL DEFAULT '',
	price_id               TEXT NOT NULL DEFAULT '',
	year                   INTEGER NOT NULL,
	price                  DOUBLE PRECISION,
	exchange_rate          DOUBLE PRECISION,
	target_currency        TEXT,
	cost_per_unit          DOUBLE PRECISION,
	cost_per_strength_unit DOUBLE PRECISION,
	usd_price_per_unit     DOUBLE PRECISION,
	ppp_price_per_unit     DOUBLE PRECISION,
	usd_price              DOUBLE PRECISION,
	ppp_price              DOUBLE PRECISION,
	mfn_price              DOUBLE PRECISION,
	net_cost_per_unit      DOUBLE PRECISION,
	net_usd_price_per_unit DOUBLE PRECISION,
	net_ppp_price_per_unit DOUBLE PRECISION,
	net_ppp_price          DOUBLE PRECISION,
	net_mfn_price          DOUBLE PRECISION,
	PRIMARY KEY (name, seq)
);

CREATE TABLE IF NOT EXISTS snapshot_ppp_rates (
	name     TEXT NOT NULL,
	seq      INTEGER NOT NULL,
	country  TEXT NOT NULL,
	year     INTEGER NOT NULL,
	ppp_rate DOUBLE PRECISION,
	PRIMARY KEY (name, seq)
);
`

// priceColumns is the column order shared by COPY and SELECT.
var priceColumns = []string{
	"brand_name", "country", "form", "formulation", "price_id", "year",
	"price", "exchange_rate", "target_currency", "cost_per_unit", "cost_per_strength_unit",
	"usd_price_per_unit", "ppp_price_per_unit", "usd_price", "ppp_price", "mfn_price",
	"net_cost_per_unit", "net_usd_price_per_unit", "net_ppp_price_per_unit", "net_ppp_price", "net_mfn_price",
}

func priceValues(r *model.PriceRecord) []any {
	return []any{
		r.Brand, r.Country, r.Pack, r.Formulation, r.PriceID, r.Year,
		r.LocalPrice, r.ExchangeRate, r.TargetCurrency, r.CostPerUnit, r.CostPerStrengthUnit,
		r.USDPricePerUnit, r.PPPPricePerUnit, r.USDPrice, r.PPPPrice, r.ReferencePrice,
		r.NetCostPerUnit, r.NetUSDPricePerUnit, r.NetPPPPricePerUnit, r.NetPPPPrice, r.NetReferencePrice,
	}
}

// PostgresStore keeps snapshots in PostgreSQL. Each save replaces the
// snapshot's rows inside one transaction using COPY.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and creates the snapshot tables.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection: %w", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) LoadRows(ctx context.Context, name string) ([]model.PriceRecord, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM snapshot_price_rows WHERE name = $1 ORDER BY seq`,
		strings.Join(priceColumns, ", "))
	rows, err := s.pool.Query(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.PriceRecord])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}
	return recs, nil
}

func (s *PostgresStore) SaveRows(ctx context.Context, name string, rows []model.PriceRecord) error {
	if err := CheckName(name); err != nil {
		return err
	}
	return s.replace(ctx, name, "price_rows", len(rows), func(tx pgx.Tx) error {
		cols := append([]string{"name", "seq"}, priceColumns...)
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"snapshot_price_rows"}, cols,
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				return append([]any{name, i}, priceValues(&rows[i])...), nil
			}))
		return err
	})
}

func (s *PostgresStore) LoadRates(ctx context.Context, name string) ([]model.PPPRate, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT country, year, ppp_rate FROM snapshot_ppp_rates WHERE name = $1 ORDER BY seq`, name)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	rates, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.PPPRate])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}
	return rates, nil
}

func (s *PostgresStore) SaveRates(ctx context.Context, name string, rates []model.PPPRate) error {
	if err := CheckName(name); err != nil {
		return err
	}
	return s.replace(ctx, name, "ppp_rates", len(rates), func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"snapshot_ppp_rates"},
			[]string{"name", "seq", "country", "year", "ppp_rate"},
			pgx.CopyFromSlice(len(rates), func(i int) ([]any, error) {
				return []any{name, i, rates[i].Country, rates[i].Year, rates[i].Rate}, nil
			}))
		return err
	})
}

// replace deletes the old snapshot, runs copy and records a fresh snapshot
// id, all in one transaction.
func (s *PostgresStore) replace(ctx context.Context, name, kind string, n int, copyRows func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"snapshot_price_rows", "snapshot_ppp_rates"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE name = $1", name); err != nil {
			return fmt.Errorf("clear %s.%s: %w", table, name, err)
		}
	}
	if err := copyRows(tx); err != nil {
		return fmt.Errorf("copy %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO snapshots (name, snapshot_id, kind, row_count, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET snapshot_id = EXCLUDED.snapshot_id, kind = EXCLUDED.kind,
		    row_count = EXCLUDED.row_count, created_at = EXCLUDED.created_at`,
		name, uuid.NewString(), kind, n); err != nil {
		return fmt.Errorf("record snapshot %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
