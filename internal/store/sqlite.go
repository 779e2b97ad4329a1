package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"mfntool/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	name        TEXT PRIMARY KEY,
	snapshot_id TEXT NOT NULL,
	kind        TEXT NOT NULL,
	row_count   INTEGER NOT NULL,
	created_at  TEXT NOT NULL
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
	price                  REAL,
	exchange_rate          REAL,
	target_currency        TEXT,
	cost_per_unit          REAL,
	cost_per_strength_unit REAL,
	usd_price_per_unit     REAL,
	ppp_price_per_unit     REAL,
	usd_price              REAL,
	ppp_price              REAL,
	mfn_price              REAL,
	net_cost_per_unit      REAL,
	net_usd_price_per_unit REAL,
	net_ppp_price_per_unit REAL,
	net_ppp_price          REAL,
	net_mfn_price          REAL,
	PRIMARY KEY (name, seq)
);

CREATE TABLE IF NOT EXISTS snapshot_ppp_rates (
	name     TEXT NOT NULL,
	seq      INTEGER NOT NULL,
	country  TEXT NOT NULL,
	year     INTEGER NOT NULL,
	ppp_rate REAL,
	PRIMARY KEY (name, seq)
);
`

// SQLiteStore keeps snapshots in a single SQLite file.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqlitePriceRow struct {
	Name string `db:"name"`
	Seq  int    `db:"seq"`
	model.PriceRecord
}

type sqliteRateRow struct {
	Name string `db:"name"`
	Seq  int    `db:"seq"`
	model.PPPRate
}

func namedInsert(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)",
		table, strings.Join(cols, ", "), strings.Join(cols, ", :"))
}

func (s *SQLiteStore) LoadRows(ctx context.Context, name string) ([]model.PriceRecord, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	var recs []model.PriceRecord
	query := fmt.Sprintf(`SELECT %s FROM snapshot_price_rows WHERE name = ? ORDER BY seq`,
		strings.Join(priceColumns, ", "))
	if err := s.db.SelectContext(ctx, &recs, query, name); err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	return recs, nil
}

func (s *SQLiteStore) SaveRows(ctx context.Context, name string, rows []model.PriceRecord) error {
	if err := CheckName(name); err != nil {
		return err
	}
	insert := namedInsert("snapshot_price_rows", append([]string{"name", "seq"}, priceColumns...))
	return s.replace(ctx, name, "price_rows", len(rows), func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, insert)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range rows {
			if _, err := stmt.ExecContext(ctx, sqlitePriceRow{Name: name, Seq: i, PriceRecord: rows[i]}); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) LoadRates(ctx context.Context, name string) ([]model.PPPRate, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	var rates []model.PPPRate
	if err := s.db.SelectContext(ctx, &rates,
		`SELECT country, year, ppp_rate FROM snapshot_ppp_rates WHERE name = ? ORDER BY seq`, name); err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	return rates, nil
}

func (s *SQLiteStore) SaveRates(ctx context.Context, name string, rates []model.PPPRate) error {
	if err := CheckName(name); err != nil {
		return err
	}
	insert := namedInsert("snapshot_ppp_rates", []string{"name", "seq", "country", "year", "ppp_rate"})
	return s.replace(ctx, name, "ppp_rates", len(rates), func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, insert)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range rates {
			if _, err := stmt.ExecContext(ctx, sqliteRateRow{Name: name, Seq: i, PPPRate: rates[i]}); err != nil {
				return fmt.Errorf("rate %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) replace(ctx context.Context, name, kind string, n int, insert func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"snapshot_price_rows", "snapshot_ppp_rates"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE name = ?", name); err != nil {
			return fmt.Errorf("clear %s.%s: %w", table, name, err)
		}
	}
	if err := insert(tx); err != nil {
		return fmt.Errorf("insert %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (name, snapshot_id, kind, row_count, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			snapshot_id = excluded.snapshot_id, kind = excluded.kind,
			row_count = excluded.row_count, created_at = excluded.created_at`,
		name, uuid.NewString(), kind, n, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("record snapshot %s: %w", name, err)
	}
	return tx.Commit()
}
