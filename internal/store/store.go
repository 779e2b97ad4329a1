// Package store keeps named table snapshots (the long table, the PPP table
// and the processed table) so the pipeline only rebuilds them on refresh.
//
// Writes replace the whole snapshot; the last writer wins.
package store

import (
	"context"
	"fmt"
	"regexp"

	"mfntool/internal/model"
)

// Default snapshot names.
const (
	LongTable      = "long_data_table"
	ProcessedTable = "processed_price_data"
	PPPTable       = "ppp_2020_2023"
)

// Store reads and writes named snapshots. Loading a snapshot that does not
// exist returns (nil, nil).
type Store interface {
	LoadRows(ctx context.Context, name string) ([]model.PriceRecord, error)
	SaveRows(ctx context.Context, name string, rows []model.PriceRecord) error
	LoadRates(ctx context.Context, name string) ([]model.PPPRate, error)
	SaveRates(ctx context.Context, name string, rates []model.PPPRate) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendParquet  = "parquet"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Backends lists every backend name.
var Backends = []string{BackendMemory, BackendParquet, BackendPostgres, BackendSQLite}

// Options selects and configures a backend.
type Options struct {
	Backend     string
	Dir         string // parquet
	PostgresURL string // postgres
	SQLitePath  string // sqlite
}

// Open returns the backend named by opt.Backend.
func Open(ctx context.Context, opt Options) (Store, error) {
	switch opt.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendParquet, "":
		return NewParquetStore(opt.Dir)
	case BackendPostgres:
		return NewPostgresStore(ctx, opt.PostgresURL)
	case BackendSQLite:
		return NewSQLiteStore(opt.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opt.Backend)
	}
}

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_]*$`)

// CheckName rejects snapshot names that are not lowercase identifiers.
// Names become file names and row keys.
func CheckName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("invalid snapshot name %q", name)
	}
	return nil
}
