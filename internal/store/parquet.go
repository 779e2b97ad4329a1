package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"mfntool/internal/model"
)

// ParquetStore keeps one <name>.parquet file per snapshot in a directory.
//
// Files are written to a temporary name in the same directory and renamed
// into place, so a reader never sees a half-written snapshot.
type ParquetStore struct {
	dir string
}

// NewParquetStore creates dir if needed.
func NewParquetStore(dir string) (*ParquetStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("parquet store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &ParquetStore{dir: dir}, nil
}

// Path returns the file backing snapshot name.
func (s *ParquetStore) Path(name string) string {
	return filepath.Join(s.dir, name+".parquet")
}

func (s *ParquetStore) LoadRows(_ context.Context, name string) ([]model.PriceRecord, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	return readParquet[model.PriceRecord](s.Path(name))
}

func (s *ParquetStore) SaveRows(_ context.Context, name string, rows []model.PriceRecord) error {
	if err := CheckName(name); err != nil {
		return err
	}
	return writeParquet(s.dir, s.Path(name), rows)
}

func (s *ParquetStore) LoadRates(_ context.Context, name string) ([]model.PPPRate, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	return readParquet[model.PPPRate](s.Path(name))
}

func (s *ParquetStore) SaveRates(_ context.Context, name string, rates []model.PPPRate) error {
	if err := CheckName(name); err != nil {
		return err
	}
	return writeParquet(s.dir, s.Path(name), rates)
}

func (s *ParquetStore) Close() error { return nil }

func writeParquet[T any](dir, path string, rows []T) error {
	tmp, err := os.CreateTemp(dir, ".snapshot-*.parquet")
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := parquet.NewGenericWriter[T](tmp,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.DataPageStatistics(true),
		parquet.CreatedBy("mfntool", "1.0", ""),
	)
	if _, err := writer.Write(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close parquet file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func readParquet[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat parquet: %w", err)
	}
	pf, err := parquet.OpenFile(f, fi.Size())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	reader := parquet.NewGenericReader[T](pf)
	defer reader.Close()

	rows := make([]T, reader.NumRows())
	n := 0
	for n < len(rows) {
		k, err := reader.Read(rows[n:])
		n += k
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if k == 0 {
			break
		}
	}
	return rows[:n], nil
}
