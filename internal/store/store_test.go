package store

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"mfntool/internal/model"
)

func f64Ptr(f float64) *float64 { return &f }

func strPtr(s string) *string { return &s }

func sampleRows() []model.PriceRecord {
	return []model.PriceRecord{
		{
			Brand: "Alpha", Country: "germany", Pack: "10 tab", Formulation: "oral", PriceID: "p1", Year: 2021,
			LocalPrice: f64Ptr(100), ExchangeRate: f64Ptr(1.18), TargetCurrency: strPtr("USD"),
			CostPerUnit: f64Ptr(10), CostPerStrengthUnit: f64Ptr(0.5),
			USDPricePerUnit: f64Ptr(11.8), PPPPricePerUnit: f64Ptr(12.5),
			USDPrice: f64Ptr(118), PPPPrice: f64Ptr(125), ReferencePrice: f64Ptr(120),
		},
		{
			Brand: "Alpha", Country: "japan", Pack: "10 tab", Year: 2021,
			LocalPrice: f64Ptr(9000), CostPerUnit: f64Ptr(900),
		},
	}
}

func sampleRates() []model.PPPRate {
	return []model.PPPRate{
		{Country: "germany", Year: 2020, Rate: f64Ptr(0.75)},
		{Country: "japan", Year: 2020, Rate: nil},
	}
}

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	rows, err := s.LoadRows(ctx, LongTable)
	if err != nil {
		t.Fatalf("LoadRows on empty store: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected miss, got %d rows", len(rows))
	}

	if err := s.SaveRows(ctx, LongTable, sampleRows()); err != nil {
		t.Fatalf("SaveRows: %v", err)
	}
	rows, err = s.LoadRows(ctx, LongTable)
	if err != nil {
		t.Fatalf("LoadRows: %v", err)
	}
	if !reflect.DeepEqual(rows, sampleRows()) {
		t.Errorf("rows differ after round trip:\n got %+v\nwant %+v", rows, sampleRows())
	}

	// Overwrite replaces the snapshot.
	if err := s.SaveRows(ctx, LongTable, sampleRows()[:1]); err != nil {
		t.Fatalf("SaveRows overwrite: %v", err)
	}
	rows, err = s.LoadRows(ctx, LongTable)
	if err != nil {
		t.Fatalf("LoadRows after overwrite: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 row after overwrite, got %d", len(rows))
	}

	// Other names are independent.
	if other, _ := s.LoadRows(ctx, ProcessedTable); len(other) != 0 {
		t.Errorf("processed snapshot should be empty, got %d rows", len(other))
	}

	if err := s.SaveRates(ctx, PPPTable, sampleRates()); err != nil {
		t.Fatalf("SaveRates: %v", err)
	}
	rates, err := s.LoadRates(ctx, PPPTable)
	if err != nil {
		t.Fatalf("LoadRates: %v", err)
	}
	if !reflect.DeepEqual(rates, sampleRates()) {
		t.Errorf("rates differ after round trip: %+v", rates)
	}

	if err := s.SaveRows(ctx, "../escape", nil); err == nil {
		t.Error("expected invalid name error")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rows := sampleRows()
	if err := s.SaveRows(ctx, LongTable, rows); err != nil {
		t.Fatal(err)
	}
	rows[0].Brand = "Changed"
	*rows[0].LocalPrice = -1
	got, _ := s.LoadRows(ctx, LongTable)
	if got[0].Brand != "Alpha" {
		t.Error("store shares the caller's slice")
	}
	if *got[0].LocalPrice != 100 {
		t.Error("store shares the caller's price pointers")
	}

	*got[0].ReferencePrice = 0
	*got[0].TargetCurrency = "EUR"
	again, _ := s.LoadRows(ctx, LongTable)
	if *again[0].ReferencePrice != 120 || *again[0].TargetCurrency != "USD" {
		t.Error("writing through a loaded row changed the snapshot")
	}

	rates := sampleRates()
	if err := s.SaveRates(ctx, PPPTable, rates); err != nil {
		t.Fatal(err)
	}
	*rates[0].Rate = 9
	gotRates, _ := s.LoadRates(ctx, PPPTable)
	if *gotRates[0].Rate != 0.75 {
		t.Error("store shares the caller's rate pointers")
	}
}

func TestParquetStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewParquetStore(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("NewParquetStore: %v", err)
	}
	exerciseStore(t, s)

	if _, err := os.Stat(s.Path(LongTable)); err != nil {
		t.Errorf("snapshot file missing: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "cache"))
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".parquet" || e.Name()[0] == '.' {
			t.Errorf("leftover file %s", e.Name())
		}
	}
}

func TestParquetStoreCorruptFile(t *testing.T) {
	s, err := NewParquetStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(LongTable), []byte("not parquet"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadRows(context.Background(), LongTable); err == nil {
		t.Fatal("expected error reading corrupt snapshot")
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)

	var kind string
	var count int
	if err := s.db.QueryRow(`SELECT kind, row_count FROM snapshots WHERE name = ?`, PPPTable).Scan(&kind, &count); err != nil {
		t.Fatalf("query snapshots: %v", err)
	}
	if kind != "ppp_rates" || count != 2 {
		t.Errorf("snapshot metadata = (%s, %d)", kind, count)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "duckdb"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	s, err := Open(context.Background(), Options{Backend: BackendMemory})
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("Open returned %T", s)
	}
}
