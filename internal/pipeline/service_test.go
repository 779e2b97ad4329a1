package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"mfntool/internal/model"
	"mfntool/internal/schema"
	"mfntool/internal/store"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

var priceHeader = []string{
	"brand_name", "country", "form", "formulation", "price_id",
	"2021-price", "2021-exchange_rate", "2021-target_currency", "2021-cost_per_unit", "2021-cost_per_strength_unit",
}

// memSource serves fixed tables and counts reads.
type memSource struct {
	price, ppp *schema.RawTable
	reads      int
}

func (m *memSource) PriceTable(context.Context) (*schema.RawTable, error) {
	m.reads++
	return m.price, nil
}

func (m *memSource) PPPTable(context.Context) (*schema.RawTable, error) {
	m.reads++
	return m.ppp, nil
}

func newSource() *memSource {
	return &memSource{
		price: &schema.RawTable{
			Name:   "prices.csv",
			Header: priceHeader,
			Rows: [][]string{
				{"Alpha", "United Kingdom", "10 tab", "oral", "1", "100", "5", "GBP", "10", ""},
				{"Alpha", "France", "10 tab", "oral", "2", "100", "", "EUR", "10", ""},
				{"Alpha", "Germany", "10 tab", "oral", "3", "100", "1.2", "EUR", "10", ""},
				{"Alpha", "Italy", "10 tab", "oral", "4", "80", "1.2", "EUR", "8", ""},
				{"Alpha", "Canada", "10 tab", "oral", "5", "150", "0.75", "CAD", "15", ""},
				{"Alpha", "Japan", "10 tab", "oral", "6", "20000", "0.009", "JPY", "2000", ""},
				{"Alpha", "United States", "10 tab", "oral", "7", "500", "1", "USD", "50", ""},
				{"Beta", "Germany", "1 vial", "iv", "8", "900", "1.2", "EUR", "900", ""},
				{"Beta", "France", "1 vial", "iv", "9", "950", "", "EUR", "950", ""},
				{"Beta", "Italy", "1 vial", "iv", "10", "870", "1.2", "EUR", "870", ""},
			},
		},
		ppp: &schema.RawTable{
			Name:   "ppp.csv",
			Header: []string{"country", "2021"},
			Rows: [][]string{
				{"United Kingdom", "0.5"},
				{"France", "0.8"},
				{"Germany", "0.8"},
				{"Italy", "0.8"},
				{"Canada", "1.0"},
				{"Japan", "100"},
				{"United States", "1.0"},
			},
		},
	}
}

func newService(st store.Store, src Source) *Service {
	return New(st, src, DefaultOptions(), zerolog.Nop())
}

func TestProcessedRows(t *testing.T) {
	svc := newService(store.NewMemoryStore(), newSource())
	rows, err := svc.ProcessedRows(context.Background(), false)
	if err != nil {
		t.Fatalf("ProcessedRows: %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("expected 7 Alpha rows (Beta has 3 markets), got %d", len(rows))
	}

	byCountry := make(map[string]model.PriceRecord)
	for _, r := range rows {
		if r.Brand != "Alpha" {
			t.Errorf("unexpected brand %s", r.Brand)
		}
		byCountry[r.Country] = r
		// Reference PPP prices: 200, 125, 125, 100, 150, 200.
		if r.ReferencePrice == nil || !approxEqual(*r.ReferencePrice, 125) {
			t.Errorf("%s mfn_price = %v, want 125", r.Country, r.ReferencePrice)
		}
	}

	uk := byCountry["united kingdom"]
	if *uk.ExchangeRate != 1.0 || !approxEqual(*uk.USDPricePerUnit, 10) {
		t.Errorf("uk GBP override not applied: %+v", uk)
	}
	fr := byCountry["france"]
	if fr.ExchangeRate == nil || *fr.ExchangeRate != 1.2 || !approxEqual(*fr.PPPPrice, 125) {
		t.Errorf("france anchor fallback not applied: %+v", fr)
	}
	if jp := byCountry["japan"]; !approxEqual(*jp.PPPPricePerUnit, 20) || !approxEqual(*jp.USDPrice, 180) {
		t.Errorf("japan = %+v", jp)
	}
}

func TestSnapshotsAvoidRebuild(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	src := newSource()
	svc := newService(st, src)

	if _, err := svc.ProcessedRows(ctx, false); err != nil {
		t.Fatal(err)
	}
	if src.reads != 2 {
		t.Fatalf("first build read the source %d times, want 2", src.reads)
	}

	for _, name := range []string{store.LongTable, store.ProcessedTable} {
		if rows, _ := st.LoadRows(ctx, name); len(rows) == 0 {
			t.Errorf("snapshot %s not saved", name)
		}
	}
	if rates, _ := st.LoadRates(ctx, store.PPPTable); len(rates) != 7 {
		t.Errorf("PPP snapshot has %d rates, want 7", len(rates))
	}

	agg, err := svc.GetProcessedData(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if src.reads != 2 {
		t.Errorf("cached read hit the source (%d reads)", src.reads)
	}
	if len(agg) != 7 || agg[0].Country == "" || agg[0].Country[0] < 'A' || agg[0].Country[0] > 'Z' {
		t.Errorf("unexpected aggregate: %+v", agg)
	}

	if _, err := svc.ProcessedRows(ctx, true); err != nil {
		t.Fatal(err)
	}
	if src.reads != 4 {
		t.Errorf("refresh read the source %d times in total, want 4", src.reads)
	}
}

// failingStore fails every load, as a corrupt snapshot would.
type failingStore struct {
	*store.MemoryStore
}

func (failingStore) LoadRows(context.Context, string) ([]model.PriceRecord, error) {
	return nil, errors.New("corrupt snapshot")
}

func (failingStore) LoadRates(context.Context, string) ([]model.PPPRate, error) {
	return nil, errors.New("corrupt snapshot")
}

func TestUnreadableSnapshotRebuilds(t *testing.T) {
	src := newSource()
	svc := newService(failingStore{store.NewMemoryStore()}, src)
	rows, err := svc.ProcessedRows(context.Background(), false)
	if err != nil {
		t.Fatalf("ProcessedRows: %v", err)
	}
	if len(rows) != 7 || src.reads != 2 {
		t.Errorf("rows = %d, reads = %d", len(rows), src.reads)
	}
}

func TestProcessForBasket(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc := newService(st, newSource())

	if _, err := svc.ProcessedRows(ctx, false); err != nil {
		t.Fatal(err)
	}

	narrow := model.Basket{
		Markets:      []string{"united kingdom", "france", "germany", "italy", "united states"},
		NonReference: []string{"united states"},
	}
	rows, err := svc.ProcessForBasket(ctx, narrow)
	if err != nil {
		t.Fatalf("ProcessForBasket: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("4-market basket should drop every group, kept %d rows", len(rows))
	}

	wide, err := svc.ProcessForBasket(ctx, model.Basket{})
	if err != nil {
		t.Fatalf("ProcessForBasket: %v", err)
	}
	// Every country counts: PPP prices 200, 125, 125, 100, 150, 200, 500.
	if len(wide) != 7 || !approxEqual(*wide[0].ReferencePrice, 125) {
		t.Errorf("empty basket result: %d rows", len(wide))
	}

	processed, _ := st.LoadRows(ctx, store.ProcessedTable)
	if len(processed) != 7 {
		t.Errorf("processed snapshot changed: %d rows", len(processed))
	}
}

func TestNetRowsZeroGTN(t *testing.T) {
	svc := newService(store.NewMemoryStore(), newSource())
	rows, err := svc.NetRows(context.Background(), false, model.GTNTable{})
	if err != nil {
		t.Fatalf("NetRows: %v", err)
	}
	for _, r := range rows {
		if !approxEqual(*r.NetReferencePrice, *r.ReferencePrice) {
			t.Errorf("%s: net %v != gross %v", r.Country, *r.NetReferencePrice, *r.ReferencePrice)
		}
	}
}

func TestSchemaErrorPropagates(t *testing.T) {
	src := newSource()
	src.price.Header = []string{"brand_name", "country", "form", "2021-price", "2021-colour"}
	svc := newService(store.NewMemoryStore(), src)

	_, err := svc.GetProcessedData(context.Background(), true)
	var serr *model.SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	if len(serr.InvalidMetrics) != 1 || len(serr.MissingMetrics[2021]) != 4 {
		t.Errorf("schema error detail: %+v", serr)
	}
}

func TestDataIntegrityErrorPropagates(t *testing.T) {
	src := newSource()
	src.ppp.Rows[2] = []string{"Germany", "0"}
	svc := newService(store.NewMemoryStore(), src)

	_, err := svc.ProcessedRows(context.Background(), true)
	var die *model.DataIntegrityError
	if !errors.As(err, &die) || die.Field != "ppp_rate" {
		t.Fatalf("expected ppp_rate DataIntegrityError, got %v", err)
	}
}
