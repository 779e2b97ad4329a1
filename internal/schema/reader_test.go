package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"mfntool/internal/model"
)

func TestParseCSVSkipsBOMAndBlankRows(t *testing.T) {
	data := "\xEF\xBB\xBFbrand_name,country\n\nAlpha,France\n,\nBeta,Italy\n"
	table, err := ParseCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if table.Header[0] != "brand_name" {
		t.Errorf("header[0] = %q, BOM not stripped", table.Header[0])
	}
	if len(table.Rows) != 2 {
		t.Errorf("expected 2 data rows, got %d", len(table.Rows))
	}
}

func TestReadTableCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.csv")
	content := `brand_name,country,form,formulation,price_id,2021-price,2021-exchange_rate,2021-target_currency,2021-cost_per_unit,2021-cost_per_strength_unit
Alpha,Germany,10 tab,oral,1,100,1.1,USD,10,1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write CSV: %v", err)
	}

	table, err := ReadTable(path, "")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if table.Name != "prices.csv" {
		t.Errorf("Name = %q", table.Name)
	}
	recs, err := Normalize(table)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(recs) != 1 || recs[0].Country != "germany" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

// writeTestXLSX creates a one-sheet workbook from rows.
func writeTestXLSX(t *testing.T, sheet string, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			t.Fatalf("rename sheet: %v", err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("set row %d: %v", i, err)
		}
	}

	path := filepath.Join(t.TempDir(), "book.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save xlsx: %v", err)
	}
	return path
}

func TestReadXLSXPPPTable(t *testing.T) {
	path := writeTestXLSX(t, "ppp", [][]interface{}{
		{"country", "2020", "2021"},
		{"Germany", 0.75, 0.78},
		{"Japan", 95.5, nil},
	})

	table, err := ReadTable(path, "")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	rates, err := ParsePPPTable(table)
	if err != nil {
		t.Fatalf("ParsePPPTable: %v", err)
	}
	if len(rates) != 4 {
		t.Fatalf("expected 4 melted rates, got %d", len(rates))
	}
	if rates[0].Country != "germany" || rates[0].Year != 2020 || !approxEqual(*rates[0].Rate, 0.75) {
		t.Errorf("rates[0] = %+v", rates[0])
	}
	if rates[3].Country != "japan" || rates[3].Year != 2021 || rates[3].Rate != nil {
		t.Errorf("empty cell should melt to nil rate, got %+v", rates[3])
	}
}

func TestReadXLSXMissingSheet(t *testing.T) {
	path := writeTestXLSX(t, "Sheet1", [][]interface{}{{"country", "2020"}})
	if _, err := ReadXLSX(path, "nope"); err == nil {
		t.Fatal("expected error for missing sheet")
	}
}

func TestParsePPPTableSchemaErrors(t *testing.T) {
	_, err := ParsePPPTable(&RawTable{Header: []string{"nation", "20", "notes"}})

	var serr *model.SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	if len(serr.MissingIdentity) != 1 {
		t.Errorf("MissingIdentity = %v", serr.MissingIdentity)
	}
	if len(serr.Unknown) != 2 {
		t.Errorf("Unknown = %v, want [nation notes]", serr.Unknown)
	}
	// "20" is numeric but not a 4-digit year; "no year columns" follows.
	if len(serr.Malformed) != 2 {
		t.Errorf("Malformed = %v", serr.Malformed)
	}
}
