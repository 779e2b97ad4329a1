package schema

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadTable loads a price or PPP sheet from disk. .xlsx/.xlsm files are read
// with excelize (sheet defaults to the first one); anything else is CSV.
func ReadTable(path, sheet string) (*RawTable, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, sheet)
	default:
		return ReadCSV(path)
	}
}

// ReadCSV reads a whole CSV sheet. The first non-empty row is the header.
func ReadCSV(path string) (*RawTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	t, err := ParseCSV(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	t.Name = filepath.Base(path)
	return t, nil
}

// ParseCSV reads CSV data from r.
func ParseCSV(r io.Reader) (*RawTable, error) {
	bufReader := bufio.NewReaderSize(r, 256*1024)

	// Skip UTF-8 BOM if present
	bom, err := bufReader.Peek(3)
	if err == nil && len(bom) >= 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		bufReader.Discard(3)
	}

	reader := csv.NewReader(bufReader)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	t := &RawTable{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if t.Header == nil {
			if isEmptyRow(row) {
				continue
			}
			t.Header = row
			continue
		}
		if isEmptyRow(row) {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if t.Header == nil {
		return nil, fmt.Errorf("no header row")
	}
	return t, nil
}

// ReadXLSX reads one worksheet of an Excel workbook. Cell values are read
// raw so number formats (thousands separators, currency) do not leak in.
func ReadXLSX(path, sheet string) (*RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s: workbook has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: open sheet %q: %w", path, sheet, err)
	}
	defer rows.Close()

	t := &RawTable{Name: filepath.Base(path) + ":" + sheet}
	for rows.Next() {
		row, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("%s: read row: %w", path, err)
		}
		if isEmptyRow(row) {
			continue
		}
		if t.Header == nil {
			t.Header = row
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("%s: iterate rows: %w", path, err)
	}
	if t.Header == nil {
		return nil, fmt.Errorf("%s: sheet %q has no header row", path, sheet)
	}
	return t, nil
}
