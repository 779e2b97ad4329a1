package pipeline

import (
	"context"

	"mfntool/internal/schema"
)

// Source supplies the raw wide price table and the wide PPP table.
type Source interface {
	PriceTable(ctx context.Context) (*schema.RawTable, error)
	PPPTable(ctx context.Context) (*schema.RawTable, error)
}

// FileSource reads both tables from CSV or Excel files.
type FileSource struct {
	PricePath  string
	PriceSheet string
	PPPPath    string
	PPPSheet   string
}

func (f FileSource) PriceTable(ctx context.Context) (*schema.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return schema.ReadTable(f.PricePath, f.PriceSheet)
}

func (f FileSource) PPPTable(ctx context.Context) (*schema.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return schema.ReadTable(f.PPPPath, f.PPPSheet)
}
