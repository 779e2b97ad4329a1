package store

import (
	"context"
	"sync"

	"mfntool/internal/model"
)

// MemoryStore keeps snapshots in process memory. Rows are deep-copied on
// the way in and out.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[string][]model.PriceRecord
	rates map[string][]model.PPPRate
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:  make(map[string][]model.PriceRecord),
		rates: make(map[string][]model.PPPRate),
	}
}

func (s *MemoryStore) LoadRows(_ context.Context, name string) ([]model.PriceRecord, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.rows[name]
	if !ok {
		return nil, nil
	}
	return cloneRows(rows), nil
}

func (s *MemoryStore) SaveRows(_ context.Context, name string, rows []model.PriceRecord) error {
	if err := CheckName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[name] = cloneRows(rows)
	return nil
}

func (s *MemoryStore) LoadRates(_ context.Context, name string) ([]model.PPPRate, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rates, ok := s.rates[name]
	if !ok {
		return nil, nil
	}
	return cloneRates(rates), nil
}

func (s *MemoryStore) SaveRates(_ context.Context, name string, rates []model.PPPRate) error {
	if err := CheckName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[name] = cloneRates(rates)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneRows(rows []model.PriceRecord) []model.PriceRecord {
	out := make([]model.PriceRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].Clone()
	}
	return out
}

func cloneRates(rates []model.PPPRate) []model.PPPRate {
	out := make([]model.PPPRate, len(rates))
	for i, r := range rates {
		r.Rate = model.CopyFloat(r.Rate)
		out[i] = r
	}
	return out
}
