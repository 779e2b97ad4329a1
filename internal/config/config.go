// Package config loads mfntool settings from YAML on top of built-in
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"mfntool/internal/convert"
	"mfntool/internal/mfn"
	"mfntool/internal/model"
	"mfntool/internal/store"
)

// Config is the full tool configuration. Zero-valued fields in a YAML file
// keep their defaults.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	PriceFile  string `yaml:"price_file"`
	PriceSheet string `yaml:"price_sheet"`
	PPPFile    string `yaml:"ppp_file"`
	PPPSheet   string `yaml:"ppp_sheet"`

	Store StoreConfig `yaml:"store"`

	MinBasketSize int               `yaml:"min_basket_size"`
	GroupByPack   bool              `yaml:"group_by_pack"`
	Basket        model.Basket      `yaml:"basket"`
	Fallbacks     map[string]string `yaml:"exchange_rate_fallbacks"`
	GTN           model.GTNTable    `yaml:"gtn"`
	DedupKey      []string          `yaml:"dedup_key"`
}

// StoreConfig picks the snapshot backend and the snapshot names.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	Dir         string `yaml:"dir"`
	PostgresURL string `yaml:"postgres_url"`
	SQLitePath  string `yaml:"sqlite_path"`

	LongTable      string `yaml:"long_table"`
	ProcessedTable string `yaml:"processed_table"`
	PPPTable       string `yaml:"ppp_table"`
}

// Default returns the built-in configuration.
func Default() *Config {
	opt := convert.DefaultOptions()
	return &Config{
		DataDir:    "data",
		PriceFile:  "prices.xlsx",
		PPPFile:    "ppp.xlsx",
		Store: StoreConfig{
			Backend:        store.BackendParquet,
			Dir:            "data/cache",
			SQLitePath:     "data/snapshots.db",
			LongTable:      store.LongTable,
			ProcessedTable: store.ProcessedTable,
			PPPTable:       store.PPPTable,
		},
		MinBasketSize: mfn.DefaultMinMarkets,
		Basket:        model.DefaultBasket(),
		Fallbacks:     opt.Fallbacks,
		GTN:           model.DefaultGTN(),
		DedupKey:      opt.DedupKey,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// GTN entries from the file are layered over the defaults by country.
	// A fallbacks map in the file replaces the defaults; an empty one
	// disables fallbacks.
	gtn, fallbacks := cfg.GTN, cfg.Fallbacks
	cfg.GTN, cfg.Fallbacks = nil, nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	for country, f := range cfg.GTN {
		gtn[model.CanonicalCountry(country)] = f
	}
	cfg.GTN = gtn
	if cfg.Fallbacks == nil {
		cfg.Fallbacks = fallbacks
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep in the pipeline.
func (c *Config) Validate() error {
	if c.MinBasketSize < 1 {
		return fmt.Errorf("min_basket_size must be at least 1, got %d", c.MinBasketSize)
	}
	if err := c.GTN.Validate(); err != nil {
		return fmt.Errorf("gtn: %w", err)
	}
	if _, err := convert.KeyFunc(c.DedupKey); err != nil {
		return fmt.Errorf("dedup_key: %w", err)
	}

	known := false
	for _, b := range store.Backends {
		if c.Store.Backend == b {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("store.backend %q is not one of %v", c.Store.Backend, store.Backends)
	}
	if c.Store.Backend == store.BackendPostgres && c.Store.PostgresURL == "" {
		return fmt.Errorf("store.postgres_url is required for the postgres backend")
	}
	for _, name := range []string{c.Store.LongTable, c.Store.ProcessedTable, c.Store.PPPTable} {
		if err := store.CheckName(name); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	return nil
}

// PricePath returns the price sheet path, resolved against DataDir.
func (c *Config) PricePath() string { return c.resolve(c.PriceFile) }

// PPPPath returns the PPP sheet path, resolved against DataDir.
func (c *Config) PPPPath() string { return c.resolve(c.PPPFile) }

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// StoreOptions converts the store section for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:     c.Store.Backend,
		Dir:         c.Store.Dir,
		PostgresURL: c.Store.PostgresURL,
		SQLitePath:  c.Store.SQLitePath,
	}
}

// ConvertOptions returns the converter settings.
func (c *Config) ConvertOptions() convert.Options {
	return convert.Options{Fallbacks: c.Fallbacks, DedupKey: c.DedupKey}
}

// Grouping returns the reference-price grouping.
func (c *Config) Grouping() mfn.Grouping {
	return mfn.Grouping{Basket: c.Basket, ByPack: c.GroupByPack}
}
