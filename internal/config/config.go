// Package config reads config.json5 and assembles the components of a run
// out of it.
package config

import (
	"bgprices/internal/annotate"
	"bgprices/internal/catalog"
	"bgprices/internal/components/chrono"
	"bgprices/internal/components/configutil"
	"bgprices/internal/components/telemetry"
	"bgprices/internal/extract"
	"bgprices/internal/fetch"
	"bgprices/internal/pricing"
	"bgprices/internal/report"
	"bgprices/internal/snapshot"
	"bgprices/internal/store"
	"bgprices/internal/store/sqlitestore"
	"bgprices/internal/store/xlsxstore"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// EnvStore overrides store.path.
const EnvStore = "BGPRICES_STORE"

const (
	StoreXlsx   = "xlsx"
	StoreSqlite = "sqlite"
)

type StoreConfig struct {
	// Kind is xlsx or sqlite, it is guessed from the path when empty.
	Kind string `json:"kind"`
	Path string `json:"path"`
}

type ThresholdConfig struct {
	// Mode is percentage or absolute.
	Mode string `json:"mode"`
	// Value is a pointer so that 0 (flag every change) is not taken as unset.
	Value *float64 `json:"value"`
}

type SourceConfig struct {
	BaseURL string `json:"base_url"`
	// Fee is added to the price when the page does not list one.
	Fee      *float64 `json:"fee"`
	Disabled bool     `json:"disabled"`
}

type FetchConfig struct {
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	UserAgent         string  `json:"user_agent"`
	BypassCloudflare  bool    `json:"bypass_cloudflare"`
	DumpDir           string  `json:"dump_dir"`
}

type Config struct {
	Store     StoreConfig             `json:"store"`
	Threshold ThresholdConfig         `json:"threshold"`
	Sources   map[string]SourceConfig `json:"sources"`
	Fetch     FetchConfig             `json:"fetch"`
	Workers   int                     `json:"workers"`
	// Catalog is used when CatalogFile is empty.
	Catalog     []catalog.EntryConfig `json:"catalog"`
	CatalogFile string                `json:"catalog_file"`
	Log         telemetry.LogConfig   `json:"log"`
	Notify      report.SmtpConfig     `json:"notify"`
	// Schedule is a cron expression used by the schedule command.
	Schedule string `json:"schedule"`
	Timezone string `json:"timezone"`

	// dir is where the config file was read from, relative paths are
	// resolved against it.
	dir string
}

var defaultSources = map[pricing.Source]SourceConfig{
	pricing.SourceBoardGamePrices: {
		BaseURL: "https://boardgameprices.co.uk/item/show/",
		Fee:     Float(2.99),
	},
	pricing.SourceZatu: {
		BaseURL: "https://www.board-game.co.uk/product/",
	},
}

func Float(v float64) *float64 {
	return &v
}

func Default() Config {
	return Config{
		Store:     StoreConfig{Path: "prices.xlsx"},
		Threshold: ThresholdConfig{Mode: annotate.ModePercentage.String(), Value: Float(10)},
		Fetch:     FetchConfig{TimeoutSeconds: 30, RequestsPerSecond: 1},
		Workers:   1,
		Schedule:  "0 9 1 * *",
		Timezone:  "Europe/London",
	}
}

// Load reads the config file (and its .local override) on top of Default,
// a .env file next to it is loaded first if there is one.
func Load(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return finish(cfg, filepath.Dir(path))
}

// LoadRecursively is Load for a config file named `name` in the working
// directory or the closest of its parents.
func LoadRecursively(name string) (Config, error) {
	cfg, path, err := configutil.ReadRecursively[Config](name)
	if err != nil {
		return Config{}, fmt.Errorf("find config %s: %w", name, err)
	}
	return finish(cfg, filepath.Dir(path))
}

func finish(cfg Config, dir string) (Config, error) {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	err = mergo.Merge(&cfg, Default(), mergo.WithoutDereference)
	if err != nil {
		return Config{}, fmt.Errorf("apply defaults: %w", err)
	}
	cfg.dir = dir

	if env := os.Getenv(EnvStore); env != "" {
		cfg.Store.Path = env
		cfg.Store.Kind = ""
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required (or set %s)", EnvStore)
	}
	_, err := c.StoreKind()
	if err != nil {
		return err
	}
	_, err = annotate.ParseMode(c.Threshold.Mode)
	if err != nil {
		return err
	}
	if c.Threshold.Value != nil && *c.Threshold.Value < 0 {
		return fmt.Errorf("threshold.value must not be negative")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	for key := range c.Sources {
		_, err := pricing.ParseSource(key)
		if err != nil {
			return fmt.Errorf("sources: %w", err)
		}
	}
	if len(c.Catalog) == 0 && c.CatalogFile == "" {
		return fmt.Errorf("either catalog or catalog_file must be set")
	}
	return nil
}

func (c Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || strings.Contains(path, "://") || path == ":memory:" {
		return path
	}
	return filepath.Join(c.dir, path)
}

// StoreKind is the configured kind or the one implied by the path.
func (c Config) StoreKind() (string, error) {
	switch strings.ToLower(c.Store.Kind) {
	case StoreXlsx:
		return StoreXlsx, nil
	case StoreSqlite:
		return StoreSqlite, nil
	case "":
	default:
		return "", fmt.Errorf("unknown store kind '%s'", c.Store.Kind)
	}

	switch strings.ToLower(filepath.Ext(c.Store.Path)) {
	case ".xlsx", ".xlsm":
		return StoreXlsx, nil
	case ".db", ".sqlite", ".sqlite3":
		return StoreSqlite, nil
	}
	if strings.Contains(c.Store.Path, "://") || c.Store.Path == ":memory:" {
		return StoreSqlite, nil
	}
	return "", fmt.Errorf("cannot tell the store kind of '%s', set store.kind", c.Store.Path)
}

func (c Config) OpenStore(tel telemetry.API) (store.Store, error) {
	kind, err := c.StoreKind()
	if err != nil {
		return nil, err
	}
	path := c.resolve(c.Store.Path)
	tel = telemetry.NewScopedAPI("store", tel)

	if kind == StoreSqlite {
		s, err := sqlitestore.Open(path, tel)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return xlsxstore.New(path, tel), nil
}

func (c Config) LoadCatalog() (catalog.Catalog, error) {
	if c.CatalogFile != "" {
		return catalog.Load(c.resolve(c.CatalogFile))
	}
	return catalog.New(c.Catalog)
}

func (c Config) Annotator() (annotate.Annotator, error) {
	mode, err := annotate.ParseMode(c.Threshold.Mode)
	if err != nil {
		return annotate.Annotator{}, err
	}
	if c.Threshold.Value == nil {
		return annotate.Annotator{}, fmt.Errorf("threshold.value is not set")
	}
	return annotate.NewAnnotator(mode, decimal.NewFromFloat(*c.Threshold.Value))
}

func (c Config) FetchOptions() fetch.Options {
	return fetch.Options{
		Timeout:           time.Duration(c.Fetch.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.Fetch.RequestsPerSecond,
		UserAgent:         c.Fetch.UserAgent,
		BypassCloudflare:  c.Fetch.BypassCloudflare,
		DumpDir:           c.resolve(c.Fetch.DumpDir),
	}
}

// source is the configured source with the unset fields taken from
// defaultSources.
func (c Config) source(src pricing.Source) SourceConfig {
	out := c.Sources[string(src)]
	_ = mergo.Merge(&out, defaultSources[src], mergo.WithoutDereference)
	return out
}

func (s SourceConfig) fee() decimal.Decimal {
	if s.Fee == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*s.Fee)
}

// BuilderSources returns the enabled sources in column order.
func (c Config) BuilderSources(tel telemetry.API) []snapshot.Source {
	tel = telemetry.NewScopedAPI("extract", tel)

	var out []snapshot.Source
	for _, src := range pricing.Sources {
		cfg := c.source(src)
		if cfg.Disabled {
			continue
		}

		var extractor extract.Extractor
		switch src {
		case pricing.SourceBoardGamePrices:
			extractor = extract.NewBoardGamePrices(cfg.fee(), tel)
		case pricing.SourceZatu:
			extractor = extract.NewZatu(tel)
		default:
			continue
		}
		out = append(out, snapshot.Source{Extractor: extractor, BaseURL: cfg.BaseURL})
	}
	return out
}

func (c Config) Clock() (chrono.API, error) {
	return chrono.NewStandardImpl(c.Timezone)
}

// Builder assembles the fetch client, the extractors and the annotator.
func (c Config) Builder(clock chrono.API, tel telemetry.API) (snapshot.Builder, error) {
	annotator, err := c.Annotator()
	if err != nil {
		return snapshot.Builder{}, err
	}
	client, err := fetch.NewClient(c.FetchOptions(), tel)
	if err != nil {
		return snapshot.Builder{}, err
	}
	sources := c.BuilderSources(tel)
	if len(sources) == 0 {
		return snapshot.Builder{}, fmt.Errorf("every source is disabled")
	}

	return snapshot.NewBuilder(
		client,
		annotator,
		sources,
		clock,
		telemetry.NewScopedAPI("builder", tel),
		snapshot.WithWorkers(c.Workers),
	), nil
}
