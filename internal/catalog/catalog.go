// Package catalog is the fixed, ordered list of tracked games.
package catalog

import (
	"bgprices/internal/components/configutil"
	"bgprices/internal/pricing"
	"fmt"
	"strings"
)

// Entry is one tracked game and the identifier each site uses for it.
type Entry struct {
	Name        string
	Identifiers map[pricing.Source]string
}

// Identifier returns the identifier for a source, the empty string if the
// game is not listed on that source.
func (e Entry) Identifier(src pricing.Source) string {
	return e.Identifiers[src]
}

// Catalog is ordered, the position of a game is its row in every snapshot.
type Catalog []Entry

func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, e := range c {
		names[i] = e.Name
	}
	return names
}

// EntryConfig is the on-disk form of an Entry.
type EntryConfig struct {
	Name string            `json:"name" yaml:"name"`
	IDs  map[string]string `json:"ids" yaml:"ids"`
}

type fileConfig struct {
	Games []EntryConfig `json:"games" yaml:"games"`
}

// New validates the configured entries and keeps their order.
func New(configs []EntryConfig) (Catalog, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	seen := map[string]int{}
	out := make(Catalog, len(configs))
	for i, cfg := range configs {
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			return nil, fmt.Errorf("catalog entry %d has no name", i)
		}
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("catalog entry %d duplicates '%s' (entry %d)", i, name, prev)
		}
		seen[name] = i

		ids := make(map[pricing.Source]string, len(cfg.IDs))
		for key, id := range cfg.IDs {
			src, err := pricing.ParseSource(key)
			if err != nil {
				return nil, fmt.Errorf("catalog entry '%s': %w", name, err)
			}
			id = strings.TrimSpace(id)
			if id != "" {
				ids[src] = id
			}
		}

		out[i] = Entry{Name: name, Identifiers: ids}
	}
	return out, nil
}

// Load reads a catalog file, `.yaml`/`.yml` or `.json5`.
func Load(path string) (Catalog, error) {
	file, err := configutil.ReadConfig[fileConfig](path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return New(file.Games)
}
