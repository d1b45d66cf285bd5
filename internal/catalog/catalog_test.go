package catalog

import (
	"bgprices/internal/pricing"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewKeepsOrder(t *testing.T) {
	cat, err := New([]EntryConfig{
		{Name: "Wingspan", IDs: map[string]string{"boardgameprices": "1000-wingspan", "zatu": "wingspan"}},
		{Name: " Azul ", IDs: map[string]string{"boardgameprices": "2000-azul"}},
		{Name: "Catan", IDs: map[string]string{"zatu": "catan", "boardgameprices": "  "}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Wingspan", "Azul", "Catan"}, cat.Names())
	require.Equal(t, "wingspan", cat[0].Identifier(pricing.SourceZatu))
	require.Equal(t, "", cat[1].Identifier(pricing.SourceZatu))
	require.Equal(t, "", cat[2].Identifier(pricing.SourceBoardGamePrices))
}

func TestNewRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		entries []EntryConfig
	}{
		{name: "empty", entries: nil},
		{name: "no name", entries: []EntryConfig{{Name: ""}}},
		{name: "duplicate", entries: []EntryConfig{{Name: "Azul"}, {Name: "Azul"}}},
		{name: "unknown source", entries: []EntryConfig{{Name: "Azul", IDs: map[string]string{"ebay": "x"}}}},
	}
	for _, c := range cases {
		_, err := New(c.entries)
		require.Error(t, err, c.name)
	}
}

func TestLoadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	err := os.WriteFile(path, []byte(`
games:
  - name: Brass Birmingham
    ids:
      boardgameprices: 3000-brass-birmingham
      zatu: brass-birmingham
  - name: Spirit Island
    ids:
      zatu: spirit-island
`), 0600)
	require.NoError(t, err)

	cat, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"Brass Birmingham", "Spirit Island"}, cat.Names())
	require.Equal(t, "3000-brass-birmingham", cat[0].Identifier(pricing.SourceBoardGamePrices))
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "catalog.yaml"))
	require.Error(t, err)
}
