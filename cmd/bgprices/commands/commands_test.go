package commands

import (
	"bgprices/internal/tracker"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	require.Equal(t, 1, exitCode(errors.New("disk full")))
	require.Equal(t, 2, exitCode(&tracker.ConfigurationError{Err: errors.New("no catalog")}))
	require.Equal(t, 2, exitCode(fmt.Errorf("run: %w", &tracker.ConfigurationError{Err: errors.New("no catalog")})))
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	require.Subset(t, names, []string{"run", "show", "history", "schedule"})
	require.NotNil(t, rootCmd.Flags().Lookup("label"))
}

func TestLoadConfigFailureIsConfigurationError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	err := os.WriteFile(path, []byte(`{
		threshold: { mode: "relative" },
		catalog: [{ name: "Azul", ids: { zatu: "azul" } }],
	}`), 0600)
	require.NoError(t, err)

	_, err = loadConfig(path, false)
	require.Error(t, err)
	require.Equal(t, 2, exitCode(err))

	_, err = loadConfig(filepath.Join(dir, "missing.json5"), false)
	require.Equal(t, 2, exitCode(err))
}
