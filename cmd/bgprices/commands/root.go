package commands

import (
	"bgprices/internal/components/serviceutil"
	"bgprices/internal/components/telemetry"
	"bgprices/internal/config"
	"bgprices/internal/tracker"
	"context"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	color      bool
)

// cfg is loaded before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "bgprices",
	Short: "bgprices records the prices of a catalog of board games as monthly snapshots.",
	Long: `bgprices fetches the current price and availability of every game in the
catalog, compares them with the previous snapshot and appends a new snapshot
to the store. Without a subcommand it runs once.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig(configPath, !cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		if verbose {
			loaded.Log.Verbose = true
		}
		telemetry.InitSlog(loaded.Log)
		cfg = loaded
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "Path to the configuration file, searched for in the parent directories when not given.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
	rootCmd.PersistentFlags().BoolVar(&color, "color", false, "Color the tables written to stdout.")
}

// loadConfig searches the parent directories too when search is set.
func loadConfig(path string, search bool) (config.Config, error) {
	load := config.Load
	if search {
		load = config.LoadRecursively
	}
	cfg, err := load(path)
	if err != nil {
		return config.Config{}, &tracker.ConfigurationError{Err: err}
	}
	return cfg, nil
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		serviceutil.ExitCode(exitCode(err), "bgprices failed", err)
	}
}
