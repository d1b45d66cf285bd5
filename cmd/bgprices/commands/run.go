package commands

import (
	"bgprices/internal/components/chrono"
	"bgprices/internal/components/telemetry"
	"bgprices/internal/config"
	"bgprices/internal/report"
	"bgprices/internal/tracker"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var runLabel string

func init() {
	runCmd.Flags().StringVar(&runLabel, "label", "", "Store the snapshot under this label instead of the current year and month.")
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--label <label>]",
	Short: "Fetches every game once and appends a new snapshot.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		clock, err := cfg.Clock()
		if err != nil {
			return &tracker.ConfigurationError{Err: err}
		}
		return runOnce(cmd.Context(), cfg, clock, runLabel)
	},
}

func exitCode(err error) int {
	var configErr *tracker.ConfigurationError
	if errors.As(err, &configErr) {
		return 2
	}
	return 1
}

func newTracker(cfg config.Config, clock chrono.API, tel telemetry.API) (tracker.Tracker, func() error, error) {
	cat, err := cfg.LoadCatalog()
	if err != nil {
		return tracker.Tracker{}, nil, &tracker.ConfigurationError{Err: err}
	}
	st, err := cfg.OpenStore(tel)
	if err != nil {
		return tracker.Tracker{}, nil, &tracker.ConfigurationError{Err: err}
	}
	builder, err := cfg.Builder(clock, tel)
	if err != nil {
		st.Close()
		return tracker.Tracker{}, nil, &tracker.ConfigurationError{Err: err}
	}
	return tracker.NewTracker(cat, builder, st, clock, telemetry.NewScopedAPI("tracker", tel)), st.Close, nil
}

func runOnce(ctx context.Context, cfg config.Config, clock chrono.API, label string) error {
	tel := telemetry.SlogAPI{}

	t, closeStore, err := newTracker(cfg, clock, tel)
	if err != nil {
		return err
	}
	defer closeStore()

	var result tracker.Result
	if label != "" {
		result, err = t.RunWithLabel(ctx, label)
	} else {
		result, err = t.Run(ctx)
	}
	if err != nil {
		return err
	}

	slog.Info(
		"snapshot appended",
		"label", result.Label,
		"run_id", result.Report.RunID,
		"failures", len(result.Report.Failures),
	)
	report.Run(os.Stdout, result.Label, result.Previous, result.Snapshot, result.Report, report.Options{Color: color})

	return notify(ctx, cfg, result, tel)
}

func notify(ctx context.Context, cfg config.Config, result tracker.Result, tel telemetry.API) error {
	if !cfg.Notify.Enabled() {
		return nil
	}
	movements := report.Movements(result.Previous, result.Snapshot)
	if cfg.Notify.OnlyOnChange && len(movements) == 0 && len(result.Report.Failures) == 0 {
		slog.Info("nothing changed, skipping email")
		return nil
	}

	subject := fmt.Sprintf("Board game prices %s: %d movements, %d failures", result.Label, len(movements), len(result.Report.Failures))
	body := report.String(result.Label, result.Previous, result.Snapshot, result.Report)
	err := report.NewNotifier(cfg.Notify, tel).Send(ctx, subject, body)
	if err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}
