package commands

import (
	"bgprices/internal/components/chrono"
	"bgprices/internal/components/telemetry"
	"bgprices/internal/tracker"
	"log/slog"

	"github.com/spf13/cobra"
)

var scheduleNow bool

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "Also run once immediately.")
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule [--now]",
	Short: "Runs on the configured cron schedule until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		clock, err := cfg.Clock()
		if err != nil {
			return &tracker.ConfigurationError{Err: err}
		}

		job := func() {
			err := runOnce(ctx, cfg, clock, "")
			if err != nil {
				slog.Error("scheduled run failed", "err", err.Error())
			}
		}

		cron := chrono.NewStandardCron(telemetry.NewScopedAPI("schedule", telemetry.SlogAPI{}), clock.Location())
		err = cron.Cron(cfg.Schedule, job)
		if err != nil {
			cron.Stop()
			return &tracker.ConfigurationError{Err: err}
		}
		slog.Info("waiting for the next run", "schedule", cfg.Schedule, "timezone", clock.Location().String())

		if scheduleNow {
			job()
		}

		<-ctx.Done()
		cron.Stop()
		return nil
	},
}
