package commands

import (
	"bgprices/internal/components/telemetry"
	"bgprices/internal/report"
	"bgprices/internal/snapshot"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show [label]",
	Short: "Prints a stored snapshot, the latest one when no label is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := cfg.OpenStore(telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer st.Close()

		var snap snapshot.Snapshot
		if len(args) == 1 {
			snap, err = st.Read(cmd.Context(), args[0])
		} else {
			snap, err = st.ReadLatest(cmd.Context())
		}
		if err != nil {
			return err
		}
		if snap.Empty() {
			fmt.Println("No snapshot has been stored yet.")
			return nil
		}

		report.Snapshot(os.Stdout, snap, report.Options{Color: color})
		return nil
	},
}
