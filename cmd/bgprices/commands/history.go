package commands

import (
	"bgprices/internal/components/telemetry"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Lists the stored snapshots, oldest first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := cfg.OpenStore(telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer st.Close()

		labels, err := st.Labels(cmd.Context())
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"#", "Snapshot", ""})
		for i, label := range labels {
			current := ""
			if i == len(labels)-1 {
				current = "current"
			}
			t.AppendRow(table.Row{i + 1, label, current})
		}
		t.Render()
		return nil
	},
}
