package commands

import (
	"errors"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var runsLimit int

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "The number of runs to show.")
	rootCmd.AddCommand(runsCmd)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

var runsCmd = &cobra.Command{
	Use:   "runs [--limit <n>]",
	Short: "Prints the most recent runs recorded in the manifest.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openManifest(cfg)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("no manifest is configured")
		}
		defer store.Close()

		runs, err := store.RecentRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Run", "Kind", "Source", "Started", "Finished", "OK", "Failed", "Complete"})
		for _, r := range runs {
			t.AppendRow(table.Row{
				r.ID[:8],
				r.Kind,
				r.Source,
				formatTime(r.StartedAt),
				formatTime(r.FinishedAt),
				r.OK,
				r.Failed,
				r.Complete,
			})
		}
		t.Render()
		return nil
	},
}
