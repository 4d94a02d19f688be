package commands

import (
	"fmt"

	"catalog-harvester/lib/splitter"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	splitFolder    string
	splitMaxPages  int
	splitRecursive bool
)

func init() {
	splitCmd.Flags().StringVar(&splitFolder, "folder", "data/whitepapers", "The folder of documents to split.")
	splitCmd.Flags().IntVar(&splitMaxPages, "max-pages", 500, "The maximum number of pages per document.")
	splitCmd.Flags().BoolVar(&splitRecursive, "recursive", false, "Also split documents in every subfolder.")
	rootCmd.AddCommand(splitCmd)
}

var splitCmd = &cobra.Command{
	Use:   "split [--folder <dir>] [--max-pages <n>] [--recursive]",
	Short: "Splits documents with too many pages into numbered parts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := splitter.New(splitter.NewPDF(), ".pdf")
		if err != nil {
			return err
		}

		var results []splitter.Result
		if splitRecursive {
			results, err = s.SplitTree(ctx, splitFolder, splitMaxPages)
		} else {
			results, err = s.SplitOversized(ctx, splitFolder, splitMaxPages)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Document", "Pages", "Parts"})
		for _, r := range results {
			t.AppendRow(table.Row{r.Original, r.Pages, len(r.Parts)})
		}
		t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d split", len(results))})
		t.Render()

		return err
	},
}
