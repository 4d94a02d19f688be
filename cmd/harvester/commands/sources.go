package commands

import (
	"slices"
	"strconv"
	"strings"

	"catalog-harvester/lib/sources"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Lists the source presets that can be scraped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := sources.Names()
		for name := range cfg.Sources {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}

		t := newTable()
		t.AppendHeader(table.Row{"Source", "Schema", "Backend", "Pages", "Fields", "Description"})
		for _, name := range names {
			preset, err := sources.Lookup(name, cfg.Sources)
			if err != nil {
				return err
			}
			pages := "until exhausted"
			if preset.Source.Pages > 0 {
				pages = strconv.Itoa(preset.Source.Pages)
			}
			t.AppendRow(table.Row{
				name,
				preset.SchemaVersion,
				preset.Backend,
				pages,
				strings.Join(preset.Source.Schema.Names(), ", "),
				preset.Description,
			})
		}
		t.SortBy([]table.SortBy{{Name: "Source", Mode: table.Asc}})
		t.Render()
		return nil
	},
}
