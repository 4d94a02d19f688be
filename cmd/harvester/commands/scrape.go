package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"catalog-harvester/lib/manifest"
	"catalog-harvester/lib/notify"
	"catalog-harvester/lib/pipeline"
	"catalog-harvester/lib/sources"

	"github.com/spf13/cobra"
)

var (
	scrapeSource  string
	scrapeOut     string
	scrapeRaw     string
	scrapeBackend string
)

func init() {
	scrapeCmd.Flags().StringVar(&scrapeSource, "source", "aws-whitepapers", "The source preset to scrape, run the sources command to list them.")
	scrapeCmd.Flags().StringVar(&scrapeOut, "out", "", "The dataset file to write, defaults to data/<source>.json.")
	scrapeCmd.Flags().StringVar(&scrapeRaw, "raw", "", "Also write every record before cleaning to this file.")
	scrapeCmd.Flags().StringVar(&scrapeBackend, "backend", "", "Override the preset's backend (static or browser).")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--source <name>] [--out <path/to/dataset.json>]",
	Short: "Walks every page of a source and writes the cleaned records to a dataset.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		preset, err := sources.Lookup(scrapeSource, cfg.Sources)
		if err != nil {
			return err
		}
		out := scrapeOut
		if out == "" {
			out = fmt.Sprintf("data/%s.json", preset.Name())
		}
		backend := preset.Backend
		if scrapeBackend != "" {
			backend = scrapeBackend
		}

		store, err := openManifest(cfg)
		if err != nil {
			return err
		}
		var run manifest.Run
		if store != nil {
			defer store.Close()
			run, err = store.BeginRun(ctx, "scrape", preset.Name())
			if err != nil {
				return err
			}
		}

		sess, closeSession, err := openSession(ctx, cfg, backend)
		if err != nil {
			return fmt.Errorf("failed to open %s session: %w", backend, err)
		}
		defer closeSession()

		slog.InfoContext(
			ctx, "scraping",
			"source", preset.Name(),
			"schema_version", preset.SchemaVersion,
			"backend", backend,
			"out", out,
		)
		report, scrapeErr := pipeline.Scrape(ctx, sess, preset, pipeline.ScrapeOptions{
			Out:    out,
			RawOut: scrapeRaw,
		})

		if store != nil {
			run.OK = report.Clean.Accepted
			run.Failed = report.Clean.Rejected
			run.Complete = report.Complete
			if err := store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
				slog.WarnContext(ctx, "failed to record run", "err", err)
			}
		}

		summary := notify.Summary{
			Title: fmt.Sprintf("scrape of %s finished", preset.Name()),
			Counts: [][2]string{
				{"pages", strconv.Itoa(report.Pages)},
				{"harvested", strconv.Itoa(report.Harvested)},
				{"accepted", strconv.Itoa(report.Clean.Accepted)},
				{"rejected", strconv.Itoa(report.Clean.Rejected)},
				{"complete", strconv.FormatBool(report.Complete)},
			},
		}
		for _, r := range report.Rejections {
			summary.Failures = append(summary.Failures, fmt.Sprintf("%s: %v", r.Record.Label(), r.Err))
		}
		if scrapeErr != nil {
			summary.Title = fmt.Sprintf("scrape of %s failed", preset.Name())
			summary.Failures = append(summary.Failures, scrapeErr.Error())
		}
		notify.Deliver(ctx, cfg.Notify, summary)

		return scrapeErr
	},
}
