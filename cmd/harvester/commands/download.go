package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"catalog-harvester/lib/download"
	"catalog-harvester/lib/manifest"
	"catalog-harvester/lib/notify"
	"catalog-harvester/lib/pipeline"
	"catalog-harvester/lib/sources"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	downloadIn        string
	downloadDest      string
	downloadLinkField string
	downloadBaseUrl   string
	downloadMissing   []string
)

func init() {
	downloadCmd.Flags().StringVar(&downloadIn, "in", "data/aws-whitepapers.json", "The cleaned dataset to read links from.")
	downloadCmd.Flags().StringVar(&downloadDest, "dest", "data/whitepapers", "The directory documents are saved under, one subdirectory per year.")
	downloadCmd.Flags().StringVar(&downloadLinkField, "link-field", "pdf_link", "The record field holding the document link.")
	downloadCmd.Flags().StringVar(&downloadBaseUrl, "base-url", "", "Resolve relative links against this url.")
	downloadCmd.Flags().StringSliceVar(&downloadMissing, "placeholder", nil, "Extra link values that mean the record has no link.")
	rootCmd.AddCommand(downloadCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download [--in <dataset.json>] [--dest <dir>]",
	Short: "Downloads the document linked from every record of a dataset.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		client, err := newHttpClient(cfg)
		if err != nil {
			return err
		}
		if downloadBaseUrl != "" {
			client.SetBaseURL(downloadBaseUrl)
		}

		opts := download.Options{
			Placeholders: append(sources.Placeholders(downloadLinkField, cfg.Sources), downloadMissing...),
		}
		store, err := openManifest(cfg)
		if err != nil {
			return err
		}
		var run manifest.Run
		if store != nil {
			defer store.Close()
			run, err = store.BeginRun(ctx, "download", downloadIn)
			if err != nil {
				return err
			}
			opts.Index = store
			opts.RunID = run.ID
		}

		downloader, err := download.NewDownloader(client, opts)
		if err != nil {
			return err
		}
		report, downloadErr := pipeline.Download(ctx, downloader, downloadIn, downloadLinkField, downloadDest)
		if store != nil {
			run.OK = len(report.Outcomes) - report.Failed
			run.Failed = report.Failed
			run.Complete = downloadErr == nil
			if err := store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
				slog.WarnContext(ctx, "failed to record run", "err", err)
			}
		}
		if downloadErr != nil {
			return downloadErr
		}

		renderDownloadReport(report)

		summary := notify.Summary{
			Title: "download finished",
			Counts: [][2]string{
				{"records", strconv.Itoa(len(report.Outcomes))},
				{"failed", strconv.Itoa(report.Failed)},
			},
		}
		for _, o := range report.Outcomes {
			if o.Status == download.StatusFailed {
				summary.Failures = append(summary.Failures, fmt.Sprintf("%s: %v", o.Task.URL, o.Err))
			}
		}
		notify.Deliver(ctx, cfg.Notify, summary)
		return nil
	},
}

var downloadStatuses = []download.Status{
	download.StatusDownloaded,
	download.StatusExisting,
	download.StatusSkipped,
	download.StatusFailed,
}

func renderDownloadReport(report pipeline.DownloadReport) {
	buckets := make([]string, 0, len(report.ByBucket))
	for bucket := range report.ByBucket {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)

	t := newTable()
	header := table.Row{"Bucket"}
	for _, s := range downloadStatuses {
		header = append(header, s.String())
	}
	t.AppendHeader(header)
	for _, bucket := range buckets {
		row := table.Row{bucket}
		for _, s := range downloadStatuses {
			row = append(row, report.ByBucket[bucket][s])
		}
		t.AppendRow(row)
	}
	t.Render()
}
