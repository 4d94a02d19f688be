// Package pipeline runs the harvesting stages end to end: walking a
// source, cleaning what it yields and writing the dataset.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"catalog-harvester/lib/cleaner"
	"catalog-harvester/lib/dataset"
	"catalog-harvester/lib/harvest"
	"catalog-harvester/lib/navigator"
	"catalog-harvester/lib/sources"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("catalog-harvester/lib/pipeline")

type ScrapeOptions struct {
	// Out receives the cleaned dataset.
	Out string
	// RawOut, if set, receives every harvested record before cleaning.
	RawOut string
}

type ScrapeReport struct {
	Pages      int
	Harvested  int
	Clean      cleaner.Report
	Complete   bool
	Rejections []cleaner.Rejection
	// PartialOut is where records were saved when the walk did not finish.
	PartialOut string
}

func PartialPath(out string) string {
	return out + ".partial.json"
}

// Scrape walks the source and writes the cleaned dataset. If the walk
// fails part way, the records harvested so far are written to
// PartialPath(Out) and the walk's error is returned.
func Scrape(ctx context.Context, sess navigator.Session, preset sources.Preset, opts ScrapeOptions) (ScrapeReport, error) {
	ctx, span := tracer.Start(ctx, "Scrape")
	defer span.End()
	span.SetAttributes(
		attribute.String("source", preset.Name()),
		attribute.String("schema_version", preset.SchemaVersion),
	)

	var report ScrapeReport
	driver, err := harvest.NewDriver(sess, preset.Source)
	if err != nil {
		return report, err
	}

	result, runErr := driver.Run(ctx)
	report.Pages = result.Pages
	report.Harvested = len(result.Records)
	report.Complete = result.Complete

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "harvest did not complete")
		if opts.Out == "" {
			return report, runErr
		}
		report.PartialOut = PartialPath(opts.Out)
		if err := dataset.Write(report.PartialOut, result.Records); err != nil {
			return report, errors.Join(runErr, fmt.Errorf("write partial dataset: %w", err))
		}
		slog.WarnContext(
			ctx, "harvest did not complete, partial records saved",
			"source", preset.Name(),
			"records", len(result.Records),
			"path", report.PartialOut,
		)
		return report, runErr
	}

	if opts.RawOut != "" {
		if err := dataset.Write(opts.RawOut, result.Records); err != nil {
			return report, fmt.Errorf("write raw dataset: %w", err)
		}
	}

	cleanOpts := preset.CleanOptions()
	cleanOpts.Rejections = func(r cleaner.Rejection) {
		report.Rejections = append(report.Rejections, r)
	}
	cleaned, cleanReport := cleaner.Clean(ctx, result.Records, cleanOpts)
	report.Clean = cleanReport

	if opts.Out != "" {
		if err := dataset.Write(opts.Out, cleaned); err != nil {
			return report, fmt.Errorf("write dataset: %w", err)
		}
	}
	slog.InfoContext(
		ctx, "scrape finished",
		"source", preset.Name(),
		"pages", report.Pages,
		"accepted", cleanReport.Accepted,
		"rejected", cleanReport.Rejected,
		"path", opts.Out,
	)
	return report, nil
}
