// Package cleaner validates harvested records and derives the date
// fields used to bucket them.
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"catalog-harvester/lib/harvest"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("catalog-harvester/lib/cleaner")
var meter = otel.Meter("catalog-harvester/lib/cleaner")

const DefaultDateLayout = "January 2006"

var (
	ErrMissingFields = errors.New("record is missing fields")
	ErrInvalidDate   = errors.New("record has an invalid date")
)

type Options struct {
	// DateField is parsed into Year and Month, records are left undated
	// when it is empty.
	DateField string
	// DateLayout is a time layout, DefaultDateLayout when empty.
	DateLayout string
	// Rejections is called once for every rejected record.
	Rejections func(Rejection)
}

type Rejection struct {
	Record harvest.RawRecord
	Err    error
}

type Report struct {
	Accepted int
	Rejected int
}

// Clean drops records with absent fields or unparseable dates and
// returns the rest, in their original order.
func Clean(ctx context.Context, records []harvest.RawRecord, opts Options) ([]Record, Report) {
	ctx, span := tracer.Start(ctx, "Clean")
	defer span.End()

	layout := opts.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	rejected, _ := meter.Int64Counter("cleaner.rejected")

	var report Report
	cleaned := make([]Record, 0, len(records))
	for _, raw := range records {
		record, err := clean(raw, opts.DateField, layout)
		if err != nil {
			report.Rejected++
			if rejected != nil {
				rejected.Add(ctx, 1)
			}
			slog.WarnContext(ctx, "rejected record", "record", raw.Label(), "err", err)
			if opts.Rejections != nil {
				opts.Rejections(Rejection{Record: raw, Err: err})
			}
			continue
		}
		cleaned = append(cleaned, record)
		report.Accepted++
	}

	span.SetAttributes(
		attribute.Int("accepted", report.Accepted),
		attribute.Int("rejected", report.Rejected),
	)
	return cleaned, report
}

func clean(raw harvest.RawRecord, dateField, layout string) (Record, error) {
	if missing := raw.Missing(); len(missing) > 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	record := Record{Fields: raw.Fields}
	if dateField == "" {
		return record, nil
	}

	value, ok := raw.Get(dateField)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrMissingFields, dateField)
	}
	date, err := time.Parse(layout, strings.TrimSpace(value.Text))
	if err != nil {
		return Record{}, fmt.Errorf("%w: %q does not match %q", ErrInvalidDate, value.Text, layout)
	}
	record.Year = date.Year()
	record.Month = int(date.Month())
	record.Dated = true
	return record, nil
}
