// Package harvest turns the pages of a paginated listing into records.
package harvest

import (
	"context"
	"errors"
	"fmt"

	"catalog-harvester/lib/navigator"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("catalog-harvester/lib/harvest")
var meter = otel.Meter("catalog-harvester/lib/harvest")

var (
	ErrNavigation  = errors.New("navigation failed")
	ErrPageHarvest = errors.New("page harvest failed")
)

// HarvestPage extracts a record from every element matching
// `recordSelector` on the current page. Records are extracted
// concurrently and returned in document order.
func HarvestPage(ctx context.Context, sess navigator.Session, recordSelector string, schema Schema) ([]RawRecord, error) {
	ctx, span := tracer.Start(ctx, "HarvestPage")
	defer span.End()

	handles, err := sess.QueryAll(ctx, recordSelector)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to enumerate records")
		return nil, fmt.Errorf("%w: query %q: %w", ErrPageHarvest, recordSelector, err)
	}
	span.SetAttributes(attribute.Int("records", len(handles)))

	records := make([]RawRecord, len(handles))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, handle := range handles {
		group.Go(func() error {
			record, err := ExtractRecord(groupCtx, sess, handle, schema)
			if err != nil {
				return fmt.Errorf("record %d (%s): %w", i, handle, err)
			}
			records[i] = record
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to extract records")
		return nil, fmt.Errorf("%w: %w", ErrPageHarvest, err)
	}
	return records, nil
}
