package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"catalog-harvester/lib/navigator"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// Source describes how to walk one paginated listing.
type Source struct {
	Name string `json:"name"`
	// EntryURL is the first page, it may be omitted when PageURL is set.
	EntryURL       string `json:"entry_url,omitempty"`
	RecordSelector string `json:"record_selector"`
	Schema         Schema `json:"schema,omitempty"`

	// Pages is the number of pages when it is known in advance, 0 means
	// the listing is walked until it runs out.
	Pages int `json:"pages,omitempty"`
	// MaxPages stops an unbounded walk after this many pages, 0 means no
	// limit.
	MaxPages int `json:"max_pages,omitempty"`

	// NextSelector finds the control that loads the next page.
	NextSelector string `json:"next_selector,omitempty"`
	// PageURL is a fmt template taking the page number.
	PageURL string `json:"page_url,omitempty"`
	// PageBase is the page number of the first page in PageURL.
	PageBase int `json:"page_base,omitempty"`
}

func (s Source) Validate() error {
	if s.RecordSelector == "" {
		return fmt.Errorf("source %s: record_selector is required", s.Name)
	}
	if len(s.Schema) == 0 {
		return fmt.Errorf("source %s: schema has no fields", s.Name)
	}
	seen := map[string]bool{}
	for _, f := range s.Schema {
		switch {
		case f.Name == "":
			return fmt.Errorf("source %s: schema field without a name", s.Name)
		case slices.Contains(ReservedFields, f.Name):
			return fmt.Errorf("source %s: field name %q is reserved", s.Name, f.Name)
		case seen[f.Name]:
			return fmt.Errorf("source %s: duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = true
	}
	if s.Pages < 0 || s.MaxPages < 0 {
		return fmt.Errorf("source %s: page counts cannot be negative", s.Name)
	}
	switch {
	case s.NextSelector == "" && s.PageURL == "":
		return fmt.Errorf("source %s: one of next_selector or page_url is required", s.Name)
	case s.NextSelector != "" && s.PageURL != "":
		return fmt.Errorf("source %s: next_selector and page_url cannot both be set", s.Name)
	case s.EntryURL == "" && s.PageURL == "":
		return fmt.Errorf("source %s: entry_url is required", s.Name)
	}
	return nil
}

func (s Source) bounded() bool {
	return s.Pages > 0
}

func (s Source) pageURL(index int) string {
	return fmt.Sprintf(s.PageURL, index+s.PageBase)
}

func (s Source) entry() string {
	if s.EntryURL != "" {
		return s.EntryURL
	}
	return s.pageURL(0)
}

type State int

const (
	StatePositioned State = iota
	StateTerminal
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePositioned:
		return "positioned"
	case StateTerminal:
		return "terminal"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Cursor struct {
	Index   int
	HasNext bool
}

type Result struct {
	Records []RawRecord
	// Pages is the number of pages that were harvested.
	Pages int
	State State
	// Complete is only true when the walk reached the last page.
	Complete bool
}

type Driver struct {
	sess   navigator.Session
	source Source

	// OnPage is called after each page is harvested.
	OnPage func(cursor Cursor, records []RawRecord)

	state  State
	cursor Cursor

	pagesCounter   metric.Int64Counter
	recordsCounter metric.Int64Counter
}

func NewDriver(sess navigator.Session, source Source) (*Driver, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	pagesCounter, err := meter.Int64Counter("harvest.pages")
	if err != nil {
		return nil, err
	}
	recordsCounter, err := meter.Int64Counter("harvest.records")
	if err != nil {
		return nil, err
	}
	return &Driver{
		sess:           sess,
		source:         source,
		pagesCounter:   pagesCounter,
		recordsCounter: recordsCounter,
	}, nil
}

func (d *Driver) State() State {
	return d.state
}

func (d *Driver) Cursor() Cursor {
	return d.cursor
}

// Run walks the listing from its entry page. Records gathered before a
// failure or cancellation are still returned, with Complete set to false.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "Driver.Run")
	defer span.End()
	span.SetAttributes(attribute.String("source", d.source.Name))

	result, err := d.run(ctx)
	result.State = d.state
	result.Complete = d.state == StateTerminal
	span.SetAttributes(
		attribute.Int("pages", result.Pages),
		attribute.Int("records", len(result.Records)),
		attribute.Bool("complete", result.Complete),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "harvest did not complete")
	}
	return result, err
}

func (d *Driver) fail(err error) error {
	d.state = StateFailed
	return err
}

func (d *Driver) run(ctx context.Context) (Result, error) {
	var result Result

	entry := d.source.entry()
	if err := d.sess.Navigate(ctx, entry); err != nil {
		return result, d.fail(fmt.Errorf("%w: entry page %s: %w", ErrNavigation, entry, err))
	}
	d.state = StatePositioned
	d.cursor = Cursor{Index: 0, HasNext: true}
	attrs := metric.WithAttributes(attribute.String("source", d.source.Name))

	for {
		records, err := HarvestPage(ctx, d.sess, d.source.RecordSelector, d.source.Schema)
		if err != nil {
			return result, d.fail(fmt.Errorf("page %d: %w", d.cursor.Index, err))
		}
		result.Records = append(result.Records, records...)
		result.Pages++
		d.pagesCounter.Add(ctx, 1, attrs)
		d.recordsCounter.Add(ctx, int64(len(records)), attrs)

		slog.InfoContext(
			ctx, "harvested page",
			"source", d.source.Name,
			"page", d.cursor.Index,
			"records", len(records),
		)

		done, err := d.last(ctx, len(records), result.Pages)
		if err != nil {
			return result, d.fail(err)
		}
		d.cursor.HasNext = !done
		if d.OnPage != nil {
			d.OnPage(d.cursor, records)
		}
		if done {
			d.state = StateTerminal
			return result, nil
		}

		if err := ctx.Err(); err != nil {
			slog.WarnContext(ctx, "harvest cancelled", "source", d.source.Name, "page", d.cursor.Index)
			return result, d.fail(err)
		}
		if err := d.advance(ctx); err != nil {
			return result, d.fail(err)
		}
		d.cursor.Index++
	}
}

var errNoNext = errors.New("next page control not found")

// last reports whether the current page is the final one.
func (d *Driver) last(ctx context.Context, harvested, visited int) (bool, error) {
	if d.source.bounded() {
		return d.cursor.Index >= d.source.Pages-1, nil
	}
	if harvested == 0 {
		return true, nil
	}
	if d.source.MaxPages > 0 && visited >= d.source.MaxPages {
		return true, nil
	}
	if d.source.NextSelector != "" {
		_, ok, err := d.next(ctx)
		if err != nil {
			return false, fmt.Errorf("%w: page %d: %w", ErrNavigation, d.cursor.Index, err)
		}
		return !ok, nil
	}
	return false, nil
}

// next finds an enabled next page control.
func (d *Driver) next(ctx context.Context) (navigator.Element, bool, error) {
	el, ok, err := d.sess.QueryOne(ctx, d.source.NextSelector)
	if err != nil || !ok {
		return nil, false, err
	}
	disabled, err := navigator.Disabled(ctx, d.sess, el)
	if err != nil || disabled {
		return nil, false, err
	}
	return el, true, nil
}

func (d *Driver) advance(ctx context.Context) error {
	if d.source.PageURL != "" {
		target := d.source.pageURL(d.cursor.Index + 1)
		if err := d.sess.Navigate(ctx, target); err != nil {
			return fmt.Errorf("%w: page %d (%s): %w", ErrNavigation, d.cursor.Index+1, target, err)
		}
		return nil
	}

	el, ok, err := d.next(ctx)
	if err == nil && !ok {
		err = errNoNext
	}
	if err != nil {
		return fmt.Errorf("%w: page %d: %w", ErrNavigation, d.cursor.Index, err)
	}
	if err := d.sess.Click(ctx, el); err != nil {
		return fmt.Errorf("%w: page %d: %w", ErrNavigation, d.cursor.Index, err)
	}
	return nil
}
