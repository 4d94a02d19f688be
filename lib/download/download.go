// Package download fetches the documents linked from cleaned records
// into numbered files, one directory per bucket.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"catalog-harvester/lib/cleaner"
	"catalog-harvester/lib/harvest"
	"catalog-harvester/lib/manifest"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("catalog-harvester/lib/download")
var meter = otel.Meter("catalog-harvester/lib/download")

var (
	ErrEmptyBody = errors.New("response body is empty")
	ErrStatus    = errors.New("unexpected response status")
)

// Index is the subset of the manifest the downloader needs. Entries are
// scoped to the destination root they were downloaded into.
type Index interface {
	LookupAsset(ctx context.Context, destRoot, url string) (manifest.Asset, bool, error)
	RecordAsset(ctx context.Context, asset manifest.Asset) error
	MaxSeq(ctx context.Context, destRoot, bucket string) (int, error)
}

type Options struct {
	// Bucket names the directory a record is stored in, it defaults to
	// the record's year.
	Bucket func(cleaner.Record) string
	// Ext is the file extension given to downloads, ".pdf" by default.
	Ext string
	// Placeholders are link values that stand for a missing link, as
	// written by raw and partial datasets. The link field's default
	// placeholder is always included.
	Placeholders []string
	// Index makes numbering stable across runs when set.
	Index Index
	RunID string
}

type Downloader struct {
	client *resty.Client
	opts   Options

	succeeded metric.Int64Counter
	failed    metric.Int64Counter
}

func YearBucket(r cleaner.Record) string {
	if !r.Dated {
		return "undated"
	}
	return strconv.Itoa(r.Year)
}

func NewDownloader(client *resty.Client, opts Options) (Downloader, error) {
	if opts.Bucket == nil {
		opts.Bucket = YearBucket
	}
	if opts.Ext == "" {
		opts.Ext = ".pdf"
	}
	if !strings.HasPrefix(opts.Ext, ".") {
		opts.Ext = "." + opts.Ext
	}
	succeeded, err := meter.Int64Counter("download.succeeded")
	if err != nil {
		return Downloader{}, err
	}
	failed, err := meter.Int64Counter("download.failed")
	if err != nil {
		return Downloader{}, err
	}
	return Downloader{
		client:    client,
		opts:      opts,
		succeeded: succeeded,
		failed:    failed,
	}, nil
}

type Status int

const (
	StatusDownloaded Status = iota
	StatusFailed
	// StatusSkipped is reported for records without a link.
	StatusSkipped
	// StatusExisting is reported for links the manifest already has a
	// file for.
	StatusExisting
)

func (s Status) String() string {
	switch s {
	case StatusDownloaded:
		return "downloaded"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusExisting:
		return "existing"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type Task struct {
	URL    string
	Bucket string
	Seq    int
	Dest   string
}

type Outcome struct {
	Record cleaner.Record
	Task   Task
	Status Status
	Size   int64
	SHA256 string
	Err    error
}

// Download fetches the link of every record in order. A failed transfer
// is reported in its Outcome and does not use up a sequence number.
func (d Downloader) Download(ctx context.Context, records []cleaner.Record, linkField, destRoot string) []Outcome {
	ctx, span := tracer.Start(ctx, "Download")
	defer span.End()

	root := rootKey(destRoot)
	counters := map[string]int{}
	outcomes := make([]Outcome, 0, len(records))
	for _, record := range records {
		if ctx.Err() != nil {
			slog.WarnContext(ctx, "download cancelled", "remaining", len(records)-len(outcomes))
			break
		}
		outcomes = append(outcomes, d.one(ctx, record, linkField, destRoot, root, counters))
	}

	var failed int
	for _, o := range outcomes {
		if o.Status == StatusFailed {
			failed++
		}
	}
	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("failed", failed),
	)
	return outcomes
}

// rootKey is the manifest key of a destination root.
func rootKey(destRoot string) string {
	abs, err := filepath.Abs(destRoot)
	if err != nil {
		return filepath.Clean(destRoot)
	}
	return abs
}

func (d Downloader) placeholder(linkField, link string) bool {
	if strings.EqualFold(link, harvest.Field{Name: linkField}.Placeholder()) {
		return true
	}
	for _, p := range d.opts.Placeholders {
		if strings.EqualFold(link, strings.TrimSpace(p)) {
			return true
		}
	}
	return false
}

// within reports whether path lies inside root.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, rootKey(path))
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (d Downloader) one(ctx context.Context, record cleaner.Record, linkField, destRoot, root string, counters map[string]int) Outcome {
	outcome := Outcome{Record: record}

	link, ok := record.Get(linkField)
	link = strings.TrimSpace(link)
	if !ok || link == "" || d.placeholder(linkField, link) {
		outcome.Status = StatusSkipped
		slog.DebugContext(ctx, "record has no link", "record", record.Label())
		return outcome
	}

	bucket := d.opts.Bucket(record)
	dir := filepath.Join(destRoot, bucket)
	outcome.Task = Task{URL: link, Bucket: bucket}

	fail := func(err error) Outcome {
		outcome.Status = StatusFailed
		outcome.Err = err
		d.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
		slog.WarnContext(
			ctx, "download failed",
			"record", record.Label(),
			"url", link,
			"err", err,
		)
		return outcome
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(err)
	}

	if d.opts.Index != nil {
		existing, found, err := d.opts.Index.LookupAsset(ctx, root, link)
		if err != nil {
			return fail(err)
		}
		if found && within(root, existing.Path) && Present(existing.Path) {
			outcome.Status = StatusExisting
			outcome.Task.Seq = existing.Seq
			outcome.Task.Dest = existing.Path
			outcome.Size = existing.Size
			outcome.SHA256 = existing.SHA256
			return outcome
		}
	}

	last, seen := counters[bucket]
	if !seen && d.opts.Index != nil {
		highest, err := d.opts.Index.MaxSeq(ctx, root, bucket)
		if err != nil {
			return fail(err)
		}
		last = highest
	}
	counters[bucket] = last

	seq := last + 1
	dest := filepath.Join(dir, strconv.Itoa(seq)+d.opts.Ext)
	outcome.Task.Seq = seq
	outcome.Task.Dest = dest

	size, sum, err := d.transfer(ctx, link, dest)
	if err != nil {
		return fail(err)
	}
	counters[bucket] = seq
	outcome.Status = StatusDownloaded
	outcome.Size = size
	outcome.SHA256 = sum
	d.succeeded.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
	slog.InfoContext(ctx, "downloaded", "url", link, "path", dest, "bytes", size)

	if d.opts.Index != nil {
		err := d.opts.Index.RecordAsset(ctx, manifest.Asset{
			DestRoot: root,
			URL:      link,
			Bucket:   bucket,
			Seq:      seq,
			Path:     rootKey(dest),
			SHA256:   sum,
			Size:     size,
			RunID:    d.opts.RunID,
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to record asset in manifest", "url", link, "err", err)
		}
	}
	return outcome
}

// transfer saves the response body to a hidden file next to dest and
// renames it into place once the status and body check out.
func (d Downloader) transfer(ctx context.Context, link, dest string) (int64, string, error) {
	ctx, span := tracer.Start(ctx, "transfer")
	defer span.End()
	span.SetAttributes(attribute.String("url", link))

	fail := func(err error, msg string) (int64, string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		return 0, "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fail(err, "failed to create temp file")
	}
	tmpPath := tmp.Name()
	tmp.Close()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	// SetOutput keeps the response hooks running, so the request span
	// and debug dumps are finished like any other request.
	res, err := d.client.R().
		SetContext(ctx).
		SetOutput(tmpPath).
		Get(link)
	if err != nil {
		return fail(err, "request failed")
	}
	if res.IsError() || res.StatusCode() < 200 || res.StatusCode() > 299 {
		return fail(fmt.Errorf("%w: %s", ErrStatus, res.Status()), "unexpected status")
	}

	size, sum, err := digest(tmpPath)
	if err != nil {
		return fail(err, "failed to read download")
	}
	if size == 0 {
		return fail(ErrEmptyBody, "empty body")
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fail(err, "failed to write file")
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fail(err, "failed to write file")
	}
	committed = true
	return size, sum, nil
}

func digest(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()
	hash := sha256.New()
	size, err := io.Copy(hash, f)
	if err != nil {
		return 0, "", err
	}
	return size, hex.EncodeToString(hash.Sum(nil)), nil
}

// Present reports whether a downloaded file is still on disk, either
// whole or as the parts it was split into.
func Present(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}
	ext := filepath.Ext(path)
	_, err := os.Stat(strings.TrimSuffix(path, ext) + "_part1" + ext)
	return err == nil
}
