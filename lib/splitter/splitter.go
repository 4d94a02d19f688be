// Package splitter breaks documents with too many pages into numbered
// parts and removes the original once every part is on disk.
package splitter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("catalog-harvester/lib/splitter")
var meter = otel.Meter("catalog-harvester/lib/splitter")

var ErrPartWrite = errors.New("failed to write part")

// Codec reads and writes the page units of a document format.
type Codec interface {
	PageCount(ctx context.Context, path string) (int, error)
	// WritePages writes pages first..last (1-based, inclusive) of src to dst.
	WritePages(ctx context.Context, src, dst string, first, last int) error
}

type Part struct {
	Path  string
	First int
	Last  int
}

type Result struct {
	Original string
	Pages    int
	Parts    []Part
}

type Splitter struct {
	codec Codec
	ext   string
	parts metric.Int64Counter
}

var partName = regexp.MustCompile(`_part\d+$`)

func New(codec Codec, ext string) (Splitter, error) {
	if ext == "" {
		ext = ".pdf"
	}
	parts, err := meter.Int64Counter("splitter.parts")
	if err != nil {
		return Splitter{}, err
	}
	return Splitter{codec: codec, ext: strings.ToLower(ext), parts: parts}, nil
}

// Ranges returns the page ranges of the parts of a document with
// `pages` pages, each at most `max` pages long.
func Ranges(pages, max int) [][2]int {
	var out [][2]int
	for first := 1; first <= pages; first += max {
		last := first + max - 1
		if last > pages {
			last = pages
		}
		out = append(out, [2]int{first, last})
	}
	return out
}

// candidates lists the documents in dir that are not already parts.
func (s Splitter) candidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		ext := filepath.Ext(name)
		if strings.ToLower(ext) != s.ext {
			continue
		}
		if partName.MatchString(strings.TrimSuffix(name, ext)) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// SplitOversized splits every document in dir with more than `maxPages`
// pages. A document that fails to split is left untouched and the error
// is returned joined with the others once the whole directory is done.
func (s Splitter) SplitOversized(ctx context.Context, dir string, maxPages int) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "SplitOversized")
	defer span.End()
	span.SetAttributes(attribute.String("dir", dir))

	if maxPages < 1 {
		return nil, fmt.Errorf("max pages must be at least 1, got %d", maxPages)
	}
	files, err := s.candidates(dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list directory")
		return nil, err
	}

	var results []Result
	var errs []error
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result, split, err := s.SplitFile(ctx, path, maxPages)
		if err != nil {
			slog.WarnContext(ctx, "failed to split", "path", path, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if split {
			results = append(results, result)
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "some documents failed to split")
	}
	return results, err
}

// SplitTree runs SplitOversized on root and every directory below it.
func (s Splitter) SplitTree(ctx context.Context, root string, maxPages int) ([]Result, error) {
	var results []Result
	var errs []error
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		dirResults, err := s.SplitOversized(ctx, path, maxPages)
		results = append(results, dirResults...)
		if err != nil {
			errs = append(errs, err)
		}
		return ctx.Err()
	})
	if err != nil {
		errs = append(errs, err)
	}
	return results, errors.Join(errs...)
}

// SplitFile splits a single document, it reports false when the document
// is small enough to keep as it is.
func (s Splitter) SplitFile(ctx context.Context, path string, maxPages int) (Result, bool, error) {
	ctx, span := tracer.Start(ctx, "SplitFile")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	pages, err := s.codec.PageCount(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count pages")
		return Result{}, false, fmt.Errorf("count pages: %w", err)
	}
	if pages <= maxPages {
		return Result{}, false, nil
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	result := Result{Original: path, Pages: pages}

	for i, r := range Ranges(pages, maxPages) {
		part := Part{
			Path:  fmt.Sprintf("%s_part%d%s", base, i+1, ext),
			First: r[0],
			Last:  r[1],
		}
		if err := s.writePart(ctx, path, part); err != nil {
			for _, written := range result.Parts {
				os.Remove(written.Path)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to write part")
			return Result{}, false, err
		}
		result.Parts = append(result.Parts, part)
	}
	s.parts.Add(ctx, int64(len(result.Parts)))

	if err := os.Remove(path); err != nil {
		return Result{}, false, fmt.Errorf("remove original: %w", err)
	}
	slog.InfoContext(ctx, "split document", "path", path, "pages", pages, "parts", len(result.Parts))
	return result, true, nil
}

func (s Splitter) writePart(ctx context.Context, src string, part Part) error {
	dir := filepath.Dir(part.Path)
	tmp := filepath.Join(dir, "."+filepath.Base(part.Path)+".tmp")
	if err := s.codec.WritePages(ctx, src, tmp, part.First, part.Last); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w %s: %w", ErrPartWrite, part.Path, err)
	}
	if err := os.Rename(tmp, part.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w %s: %w", ErrPartWrite, part.Path, err)
	}
	return nil
}
