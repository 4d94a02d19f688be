// Package manifest records harvest runs and downloaded assets, so a
// download can be re-run without fetching or renumbering what it already
// has.
package manifest

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

//go:embed schema.sql
var Schema string

var tracer = otel.Tracer("catalog-harvester/lib/manifest")

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

func (s Store) Close() error {
	return s.db.Close()
}

type Run struct {
	ID         string
	Kind       string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	OK         int
	Failed     int
	Complete   bool
}

// Asset is a downloaded file. Numbering is scoped to DestRoot, the same
// URL downloaded into two trees is two assets.
type Asset struct {
	DestRoot     string
	URL          string
	Bucket       string
	Seq          int
	Path         string
	SHA256       string
	Size         int64
	RunID        string
	DownloadedAt time.Time
}

func (s Store) BeginRun(ctx context.Context, kind, source string) (Run, error) {
	ctx, span := tracer.Start(ctx, "BeginRun")
	defer span.End()

	run := Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Source:    source,
		StartedAt: time.Now(),
	}
	_, err := s.db.ExecContext(
		ctx,
		"insert into runs(id, kind, source, started_at) values (?, ?, ?, ?)",
		run.ID, run.Kind, run.Source, run.StartedAt.Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert run")
		return Run{}, err
	}
	return run, nil
}

func (s Store) FinishRun(ctx context.Context, run Run) error {
	ctx, span := tracer.Start(ctx, "FinishRun")
	defer span.End()

	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	_, err := s.db.ExecContext(
		ctx,
		"update runs set finished_at = ?, ok = ?, failed = ?, complete = ? where id = ?",
		finished.Unix(), run.OK, run.Failed, run.Complete, run.ID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update run")
	}
	return err
}

// RecentRuns returns up to `limit` runs, newest first.
func (s Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`select id, kind, source, started_at, finished_at, ok, failed, complete
		from runs order by started_at desc, rowid desc limit ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started int64
		var finished sql.NullInt64
		err := rows.Scan(&run.ID, &run.Kind, &run.Source, &started, &finished, &run.OK, &run.Failed, &run.Complete)
		if err != nil {
			return nil, err
		}
		run.StartedAt = time.Unix(started, 0)
		if finished.Valid {
			run.FinishedAt = time.Unix(finished.Int64, 0)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s Store) LookupAsset(ctx context.Context, destRoot, url string) (Asset, bool, error) {
	var asset Asset
	var downloaded int64
	err := s.db.QueryRowContext(
		ctx,
		`select dest_root, url, bucket, seq, path, sha256, size, run_id, downloaded_at
		from assets where dest_root = ? and url = ?`,
		destRoot, url,
	).Scan(&asset.DestRoot, &asset.URL, &asset.Bucket, &asset.Seq, &asset.Path, &asset.SHA256, &asset.Size, &asset.RunID, &downloaded)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, false, nil
	}
	if err != nil {
		return Asset{}, false, err
	}
	asset.DownloadedAt = time.Unix(downloaded, 0)
	return asset, true, nil
}

func (s Store) RecordAsset(ctx context.Context, asset Asset) error {
	ctx, span := tracer.Start(ctx, "RecordAsset")
	defer span.End()

	if asset.DownloadedAt.IsZero() {
		asset.DownloadedAt = time.Now()
	}
	_, err := s.db.ExecContext(
		ctx,
		`insert into assets(dest_root, url, bucket, seq, path, sha256, size, run_id, downloaded_at)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?)
		on conflict(dest_root, url) do update set
			bucket = excluded.bucket,
			seq = excluded.seq,
			path = excluded.path,
			sha256 = excluded.sha256,
			size = excluded.size,
			run_id = excluded.run_id,
			downloaded_at = excluded.downloaded_at`,
		asset.DestRoot, asset.URL, asset.Bucket, asset.Seq, asset.Path, asset.SHA256, asset.Size, asset.RunID, asset.DownloadedAt.Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record asset")
	}
	return err
}

// MaxSeq returns the highest sequence number used in a bucket under
// destRoot, or 0.
func (s Store) MaxSeq(ctx context.Context, destRoot, bucket string) (int, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(
		ctx,
		"select max(seq) from assets where dest_root = ? and bucket = ?",
		destRoot, bucket,
	).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return int(seq.Int64), nil
}
