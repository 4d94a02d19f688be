package manifest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"catalog-harvester/lib/testutil"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	return NewStore(testutil.SetupDB(t, testutil.DBParams{
		Name:    "lib/manifest",
		Migrate: Migrate,
	}))
}

func TestRuns(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	store := newTestStore(t)

	first, err := store.BeginRun(ctx, "scrape", "aws-whitepapers")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	first.OK = 10
	first.Failed = 2
	first.Complete = true
	require.NoError(t, store.FinishRun(ctx, first))

	second, err := store.BeginRun(ctx, "download", "")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, second.ID, runs[0].ID)
	require.True(t, runs[0].FinishedAt.IsZero())

	require.Equal(t, first.ID, runs[1].ID)
	require.Equal(t, 10, runs[1].OK)
	require.Equal(t, 2, runs[1].Failed)
	require.True(t, runs[1].Complete)
	require.False(t, runs[1].FinishedAt.IsZero())
}

func TestAssets(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	run, err := store.BeginRun(ctx, "download", "")
	require.NoError(t, err)

	_, ok, err := store.LookupAsset(ctx, "out", "https://example.com/a.pdf")
	require.NoError(t, err)
	require.False(t, ok)

	seq, err := store.MaxSeq(ctx, "out", "2021")
	require.NoError(t, err)
	require.Zero(t, seq)

	for i, url := range []string{"https://example.com/a.pdf", "https://example.com/b.pdf"} {
		err := store.RecordAsset(ctx, Asset{
			DestRoot: "out",
			URL:      url,
			Bucket:   "2021",
			Seq:      i + 1,
			Path:     filepath.Join("out", "2021", "x.pdf"),
			SHA256:   "abc",
			Size:     42,
			RunID:    run.ID,
		})
		require.NoError(t, err)
	}

	asset, ok, err := store.LookupAsset(ctx, "out", "https://example.com/b.pdf")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, asset.Seq)
	require.Equal(t, int64(42), asset.Size)

	seq, err = store.MaxSeq(ctx, "out", "2021")
	require.NoError(t, err)
	require.Equal(t, 2, seq)

	seq, err = store.MaxSeq(ctx, "out", "2020")
	require.NoError(t, err)
	require.Zero(t, seq)

	// other trees number on their own
	_, ok, err = store.LookupAsset(ctx, "mirror", "https://example.com/b.pdf")
	require.NoError(t, err)
	require.False(t, ok)
	seq, err = store.MaxSeq(ctx, "mirror", "2021")
	require.NoError(t, err)
	require.Zero(t, seq)

	err = store.RecordAsset(ctx, Asset{
		DestRoot: "mirror",
		URL:      "https://example.com/b.pdf",
		Bucket:   "2021",
		Seq:      1,
		Path:     filepath.Join("mirror", "2021", "1.pdf"),
		SHA256:   "abc",
		Size:     42,
		RunID:    run.ID,
	})
	require.NoError(t, err)

	asset, ok, err = store.LookupAsset(ctx, "out", "https://example.com/b.pdf")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, asset.Seq)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "manifest.db")
	store, err := Open(Config{File: path})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.BeginRun(context.Background(), "split", "")
	require.NoError(t, err)

	require.False(t, Config{}.Enabled())
	require.True(t, Config{File: path}.Enabled())
}
