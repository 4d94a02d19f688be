package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"catalog-harvester/lib/cleaner"
	"catalog-harvester/lib/harvest"

	"github.com/stretchr/testify/require"
)

func TestWriteFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	records := []cleaner.Record{
		{
			Fields: []harvest.FieldValue{
				{Name: "name", Value: harvest.Text("Q&A <guide>")},
				{Name: "date", Value: harvest.Text("May 2020")},
			},
			Year:  2020,
			Month: 5,
			Dated: true,
		},
	}
	require.NoError(t, Write(path, records))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	expected := `[
    {
        "name": "Q&A <guide>",
        "date": "May 2020",
        "year": 2020,
        "month": 5
    }
]
`
	require.Equal(t, expected, string(contents))

	read, err := Read[cleaner.Record](path)
	require.NoError(t, err)
	require.Len(t, read, 1)
	name, ok := read[0].Get("name")
	require.True(t, ok)
	require.Equal(t, "Q&A <guide>", name)
	require.Equal(t, 2020, read[0].Year)
}

func TestWriteEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, Write[harvest.RawRecord](path, nil))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(contents))
}

func TestReadMissing(t *testing.T) {
	_, err := Read[cleaner.Record](filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
