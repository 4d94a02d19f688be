package testutil

import (
	"database/sql"
	"fmt"
	"testing"

	"catalog-harvester/lib/telemetry"

	_ "modernc.org/sqlite"
)

type DBParams struct {
	Name string
	// Migrate creates the tables, it is skipped when nil.
	Migrate func(db *sql.DB) error
	// if unspecified, it will use `:memory:`
	Path string
}

// SetupDB opens a sqlite database for a test and closes it when the test
// ends.
func SetupDB(t testing.TB, params DBParams) *sql.DB {
	t.Helper()
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name))
	t.Cleanup(cleanup)

	dbpath := ":memory:"
	if params.Path != "" {
		dbpath = params.Path
	}
	db, err := sql.Open("sqlite", dbpath)
	if err != nil {
		t.Fatal(err)
	}
	// every connection to :memory: is a different database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if params.Migrate != nil {
		if err := params.Migrate(db); err != nil {
			t.Fatal(err)
		}
	}
	return db
}
