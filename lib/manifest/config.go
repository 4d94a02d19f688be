package manifest

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

type Config struct {
	// File is a local sqlite database, created if it does not exist.
	File string `json:"file"`
	// Url points at a remote libsql database and takes precedence over File.
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (c Config) Enabled() bool {
	return c.File != "" || c.Url != ""
}

func (c Config) OpenDB() (*sql.DB, error) {
	if c.Url != "" {
		var opts []libsql.Option
		if c.AuthToken != "" {
			opts = append(opts, libsql.WithAuthToken(c.AuthToken))
		}
		connector, err := libsql.NewConnector(c.Url, opts...)
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(connector), nil
	}
	if c.File == "" {
		return nil, fmt.Errorf("a manifest path was not specified")
	}

	if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", c.File)
	if err != nil {
		return nil, err
	}
	// sqlite only allows a single writer
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Open connects to the configured database and creates the tables.
func Open(c Config) (Store, error) {
	db, err := c.OpenDB()
	if err != nil {
		return Store{}, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return Store{}, err
	}
	return NewStore(db), nil
}

// Migrate runs the schema one statement at a time, remote libsql
// connections do not accept several statements in one call.
func Migrate(db *sql.DB) error {
	for _, stmt := range strings.Split(Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate manifest: %w", err)
		}
	}
	return nil
}
