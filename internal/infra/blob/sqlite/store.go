// Package sqlite stores blobs in an embedded SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"dietinsights/internal/blob/core"
	"dietinsights/internal/infra/blob/sqldb"
)

const defaultPath = "dietinsights.db"

// Dialect is the SQLite flavour of the blobs table.
var Dialect = sqldb.Dialect{Driver: core.DriverSQLite, BinaryType: "BLOB", Placeholder: sqldb.QuestionMarks}

// Store is a sqldb.Store opened on a SQLite file.
type Store struct {
	*sqldb.Store
	path string
}

// New opens (creating if needed) the SQLite database at path.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time keeps upserts from tripping SQLITE_BUSY
	db.SetMaxOpenConns(1)
	inner, err := sqldb.New(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.DB().Close() }
