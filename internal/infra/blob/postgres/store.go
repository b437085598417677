// Package postgres stores blobs as rows in a PostgreSQL table via pgx.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"dietinsights/internal/blob/core"
	"dietinsights/internal/infra/blob/sqldb"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/dietinsights?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Dialect is the PostgreSQL flavour of the blobs table.
var Dialect = sqldb.Dialect{Driver: core.DriverPostgres, BinaryType: "BYTEA", Placeholder: sqldb.DollarN}

// Store is a sqldb.Store opened on a Postgres DSN.
type Store struct {
	*sqldb.Store
}

// New connects to dsn (falls back to defaultDSN), pings, and ensures the
// blobs table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	inner, err := sqldb.New(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.DB().Close() }

// OverrideSQLOpen swaps the sql.Open hook (tests) and returns a restore func.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}
