package blob

import (
	"context"

	"dietinsights/internal/infra/blob/fs"
	"dietinsights/internal/infra/blob/memory"
	"dietinsights/internal/infra/blob/postgres"
	infraS3 "dietinsights/internal/infra/blob/s3"
	"dietinsights/internal/infra/blob/sqlite"
)

// S3Config is the S3 driver configuration.
type S3Config = infraS3.Config

// NewFilesystem stores blobs as files under root.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewMemory keeps blobs in process memory. Contents are lost on exit.
func NewMemory() Store { return memory.New() }

// NewS3 stores blobs in an S3 or MinIO bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return infraS3.New(ctx, cfg) }

// NewMockS3ForTests returns the S3 driver backed by an in-process fake bucket.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }

// NewSQLite stores blobs as rows in the SQLite file at path. Release it with Close.
func NewSQLite(ctx context.Context, path string) (Store, error) { return sqlite.New(ctx, path) }

// NewPostgres stores blobs as rows in a PostgreSQL table. Release it with Close.
func NewPostgres(ctx context.Context, dsn string) (Store, error) { return postgres.New(ctx, dsn) }
