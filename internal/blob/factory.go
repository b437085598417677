package blob

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and parameterizes a blob driver.
type Config struct {
	Driver      Driver   `yaml:"driver" toml:"driver"`
	FSRoot      string   `yaml:"fs_root" toml:"fs_root"`
	SQLitePath  string   `yaml:"sqlite_path" toml:"sqlite_path"`
	PostgresDSN string   `yaml:"postgres_dsn" toml:"postgres_dsn"`
	S3          S3Config `yaml:"s3" toml:"s3"`
}

// Open builds the Store named by cfg.Driver (default fs).
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := Driver(strings.ToLower(strings.TrimSpace(string(cfg.Driver))))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return NewSQLite(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return NewPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
