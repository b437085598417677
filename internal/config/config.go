// Package config loads dietinsights settings from defaults, an optional YAML
// or TOML file, a .env file and DIETINSIGHTS_* environment variables, in that
// order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"dietinsights/internal/blob"
	"dietinsights/internal/cache"
	"dietinsights/internal/logger"
	"dietinsights/pkg/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DIETINSIGHTS_"

// Configuration validation errors.
var (
	ErrUnknownDriver     = errors.New("storage.driver must be one of: fs, memory, s3, sqlite, postgres")
	ErrMissingBucket     = errors.New("storage.s3.bucket is required for the s3 driver")
	ErrMissingAddr       = errors.New("server.addr is required")
	ErrInvalidRateLimit  = errors.New("server.rate_limit must be non-negative")
	ErrInvalidRateBurst  = errors.New("server.rate_burst must be at least 1 when rate limiting is enabled")
	ErrInvalidPageSize   = errors.New("server.default_page_size must be at least 1")
	ErrInvalidDebounce   = errors.New("watch.debounce_ms must be non-negative")
	ErrEmptyWhitelist    = errors.New("diets must list at least one diet")
	ErrInvalidLogLevel   = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat  = errors.New("logging.format must be 'text' or 'json'")
	ErrUnsupportedFormat = errors.New("config file must be .yaml, .yml or .toml")
)

// Config is the complete runtime configuration.
type Config struct {
	Storage blob.Config   `yaml:"storage" toml:"storage"`
	Cache   CacheConfig   `yaml:"cache" toml:"cache"`
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Watch   WatchConfig   `yaml:"watch" toml:"watch"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Diets   []string      `yaml:"diets" toml:"diets"`
}

// CacheConfig controls the blob key layout and read-path freshness checks.
type CacheConfig struct {
	Container      string `yaml:"container" toml:"container"`
	FreshnessCheck bool   `yaml:"freshness_check" toml:"freshness_check"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Addr               string  `yaml:"addr" toml:"addr"`
	RateLimit          float64 `yaml:"rate_limit" toml:"rate_limit"`
	RateBurst          int     `yaml:"rate_burst" toml:"rate_burst"`
	DefaultPageSize    int     `yaml:"default_page_size" toml:"default_page_size"`
	MetricsEnabled     bool    `yaml:"metrics_enabled" toml:"metrics_enabled"`
	ShutdownTimeoutSec int     `yaml:"shutdown_timeout_sec" toml:"shutdown_timeout_sec"`
}

// WatchConfig configures the raw dataset watcher.
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms" toml:"debounce_ms"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: blob.Config{
			Driver:     blob.DriverFilesystem,
			FSRoot:     "./data",
			SQLitePath: "dietinsights.db",
			S3:         blob.S3Config{Region: "us-east-1"},
		},
		Cache: CacheConfig{Container: cache.DefaultContainer, FreshnessCheck: true},
		Server: ServerConfig{
			Addr:               ":8080",
			RateBurst:          20,
			DefaultPageSize:    10,
			MetricsEnabled:     true,
			ShutdownTimeoutSec: 10,
		},
		Watch:   WatchConfig{DebounceMS: 500},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Diets:   domain.DefaultWhitelist().Diets(),
	}
}

// Load builds the configuration. path may be empty. dotenv names a .env file
// to read into the environment when present (empty skips it); variables
// already set in the process environment are not overwritten.
func Load(path, dotenv string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", dotenv, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.Storage.Driver = blob.Driver(strings.ToLower(strings.TrimSpace(string(cfg.Storage.Driver))))
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	if v, ok := lookup(EnvPrefix + "BLOB_DRIVER"); ok {
		cfg.Storage.Driver = blob.Driver(v)
	}
	str("FS_ROOT", &cfg.Storage.FSRoot)
	str("SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("S3_REGION", &cfg.Storage.S3.Region)
	str("S3_BUCKET", &cfg.Storage.S3.Bucket)
	str("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	str("S3_ACCESS_KEY_ID", &cfg.Storage.S3.AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &cfg.Storage.S3.SecretAccessKey)
	str("S3_SESSION_TOKEN", &cfg.Storage.S3.SessionToken)
	boolean("S3_PATH_STYLE", &cfg.Storage.S3.PathStyle)

	str("CACHE_CONTAINER", &cfg.Cache.Container)
	boolean("FRESHNESS_CHECK", &cfg.Cache.FreshnessCheck)

	str("ADDR", &cfg.Server.Addr)
	float("RATE_LIMIT", &cfg.Server.RateLimit)
	integer("RATE_BURST", &cfg.Server.RateBurst)
	integer("DEFAULT_PAGE_SIZE", &cfg.Server.DefaultPageSize)
	boolean("METRICS_ENABLED", &cfg.Server.MetricsEnabled)
	integer("SHUTDOWN_TIMEOUT_SEC", &cfg.Server.ShutdownTimeoutSec)

	integer("WATCH_DEBOUNCE_MS", &cfg.Watch.DebounceMS)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	if v, ok := lookup(EnvPrefix + "DIETS"); ok {
		cfg.Diets = nil
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.Diets = append(cfg.Diets, d)
			}
		}
	}
	return errors.Join(errs...)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case blob.DriverFilesystem, blob.DriverMemory, blob.DriverSQLite, blob.DriverPostgres:
	case blob.DriverS3:
		if c.Storage.S3.Bucket == "" {
			return ErrMissingBucket
		}
	default:
		return fmt.Errorf("%w: got %q", ErrUnknownDriver, c.Storage.Driver)
	}
	if c.Server.Addr == "" {
		return ErrMissingAddr
	}
	if c.Server.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return ErrInvalidRateBurst
	}
	if c.Server.DefaultPageSize < 1 {
		return ErrInvalidPageSize
	}
	if c.Watch.DebounceMS < 0 {
		return ErrInvalidDebounce
	}
	if c.Whitelist().Len() == 0 {
		return ErrEmptyWhitelist
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return ErrInvalidLogLevel
	}
	if f := strings.ToLower(c.Logging.Format); f != "" && f != "text" && f != "json" {
		return ErrInvalidLogFormat
	}
	return nil
}

// Whitelist returns the configured diet whitelist.
func (c *Config) Whitelist() domain.Whitelist {
	return domain.NewWhitelist(c.Diets...)
}

// Keys returns the cache key layout.
func (c *Config) Keys() cache.Keys {
	return cache.Keys{Container: c.Cache.Container}
}

// RawPath returns the on-disk path of the raw dataset for the fs driver.
func (c *Config) RawPath() string {
	return filepath.Join(c.Storage.FSRoot, filepath.FromSlash(c.Keys().Raw()))
}
