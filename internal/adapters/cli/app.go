package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"dietinsights/internal/blob"
	"dietinsights/internal/cache"
	"dietinsights/internal/config"
	"dietinsights/internal/core"
	"dietinsights/internal/logger"
)

// app bundles everything a command needs.
type app struct {
	cfg      config.Config
	log      *logger.Logger
	blobs    blob.Store
	svc      *core.Service
	registry *prometheus.Registry
}

func newApp(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if opts.verbose {
		level = "debug"
	}
	log := logger.New(cmd.ErrOrStderr(), level, cfg.Logging.Format)

	blobs, err := blob.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Storage.Driver, err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		_ = blob.Close(blobs)
		return nil, err
	}

	svc := core.NewService(
		cache.NewStore(blobs, cfg.Keys()),
		cfg.Whitelist(),
		core.WithLogger(log.With("component", "service")),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{prom, core.NewExpvarMetricsRecorder("")}),
		core.WithFreshnessCheck(cfg.Cache.FreshnessCheck),
	)
	log.Debug("configuration loaded", "driver", cfg.Storage.Driver, "container", cfg.Cache.Container, "diets", cfg.Diets)
	return &app{cfg: cfg, log: log, blobs: blobs, svc: svc, registry: registry}, nil
}

func (a *app) Close() error {
	return blob.Close(a.blobs)
}

// withApp wires the app for a RunE body and releases it afterwards.
func withApp(opts *rootOptions, fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd, opts)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		return fn(cmd, args, a)
	}
}
