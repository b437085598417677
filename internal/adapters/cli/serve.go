package cli

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"dietinsights/internal/adapters/httpapi"
	"dietinsights/internal/blob"
	"dietinsights/internal/pipeline"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			handlerOpts := []httpapi.Option{
				httpapi.WithRateLimit(a.cfg.Server.RateLimit, a.cfg.Server.RateBurst),
				httpapi.WithDefaultPageSize(a.cfg.Server.DefaultPageSize),
			}
			if a.cfg.Server.MetricsEnabled {
				handlerOpts = append(handlerOpts, httpapi.WithMetricsHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
			}
			handler := httpapi.NewHandler(a.svc, handlerOpts...)

			watchErr := make(chan error, 1)
			if watch {
				w, err := newWatcher(a)
				if err != nil {
					return err
				}
				go func() { watchErr <- w.Watch(ctx) }()
			}

			timeout := time.Duration(a.cfg.Server.ShutdownTimeoutSec) * time.Second
			err := httpapi.ListenAndServe(ctx, addr, handler, timeout, func(bound net.Addr) {
				a.log.Info("listening", "addr", bound.String(), "driver", a.cfg.Storage.Driver)
			})
			stop()
			if watch {
				if werr := <-watchErr; werr != nil {
					err = errors.Join(err, werr)
				}
			}
			return err
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().BoolVar(&watch, "watch", false, "also rerun the pipeline when the raw dataset file changes (fs driver only)")
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Rerun the pipeline whenever the raw dataset file changes",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			w, err := newWatcher(a)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.log.Info("watching raw dataset", "path", a.cfg.RawPath())
			return w.Watch(ctx)
		}),
	}
}

func newWatcher(a *app) (*pipeline.Watcher, error) {
	if a.cfg.Storage.Driver != blob.DriverFilesystem {
		return nil, errors.New("watch requires the fs blob driver")
	}
	debounce := time.Duration(a.cfg.Watch.DebounceMS) * time.Millisecond
	w := pipeline.NewWatcher(a.cfg.RawPath(), debounce, func(ctx context.Context) error {
		_, err := a.svc.RunPipeline(ctx)
		return err
	})
	w.OnResult(func(err error) {
		if err == nil {
			a.log.Info("raw dataset change processed")
		}
	})
	return w, nil
}
