package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports operation latency and view resolution
// counts as Prometheus collectors.
type PrometheusMetricsRecorder struct {
	durations   *prometheus.HistogramVec
	resolutions *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the collectors with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dietinsights",
			Name:      "operation_duration_seconds",
			Help:      "Duration of service operations by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dietinsights",
			Name:      "view_resolutions_total",
			Help:      "Views served, by view and resolution path.",
		}, []string{"view", "path"}),
	}
	for _, c := range []prometheus.Collector{r.durations, r.resolutions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// ObserveResolution implements ResolutionObserver.
func (r *PrometheusMetricsRecorder) ObserveResolution(view, path string) {
	r.resolutions.WithLabelValues(view, path).Inc()
}

// MultiMetricsRecorder fans observations out to several recorders.
type MultiMetricsRecorder []MetricsRecorder

// Observe implements MetricsRecorder.
func (m MultiMetricsRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		r.Observe(ctx, operation, success, duration)
	}
}

// ObserveResolution forwards to every recorder that counts resolutions.
func (m MultiMetricsRecorder) ObserveResolution(view, path string) {
	for _, r := range m {
		if obs, ok := r.(ResolutionObserver); ok {
			obs.ObserveResolution(view, path)
		}
	}
}
