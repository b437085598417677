package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"dietinsights/internal/blob"
	"dietinsights/internal/cache"
	"dietinsights/pkg/domain"
)

const rawCSV = "Diet_type,Recipe_name,Cuisine_type,Protein(g),Carbs(g),Fat(g)\n" +
	"keto,Egg Bowl,american,30,5,20\n" +
	"Keto,Steak Plate,american,25,7,18\n" +
	"vegan,Chickpea Chicken-Free Salad,mediterranean,14,30,9\n" +
	"paleo,Chicken Thighs,american,35,2,15\n" +
	"dash,Lemon Chicken,american,28,12,6\n" +
	"invalid_diet,Mystery,french,10,10,10\n"

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) record(level, msg string) {
	c.mu.Lock()
	c.calls = append(c.calls, level+":"+msg)
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.record("d", msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.record("i", msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.record("w", msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.record("e", msg) }

func (c *captureLogger) has(entry string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call == entry {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetrics struct {
	calls       []metricsCall
	resolutions map[string]string
}

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetrics) ObserveResolution(view, path string) {
	if c.resolutions == nil {
		c.resolutions = map[string]string{}
	}
	c.resolutions[view] = path
}

func (c *captureMetrics) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

// steppingClock advances one second per call.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (s *steppingClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(time.Second)
	return s.now
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *cache.Store) {
	t.Helper()
	store := cache.NewStore(blob.NewMemory(), cache.DefaultKeys())
	return NewService(store, domain.DefaultWhitelist(), opts...), store
}

func ingested(t *testing.T, opts ...ServiceOption) (*Service, *cache.Store) {
	t.Helper()
	svc, store := newTestService(t, opts...)
	if _, err := svc.Ingest(context.Background(), []byte(rawCSV)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return svc, store
}
