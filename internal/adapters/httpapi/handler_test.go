package httpapi_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dietinsights/internal/adapters/httpapi"
	"dietinsights/internal/blob"
	"dietinsights/internal/cache"
	"dietinsights/internal/core"
	"dietinsights/pkg/domain"
)

const rawCSV = "Diet_type,Recipe_name,Cuisine_type,Protein(g),Carbs(g),Fat(g)\n" +
	"keto,Egg Bowl,american,30,5,20\n" +
	"Keto,Steak Plate,american,25,7,18\n" +
	"vegan,Chickpea Chicken-Free Salad,mediterranean,14,30,9\n" +
	"paleo,Chicken Thighs,american,35,2,15\n" +
	"dash,Lemon Chicken,american,28,12,6\n"

func setup(t *testing.T, ingest bool, opts ...httpapi.Option) (*core.Service, *httptest.Server) {
	t.Helper()
	svc := core.NewService(cache.NewStore(blob.NewMemory(), cache.DefaultKeys()), domain.DefaultWhitelist())
	if ingest {
		_, err := svc.Ingest(context.Background(), []byte(rawCSV))
		require.NoError(t, err)
	}
	srv := httptest.NewServer(httpapi.NewHandler(svc, opts...))
	t.Cleanup(srv.Close)
	return svc, srv
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthz(t *testing.T) {
	_, srv := setup(t, false)
	resp := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChartsArePNG(t *testing.T) {
	_, srv := setup(t, true)
	for _, path := range []string{"/api/v1/charts/bar", "/api/v1/charts/line", "/api/v1/charts/pie?diet=vegan"} {
		resp := get(t, srv.URL+path)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		assert.NotEmpty(t, resp.Header.Get("X-Elapsed-Seconds"))
		assert.Equal(t, "cache_hit", resp.Header.Get("X-Cache-Path"))
		_, err := png.Decode(resp.Body)
		require.NoError(t, err, path)
	}
	resp := get(t, srv.URL+"/api/v1/charts/pie")
	assert.Equal(t, "Keto", resp.Header.Get("X-Diet"))
}

func TestPieRejectsUnknownDiet(t *testing.T) {
	_, srv := setup(t, true)
	resp := get(t, srv.URL+"/api/v1/charts/pie?diet=Zzz")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body struct {
		Error   string   `json:"error"`
		Allowed []string `json:"allowed_diets"`
	}
	decode(t, resp, &body)
	assert.Equal(t, domain.DefaultWhitelist().Diets(), body.Allowed)

	resp = get(t, srv.URL+"/api/v1/views/pie?diet=mediterranean")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInsightsJSON(t *testing.T) {
	_, srv := setup(t, true)
	resp := get(t, srv.URL+"/api/v1/insights")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		ElapsedSeconds float64              `json:"elapsed_seconds"`
		CachePath      string               `json:"cache_path"`
		DietInsights   []domain.DietInsight `json:"diet_insights"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "cache_hit", body.CachePath)
	require.Len(t, body.DietInsights, 4)
	assert.Equal(t, "Dash", body.DietInsights[0].DietType)
}

func TestViewFallsBackAfterCacheClear(t *testing.T) {
	_, srv := setup(t, true)
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/cache", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, srv.URL+"/api/v1/views/bar")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fallback_cleaned", resp.Header.Get("X-Cache-Path"))
	var body struct {
		Data       map[string]float64 `json:"data"`
		MissReason string             `json:"miss_reason"`
	}
	decode(t, resp, &body)
	assert.InDelta(t, 27.5, body.Data["Keto"], 1e-9)
	assert.NotEmpty(t, body.MissReason)
}

func TestSearch(t *testing.T) {
	_, srv := setup(t, true)
	resp := get(t, srv.URL+"/api/v1/search?diet=All&keyword=chicken&page=1&page_size=10")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Records    []domain.Record `json:"records"`
		Pagination struct {
			Total      int `json:"total"`
			TotalPages int `json:"total_pages"`
		} `json:"pagination"`
	}
	decode(t, resp, &body)
	assert.Len(t, body.Records, 3)
	assert.Equal(t, 3, body.Pagination.Total)
	assert.Equal(t, 1, body.Pagination.TotalPages)
}

func TestSearchCSV(t *testing.T) {
	_, srv := setup(t, true)
	resp := get(t, srv.URL+"/api/v1/search?diet=keto&format=csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	rows, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, domain.RequiredColumns, rows[0])
	assert.Equal(t, "Keto", rows[1][0])
}

func TestSearchRejectsBadParameters(t *testing.T) {
	_, srv := setup(t, true)
	for _, q := range []string{"page=0", "page_size=0", "page=x", "diet=Zzz", "format=xml"} {
		resp := get(t, srv.URL+"/api/v1/search?"+q)
		assert.GreaterOrEqual(t, resp.StatusCode, 400, q)
		assert.Less(t, resp.StatusCode, 500, q)
	}
}

func TestNoDatasetIsNotFound(t *testing.T) {
	_, srv := setup(t, false)
	resp := get(t, srv.URL+"/api/v1/views/line")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEmptyDatasetViews(t *testing.T) {
	svc, srv := setup(t, false)
	require.NoError(t, svc.Store().WriteRaw(context.Background(), []byte("Diet_type,Recipe_name,Cuisine_type,Protein(g),Carbs(g),Fat(g)\n")))

	resp := get(t, srv.URL+"/api/v1/views/bar")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Data map[string]float64 `json:"data"`
	}
	decode(t, resp, &body)
	assert.Empty(t, body.Data)

	resp = get(t, srv.URL+"/api/v1/charts/bar")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPipelineRunUpload(t *testing.T) {
	_, srv := setup(t, false)
	resp, err := http.Post(srv.URL+"/api/v1/pipeline/runs", "text/csv", strings.NewReader(rawCSV))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body struct {
		Run struct {
			RunID string `json:"run_id"`
			Rows  int    `json:"rows"`
		} `json:"run"`
	}
	decode(t, resp, &body)
	assert.NotEmpty(t, body.Run.RunID)
	assert.Equal(t, 5, body.Run.Rows)

	status := get(t, srv.URL+"/api/v1/cache")
	var st core.StatusReport
	decode(t, status, &st)
	assert.True(t, st.ArtifactFresh)
}

func TestPipelineRunFailures(t *testing.T) {
	_, srv := setup(t, false)
	resp, err := http.Post(srv.URL+"/api/v1/pipeline/runs", "text/csv", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/pipeline/runs", "text/csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	_, srv := setup(t, true)
	resp, err := http.Post(srv.URL+"/api/v1/insights", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = get(t, srv.URL+"/api/v1/pipeline/runs")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp = get(t, srv.URL+"/api/v1/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	_, srv := setup(t, true, httpapi.WithRateLimit(0.001, 1))
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/insights").StatusCode)
	limited := get(t, srv.URL+"/api/v1/insights")
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	assert.Equal(t, "1", limited.Header.Get("Retry-After"))
	// health checks bypass the limiter
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/healthz").StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := core.NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	svc := core.NewService(cache.NewStore(blob.NewMemory(), cache.DefaultKeys()), domain.DefaultWhitelist(), core.WithMetricsRecorder(rec))
	_, err = svc.Ingest(context.Background(), []byte(rawCSV))
	require.NoError(t, err)
	srv := httptest.NewServer(httpapi.NewHandler(svc, httpapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))))
	t.Cleanup(srv.Close)

	get(t, srv.URL+"/api/v1/views/bar")
	resp := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), `dietinsights_view_resolutions_total{path="cache_hit",view="bar"} 1`)
}

func TestListenAndServeShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- httpapi.ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler(), time.Second, func(a net.Addr) { addrCh <- a })
	}()
	addr := <-addrCh
	resp, err := http.Get("http://" + addr.String() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
