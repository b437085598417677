package resolver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dietinsights/internal/blob"
	"dietinsights/internal/cache"
	"dietinsights/internal/pipeline"
	"dietinsights/pkg/domain"
)

const rawCSV = "Diet_type,Recipe_name,Cuisine_type,Protein(g),Carbs(g),Fat(g)\n" +
	"keto,Egg Bowl,american,30,5,20\n" +
	"Keto,Steak Plate,american,25,7,18\n" +
	"vegan,Chickpea Chicken-Free Salad,mediterranean,14,30,9\n" +
	"paleo,Chicken Thighs,american,35,2,15\n" +
	"dash,Lemon Chicken,american,28,12,6\n" +
	"invalid_diet,Mystery,french,10,10,10\n"

// writeCounter fails the test if the resolver writes anything.
type writeCounter struct {
	blob.Store
	t *testing.T
}

func (w writeCounter) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	w.t.Fatalf("resolver must not write")
	return blob.Info{}, nil
}

func (w writeCounter) Delete(context.Context, string) (bool, error) {
	w.t.Fatalf("resolver must not delete")
	return false, nil
}

func seeded(t *testing.T) (blob.Store, *cache.Store) {
	t.Helper()
	mem := blob.NewMemory()
	store := cache.NewStore(mem, cache.DefaultKeys())
	_, err := pipeline.New(store, domain.DefaultWhitelist()).Ingest(context.Background(), []byte(rawCSV))
	require.NoError(t, err)
	return mem, store
}

func readOnly(t *testing.T, mem blob.Store, opts ...Option) *Resolver {
	return New(cache.NewStore(writeCounter{Store: mem, t: t}, cache.DefaultKeys()), domain.DefaultWhitelist(), opts...)
}

func TestResolveCacheHit(t *testing.T) {
	mem, _ := seeded(t)
	r := readOnly(t, mem)
	for _, kind := range domain.ViewKinds {
		res, err := r.Resolve(context.Background(), kind)
		require.NoError(t, err)
		assert.Equal(t, PathCacheHit, res.Path, kind)
		assert.Empty(t, res.MissReason)
		assert.Equal(t, kind, res.View.Kind)
	}
}

func TestResolveFallsBackToCleaned(t *testing.T) {
	mem, store := seeded(t)
	_, err := store.ClearArtifact(context.Background())
	require.NoError(t, err)

	res, err := readOnly(t, mem).Resolve(context.Background(), domain.ViewBar)
	require.NoError(t, err)
	assert.Equal(t, PathFallbackCleaned, res.Path)
	assert.True(t, res.Path.Fallback())
	assert.Contains(t, res.MissReason, "artifact absent")
	assert.InDelta(t, 27.5, res.View.Bar["Keto"], 1e-9)

	// fallback never repopulates the cache
	_, err = store.ReadArtifact(context.Background())
	assert.True(t, errors.Is(err, blob.ErrNotFound))
}

func TestResolveFallsBackToRaw(t *testing.T) {
	mem := blob.NewMemory()
	_, err := mem.Put(context.Background(), cache.DefaultKeys().Raw(), bytes.NewReader([]byte(rawCSV)), blob.PutOptions{})
	require.NoError(t, err)
	res, err := readOnly(t, mem).Resolve(context.Background(), domain.ViewInsights)
	require.NoError(t, err)
	assert.Equal(t, PathFallbackRaw, res.Path)
	assert.Len(t, res.View.Insights, 4)
}

func TestResolveNoDataset(t *testing.T) {
	_, err := readOnly(t, blob.NewMemory()).Resolve(context.Background(), domain.ViewLine)
	assert.True(t, errors.Is(err, ErrNoDataset))
}

func TestResolveCorruptArtifactFallsBack(t *testing.T) {
	mem, _ := seeded(t)
	_, err := mem.Put(context.Background(), cache.DefaultKeys().Artifact(), bytes.NewReader([]byte(`{"bar_chart":`)), blob.PutOptions{})
	require.NoError(t, err)
	res, err := readOnly(t, mem).Resolve(context.Background(), domain.ViewBar)
	require.NoError(t, err)
	assert.Equal(t, PathFallbackCleaned, res.Path)
	assert.Contains(t, res.MissReason, "unparseable")
}

func TestResolveMissingViewInArtifact(t *testing.T) {
	mem, _ := seeded(t)
	_, err := mem.Put(context.Background(), cache.DefaultKeys().Artifact(),
		bytes.NewReader([]byte(`{"bar_chart":{"data":{"Keto":1},"title":"x"}}`)), blob.PutOptions{})
	require.NoError(t, err)
	r := readOnly(t, mem, WithFreshnessCheck(false))

	bar, err := r.Resolve(context.Background(), domain.ViewBar)
	require.NoError(t, err)
	assert.Equal(t, PathCacheHit, bar.Path)

	pie, err := r.Resolve(context.Background(), domain.ViewPie)
	require.NoError(t, err)
	assert.Equal(t, PathFallbackCleaned, pie.Path)
}

func TestResolveStaleArtifactIsMiss(t *testing.T) {
	ctx := context.Background()
	mem, store := seeded(t)
	// a newer cleaned dataset lands without a matching artifact
	_, err := store.WriteCleaned(ctx, []byte("Diet_type,Recipe_name,Cuisine_type,Protein(g),Carbs(g),Fat(g)\nKeto,Solo,American,10,1,1\n"), 1)
	require.NoError(t, err)

	res, err := readOnly(t, mem).Resolve(ctx, domain.ViewBar)
	require.NoError(t, err)
	assert.Equal(t, PathFallbackCleaned, res.Path)
	assert.Contains(t, res.MissReason, "stale")
	assert.Equal(t, map[string]float64{"Keto": 10}, res.View.Bar)

	unchecked, err := readOnly(t, mem, WithFreshnessCheck(false)).Resolve(ctx, domain.ViewBar)
	require.NoError(t, err)
	assert.Equal(t, PathCacheHit, unchecked.Path)
}

func TestResolveSchemaVersionMismatch(t *testing.T) {
	mem, _ := seeded(t)
	_, err := mem.Put(context.Background(), cache.DefaultKeys().Artifact(),
		bytes.NewReader([]byte(`{"bar_chart":{"data":{"Keto":1}},"freshness":{"schema_version":99}}`)), blob.PutOptions{})
	require.NoError(t, err)
	res, err := readOnly(t, mem).Resolve(context.Background(), domain.ViewBar)
	require.NoError(t, err)
	assert.Equal(t, PathFallbackCleaned, res.Path)
}

// Cache hit and forced recompute agree for every view.
func TestCacheAndFallbackAreEquivalent(t *testing.T) {
	ctx := context.Background()
	mem, store := seeded(t)
	hits := map[domain.ViewKind]domain.AggregateView{}
	for _, kind := range domain.ViewKinds {
		res, err := readOnly(t, mem).Resolve(ctx, kind)
		require.NoError(t, err)
		require.Equal(t, PathCacheHit, res.Path)
		hits[kind] = res.View
	}
	_, err := store.ClearArtifact(ctx)
	require.NoError(t, err)
	for _, kind := range domain.ViewKinds {
		res, err := readOnly(t, mem).Resolve(ctx, kind)
		require.NoError(t, err)
		require.Equal(t, PathFallbackCleaned, res.Path)
		hit := hits[kind]
		for diet, v := range hit.Bar {
			assert.InDelta(t, v, res.View.Bar[diet], 1e-9)
		}
		assert.Len(t, res.View.Macros, len(hit.Macros))
		for diet, m := range hit.Macros {
			got := res.View.Macros[diet]
			assert.InDelta(t, m.Protein, got.Protein, 1e-9)
			assert.InDelta(t, m.Carbs, got.Carbs, 1e-9)
			assert.InDelta(t, m.Fat, got.Fat, 1e-9)
		}
		require.Len(t, res.View.Insights, len(hit.Insights))
		for i, in := range hit.Insights {
			assert.Equal(t, in.DietType, res.View.Insights[i].DietType)
			assert.Equal(t, in.Count, res.View.Insights[i].Count)
			assert.InDelta(t, in.Protein, res.View.Insights[i].Protein, 1e-9)
		}
	}
}

func TestLoadDatasetPrefersCleaned(t *testing.T) {
	mem, _ := seeded(t)
	ds, path, err := readOnly(t, mem).LoadDataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PathFallbackCleaned, path)
	assert.Equal(t, 5, ds.Len())
}

func TestResolveUnknownKind(t *testing.T) {
	_, err := readOnly(t, blob.NewMemory()).Resolve(context.Background(), domain.ViewKind("radar"))
	assert.Error(t, err)
}

type outage struct{ blob.Store }

func (outage) Get(context.Context, string) (blob.Info, io.ReadCloser, error) {
	return blob.Info{}, nil, errors.New("connection refused")
}

func TestResolveStorageOutageSurfaces(t *testing.T) {
	r := New(cache.NewStore(outage{Store: blob.NewMemory()}, cache.DefaultKeys()), domain.DefaultWhitelist())
	_, err := r.Resolve(context.Background(), domain.ViewBar)
	var unavailable domain.StorageUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, cache.DefaultKeys().Cleaned(), unavailable.Key)
}
