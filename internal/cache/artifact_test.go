package cache

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dietinsights/pkg/domain"
)

func bundle() domain.Bundle {
	keto := domain.MacroMeans{Protein: 27.5, Carbs: 6, Fat: 19}
	return domain.Bundle{
		Bar:      domain.AggregateView{Kind: domain.ViewBar, Bar: map[string]float64{"Keto": 27.5}},
		Line:     domain.AggregateView{Kind: domain.ViewLine, Macros: map[string]domain.MacroMeans{"Keto": keto}},
		Pie:      domain.AggregateView{Kind: domain.ViewPie, Macros: map[string]domain.MacroMeans{"Keto": keto}},
		Insights: domain.AggregateView{Kind: domain.ViewInsights, Insights: []domain.DietInsight{{DietType: "Keto", Protein: 27.5, Carbs: 6, Fat: 19, Count: 2}}},
	}
}

func TestEncodeLayout(t *testing.T) {
	f := Freshness{SchemaVersion: SchemaVersion, SourceDigest: "abc", RowCount: 2, GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	data, err := Encode(bundle(), f)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, k := range []string{"bar_chart", "line_chart", "pie_chart", "insights", "freshness"} {
		assert.Contains(t, doc, k)
	}
	bar := doc["bar_chart"].(map[string]any)
	assert.Equal(t, barTitle, bar["title"])
	assert.Equal(t, 27.5, bar["data"].(map[string]any)["Keto"])
	pie := doc["pie_chart"].(map[string]any)["Keto"].(map[string]any)
	assert.Equal(t, 19.0, pie["Fat(g)"])
	ins := doc["insights"].(map[string]any)["diet_insights"].([]any)[0].(map[string]any)
	assert.Equal(t, "Keto", ins["Diet_type"])
	assert.Equal(t, 2.0, ins["count"])
}

func TestDecodeViews(t *testing.T) {
	f := Freshness{SchemaVersion: SchemaVersion, SourceDigest: "abc", RowCount: 2}
	data, err := Encode(bundle(), f)
	require.NoError(t, err)
	a, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "abc", a.Freshness.SourceDigest)

	w := domain.DefaultWhitelist()
	want := bundle()
	for _, kind := range domain.ViewKinds {
		got, err := a.View(kind, w)
		require.NoError(t, err, kind)
		exp, _ := want.View(kind)
		assert.Equal(t, exp, got)
	}
}

func TestDecodeLegacyArtifactWithoutFreshness(t *testing.T) {
	a, err := Decode([]byte(`{"bar_chart":{"data":{"Vegan":12.5},"title":"t"}}`))
	require.NoError(t, err)
	assert.Zero(t, a.Freshness.SchemaVersion)
	v, err := a.View(domain.ViewBar, domain.DefaultWhitelist())
	require.NoError(t, err)
	assert.Equal(t, 12.5, v.Bar["Vegan"])
}

func TestViewMisses(t *testing.T) {
	w := domain.DefaultWhitelist()
	cases := map[string]struct {
		doc  string
		kind domain.ViewKind
	}{
		"absent":          {`{}`, domain.ViewLine},
		"null":            {`{"pie_chart":null}`, domain.ViewPie},
		"wrong shape":     {`{"bar_chart":{"data":["Keto"]}}`, domain.ViewBar},
		"no data":         {`{"line_chart":{"title":"x"}}`, domain.ViewLine},
		"unlisted diet":   {`{"bar_chart":{"data":{"Carnivore":1}}}`, domain.ViewBar},
		"negative":        {`{"pie_chart":{"Keto":{"Protein(g)":-1,"Carbs(g)":1,"Fat(g)":1}}}`, domain.ViewPie},
		"insights null":   {`{"insights":{"diet_insights":null}}`, domain.ViewInsights},
		"string as value": {`{"bar_chart":{"data":{"Keto":"27.5"}}}`, domain.ViewBar},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			a, err := Decode([]byte(tc.doc))
			require.NoError(t, err)
			_, err = a.View(tc.kind, w)
			var miss domain.CacheMissError
			require.True(t, errors.As(err, &miss), "got %v", err)
			assert.Equal(t, tc.kind, miss.View)
		})
	}
}

func TestDecodeRejectsNonObject(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
	_, err = Decode([]byte(`null`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{"freshness":"x"}`))
	assert.Error(t, err)
}
