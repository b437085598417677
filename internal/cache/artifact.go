package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"dietinsights/pkg/domain"
)

// SchemaVersion is bumped whenever the artifact layout changes; artifacts
// carrying another version are treated as misses.
const SchemaVersion = 1

const (
	barTitle  = "Average Protein by Diet Type"
	lineTitle = "Average Macronutrient Content by Diet Type"
)

// Freshness ties an artifact to the cleaned dataset it was built from.
type Freshness struct {
	SchemaVersion int       `json:"schema_version"`
	SourceDigest  string    `json:"source_digest"`
	RowCount      int       `json:"row_count"`
	GeneratedAt   time.Time `json:"generated_at"`
}

type chartJSON[T any] struct {
	Title string       `json:"title"`
	Data  map[string]T `json:"data"`
}

type insightsJSON struct {
	DietInsights []domain.DietInsight `json:"diet_insights"`
}

type artifactJSON struct {
	Bar       chartJSON[float64]           `json:"bar_chart"`
	Line      chartJSON[domain.MacroMeans] `json:"line_chart"`
	Pie       map[string]domain.MacroMeans `json:"pie_chart"`
	Insights  insightsJSON                 `json:"insights"`
	Freshness Freshness                    `json:"freshness"`
}

// Encode serializes the bundle into the artifact layout. The whole document
// is produced before anything is written so a failed encode never leaves a
// partial artifact behind.
func Encode(b domain.Bundle, f Freshness) ([]byte, error) {
	doc := artifactJSON{
		Bar:       chartJSON[float64]{Title: barTitle, Data: b.Bar.Bar},
		Line:      chartJSON[domain.MacroMeans]{Title: lineTitle, Data: b.Line.Macros},
		Pie:       b.Pie.Macros,
		Insights:  insightsJSON{DietInsights: b.Insights.Insights},
		Freshness: f,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Artifact is a decoded cache document. Views are decoded lazily so one
// corrupt section does not poison the others.
type Artifact struct {
	sections  map[string]json.RawMessage
	Freshness Freshness
}

var sectionByKind = map[domain.ViewKind]string{
	domain.ViewBar:      "bar_chart",
	domain.ViewLine:     "line_chart",
	domain.ViewPie:      "pie_chart",
	domain.ViewInsights: "insights",
}

// Decode parses the top-level document.
func Decode(data []byte) (Artifact, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	if sections == nil {
		return Artifact{}, fmt.Errorf("decode artifact: not an object")
	}
	a := Artifact{sections: sections}
	if raw, ok := sections["freshness"]; ok {
		if err := json.Unmarshal(raw, &a.Freshness); err != nil {
			return Artifact{}, fmt.Errorf("decode freshness: %w", err)
		}
	}
	return a, nil
}

// View extracts and validates one view. Any problem is a domain.CacheMissError.
func (a Artifact) View(kind domain.ViewKind, w domain.Whitelist) (domain.AggregateView, error) {
	name, ok := sectionByKind[kind]
	if !ok {
		return domain.AggregateView{}, domain.CacheMissError{View: kind, Reason: "unknown view"}
	}
	raw, ok := a.sections[name]
	if !ok || string(raw) == "null" {
		return domain.AggregateView{}, domain.CacheMissError{View: kind, Reason: "view absent"}
	}
	v := domain.AggregateView{Kind: kind}
	var err error
	switch kind {
	case domain.ViewBar:
		var c chartJSON[float64]
		err = json.Unmarshal(raw, &c)
		v.Bar = c.Data
	case domain.ViewLine:
		var c chartJSON[domain.MacroMeans]
		err = json.Unmarshal(raw, &c)
		v.Macros = c.Data
	case domain.ViewPie:
		err = json.Unmarshal(raw, &v.Macros)
	case domain.ViewInsights:
		var in insightsJSON
		err = json.Unmarshal(raw, &in)
		v.Insights = in.DietInsights
	}
	if err != nil {
		return domain.AggregateView{}, domain.CacheMissError{View: kind, Reason: "malformed view", Err: err}
	}
	if err := v.Validate(w); err != nil {
		return domain.AggregateView{}, domain.CacheMissError{View: kind, Reason: "invalid view", Err: err}
	}
	return v, nil
}
