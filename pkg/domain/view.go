package domain

import (
	"fmt"
	"math"
)

// ViewKind discriminates the AggregateView variants.
type ViewKind string

// Supported aggregate view kinds.
const (
	// ViewBar maps diet type to mean protein.
	ViewBar ViewKind = "bar"
	// ViewLine maps diet type to mean protein, carbs and fat.
	ViewLine ViewKind = "line"
	// ViewPie maps each diet with at least one row to its mean macros.
	ViewPie ViewKind = "pie"
	// ViewInsights lists per-diet mean macros as ordered records.
	ViewInsights ViewKind = "insights"
)

// ViewKinds lists every view kind in artifact order.
var ViewKinds = []ViewKind{ViewBar, ViewLine, ViewPie, ViewInsights}

// ParseViewKind validates a view name.
func ParseViewKind(s string) (ViewKind, error) {
	for _, k := range ViewKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// MacroMeans holds mean grams for the three macronutrients.
type MacroMeans struct {
	Protein float64 `json:"Protein(g)"`
	Carbs   float64 `json:"Carbs(g)"`
	Fat     float64 `json:"Fat(g)"`
}

// Finite reports whether all three means are finite, non-negative numbers.
func (m MacroMeans) Finite() bool {
	return finiteNonNegative(m.Protein) && finiteNonNegative(m.Carbs) && finiteNonNegative(m.Fat)
}

// DietInsight is one row of the insights view.
type DietInsight struct {
	DietType string  `json:"Diet_type"`
	Protein  float64 `json:"Protein(g)"`
	Carbs    float64 `json:"Carbs(g)"`
	Fat      float64 `json:"Fat(g)"`
	Count    int     `json:"count"`
}

// Means returns the insight's macro means.
func (d DietInsight) Means() MacroMeans {
	return MacroMeans{Protein: d.Protein, Carbs: d.Carbs, Fat: d.Fat}
}

// AggregateView is the single tagged representation of every cached or
// recomputed view. Exactly one payload field is populated, selected by Kind.
type AggregateView struct {
	Kind     ViewKind              `json:"kind"`
	Bar      map[string]float64    `json:"bar,omitempty"`
	Macros   map[string]MacroMeans `json:"macros,omitempty"`
	Insights []DietInsight         `json:"insights,omitempty"`
}

// Empty reports whether the view carries no diet entries.
func (v AggregateView) Empty() bool {
	switch v.Kind {
	case ViewBar:
		return len(v.Bar) == 0
	case ViewLine, ViewPie:
		return len(v.Macros) == 0
	case ViewInsights:
		return len(v.Insights) == 0
	default:
		return true
	}
}

// Validate checks the view is structurally sound: the payload matches the
// kind, every diet key is whitelisted and every number is finite.
func (v AggregateView) Validate(w Whitelist) error {
	switch v.Kind {
	case ViewBar:
		if v.Bar == nil {
			return fmt.Errorf("bar view has no data")
		}
		for diet, mean := range v.Bar {
			if !w.Contains(diet) {
				return fmt.Errorf("bar view: diet %q not whitelisted", diet)
			}
			if !finiteNonNegative(mean) {
				return fmt.Errorf("bar view: diet %q has invalid mean %v", diet, mean)
			}
		}
	case ViewLine, ViewPie:
		if v.Macros == nil {
			return fmt.Errorf("%s view has no data", v.Kind)
		}
		for diet, m := range v.Macros {
			if !w.Contains(diet) {
				return fmt.Errorf("%s view: diet %q not whitelisted", v.Kind, diet)
			}
			if !m.Finite() {
				return fmt.Errorf("%s view: diet %q has invalid means", v.Kind, diet)
			}
		}
	case ViewInsights:
		if v.Insights == nil {
			return fmt.Errorf("insights view has no data")
		}
		for _, row := range v.Insights {
			if !w.Contains(row.DietType) {
				return fmt.Errorf("insights view: diet %q not whitelisted", row.DietType)
			}
			if !row.Means().Finite() || row.Count < 0 {
				return fmt.Errorf("insights view: diet %q has invalid values", row.DietType)
			}
		}
	default:
		return fmt.Errorf("unknown view kind %q", v.Kind)
	}
	return nil
}

// Bundle groups the four views computed from one dataset.
type Bundle struct {
	Bar      AggregateView `json:"bar"`
	Line     AggregateView `json:"line"`
	Pie      AggregateView `json:"pie"`
	Insights AggregateView `json:"insights"`
}

// View returns the bundle member for kind.
func (b Bundle) View(kind ViewKind) (AggregateView, bool) {
	switch kind {
	case ViewBar:
		return b.Bar, true
	case ViewLine:
		return b.Line, true
	case ViewPie:
		return b.Pie, true
	case ViewInsights:
		return b.Insights, true
	default:
		return AggregateView{}, false
	}
}

func finiteNonNegative(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}
