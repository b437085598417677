// Package aggregate derives the per-diet views (bar, line, pie, insights)
// and recipe highlights from a cleaned dataset. Every function here is pure.
package aggregate

import (
	"fmt"
	"sort"

	"dietinsights/pkg/domain"
)

// Aggregator groups records by diet. Only whitelisted diets are grouped, so
// every key of every view belongs to the whitelist.
type Aggregator struct {
	whitelist domain.Whitelist
}

// New returns an Aggregator bound to w.
func New(w domain.Whitelist) *Aggregator {
	return &Aggregator{whitelist: w}
}

type group struct {
	sum   domain.MacroMeans
	count int
}

func (g group) means() domain.MacroMeans {
	n := float64(g.count)
	return domain.MacroMeans{Protein: g.sum.Protein / n, Carbs: g.sum.Carbs / n, Fat: g.sum.Fat / n}
}

// groups returns per-diet sums and the diet names in ascending order.
func (a *Aggregator) groups(ds domain.Dataset) (map[string]*group, []string) {
	out := make(map[string]*group)
	for _, r := range ds.Records {
		if !a.whitelist.Contains(r.DietType) {
			continue
		}
		g, ok := out[r.DietType]
		if !ok {
			g = &group{}
			out[r.DietType] = g
		}
		g.sum.Protein += r.ProteinG
		g.sum.Carbs += r.CarbsG
		g.sum.Fat += r.FatG
		g.count++
	}
	names := make([]string, 0, len(out))
	for name := range out {
		names = append(names, name)
	}
	sort.Strings(names)
	return out, names
}

// Build computes all four views. It fails with domain.ErrEmptyDataset when
// ds has no rows.
func (a *Aggregator) Build(ds domain.Dataset) (domain.Bundle, error) {
	if ds.Len() == 0 {
		return domain.Bundle{}, domain.ErrEmptyDataset
	}
	groups, names := a.groups(ds)

	bar := domain.AggregateView{Kind: domain.ViewBar, Bar: make(map[string]float64, len(names))}
	line := domain.AggregateView{Kind: domain.ViewLine, Macros: make(map[string]domain.MacroMeans, len(names))}
	insights := domain.AggregateView{Kind: domain.ViewInsights, Insights: make([]domain.DietInsight, 0, len(names))}
	for _, name := range names {
		g := groups[name]
		m := g.means()
		bar.Bar[name] = m.Protein
		line.Macros[name] = m
		insights.Insights = append(insights.Insights, domain.DietInsight{
			DietType: name, Protein: m.Protein, Carbs: m.Carbs, Fat: m.Fat, Count: g.count,
		})
	}

	// pie walks the whitelist and skips diets without rows
	pie := domain.AggregateView{Kind: domain.ViewPie, Macros: make(map[string]domain.MacroMeans)}
	for _, diet := range a.whitelist.Diets() {
		if g, ok := groups[diet]; ok && g.count > 0 {
			pie.Macros[diet] = g.means()
		}
	}
	return domain.Bundle{Bar: bar, Line: line, Pie: pie, Insights: insights}, nil
}

// View computes a single view.
func (a *Aggregator) View(ds domain.Dataset, kind domain.ViewKind) (domain.AggregateView, error) {
	b, err := a.Build(ds)
	if err != nil {
		return domain.AggregateView{}, err
	}
	v, ok := b.View(kind)
	if !ok {
		return domain.AggregateView{}, fmt.Errorf("unknown view kind %q", kind)
	}
	return v, nil
}
