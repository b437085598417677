package aggregate

import (
	"sort"

	"dietinsights/pkg/domain"
)

// RecipeProtein is one entry of a per-diet top-protein list.
type RecipeProtein struct {
	RecipeName  string  `json:"recipe_name"`
	CuisineType string  `json:"cuisine_type"`
	ProteinG    float64 `json:"protein_g"`
}

// DietHighlight summarizes one diet.
type DietHighlight struct {
	DietType          string          `json:"diet_type"`
	Recipes           int             `json:"recipes"`
	TopProtein        []RecipeProtein `json:"top_protein"`
	CommonCuisine     string          `json:"most_common_cuisine"`
	ProteinCarbsRatio float64         `json:"protein_carbs_ratio"`
	CarbsFatRatio     float64         `json:"carbs_fat_ratio"`
}

// Highlights is the recipe-level companion to the insights view.
type Highlights struct {
	TopProteinDiet        string          `json:"top_protein_diet"`
	TopProteinDietAverage float64         `json:"top_protein_diet_average"`
	Diets                 []DietHighlight `json:"diets"`
}

// Highlights returns, per diet in ascending order, the top n recipes by
// protein, the most common cuisine and the mean macro ratios, plus the diet
// with the highest mean protein. Ratios with a zero denominator are 0.
func (a *Aggregator) Highlights(ds domain.Dataset, n int) (Highlights, error) {
	if ds.Len() == 0 {
		return Highlights{}, domain.ErrEmptyDataset
	}
	if n < 1 {
		n = 1
	}
	groups, names := a.groups(ds)
	byDiet := make(map[string][]domain.Record, len(names))
	for _, r := range ds.Records {
		if _, ok := groups[r.DietType]; ok {
			byDiet[r.DietType] = append(byDiet[r.DietType], r)
		}
	}

	var out Highlights
	for _, name := range names {
		m := groups[name].means()
		if out.TopProteinDiet == "" || m.Protein > out.TopProteinDietAverage {
			out.TopProteinDiet, out.TopProteinDietAverage = name, m.Protein
		}
		recs := append([]domain.Record(nil), byDiet[name]...)
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].ProteinG > recs[j].ProteinG })
		if len(recs) > n {
			recs = recs[:n]
		}
		top := make([]RecipeProtein, 0, len(recs))
		for _, r := range recs {
			top = append(top, RecipeProtein{RecipeName: r.RecipeName, CuisineType: r.CuisineType, ProteinG: r.ProteinG})
		}
		out.Diets = append(out.Diets, DietHighlight{
			DietType:          name,
			Recipes:           groups[name].count,
			TopProtein:        top,
			CommonCuisine:     mostCommonCuisine(byDiet[name]),
			ProteinCarbsRatio: ratio(m.Protein, m.Carbs),
			CarbsFatRatio:     ratio(m.Carbs, m.Fat),
		})
	}
	return out, nil
}

// mostCommonCuisine breaks ties alphabetically and ignores blank cuisines.
func mostCommonCuisine(recs []domain.Record) string {
	counts := make(map[string]int)
	for _, r := range recs {
		if r.CuisineType != "" {
			counts[r.CuisineType]++
		}
	}
	best, bestN := "", 0
	for c, k := range counts {
		if k > bestN || (k == bestN && c < best) {
			best, bestN = c, k
		}
	}
	return best
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
