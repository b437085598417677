// Package domain defines the nutrition records, aggregate views and error
// taxonomy shared by the dietinsights pipeline, resolver and query layers.
package domain

import (
	"strconv"
)

// Column names used by the raw and cleaned CSV datasets.
const (
	// ColumnDietType holds the diet classification of a recipe.
	ColumnDietType = "Diet_type"
	// ColumnRecipeName holds the recipe title.
	ColumnRecipeName = "Recipe_name"
	// ColumnCuisineType holds the cuisine classification.
	ColumnCuisineType = "Cuisine_type"
	// ColumnProtein holds grams of protein per recipe.
	ColumnProtein = "Protein(g)"
	// ColumnCarbs holds grams of carbohydrate per recipe.
	ColumnCarbs = "Carbs(g)"
	// ColumnFat holds grams of fat per recipe.
	ColumnFat = "Fat(g)"
)

// RequiredColumns lists the columns every ingested dataset must provide.
var RequiredColumns = []string{
	ColumnDietType,
	ColumnRecipeName,
	ColumnCuisineType,
	ColumnProtein,
	ColumnCarbs,
	ColumnFat,
}

// MacroColumns lists the numeric columns in canonical order.
var MacroColumns = []string{ColumnProtein, ColumnCarbs, ColumnFat}

// Record is a single normalized recipe entry.
type Record struct {
	DietType    string   `json:"diet_type"`
	RecipeName  string   `json:"recipe_name"`
	CuisineType string   `json:"cuisine_type"`
	ProteinG    float64  `json:"protein_g"`
	CarbsG      float64  `json:"carbs_g"`
	FatG        float64  `json:"fat_g"`
	Extra       []string `json:"extra,omitempty"`
}

// Macro returns the value stored for one of the MacroColumns.
func (r Record) Macro(column string) float64 {
	switch column {
	case ColumnProtein:
		return r.ProteinG
	case ColumnCarbs:
		return r.CarbsG
	case ColumnFat:
		return r.FatG
	default:
		return 0
	}
}

// Fields returns every field of the record rendered as text, in column order
// (required columns first, then extras).
func (r Record) Fields() []string {
	out := make([]string, 0, len(RequiredColumns)+len(r.Extra))
	out = append(out,
		r.DietType,
		r.RecipeName,
		r.CuisineType,
		FormatGrams(r.ProteinG),
		FormatGrams(r.CarbsG),
		FormatGrams(r.FatG),
	)
	return append(out, r.Extra...)
}

// Equal reports whether two records carry identical field values.
func (r Record) Equal(o Record) bool {
	if r.DietType != o.DietType || r.RecipeName != o.RecipeName || r.CuisineType != o.CuisineType {
		return false
	}
	if r.ProteinG != o.ProteinG || r.CarbsG != o.CarbsG || r.FatG != o.FatG {
		return false
	}
	if len(r.Extra) != len(o.Extra) {
		return false
	}
	for i := range r.Extra {
		if r.Extra[i] != o.Extra[i] {
			return false
		}
	}
	return true
}

// Dataset is an ordered collection of records plus the names of any extra
// columns carried through from the source.
type Dataset struct {
	ExtraColumns []string `json:"extra_columns,omitempty"`
	Records      []Record `json:"records"`
}

// Len returns the number of records.
func (d Dataset) Len() int { return len(d.Records) }

// Header returns the full CSV header for the dataset.
func (d Dataset) Header() []string {
	out := make([]string, 0, len(RequiredColumns)+len(d.ExtraColumns))
	out = append(out, RequiredColumns...)
	return append(out, d.ExtraColumns...)
}

// FormatGrams renders a macro value the way it is written to the cleaned
// dataset and matched by keyword search.
func FormatGrams(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
