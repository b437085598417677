package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DietAll is the filter sentinel meaning "no diet filtering".
const DietAll = "All"

// DefaultDiet is used by the pie chart when the caller does not pick a diet.
const DefaultDiet = "Keto"

// Whitelist is an immutable, ordered set of accepted diet types.
type Whitelist struct {
	order []string
	set   map[string]struct{}
}

// NewWhitelist builds a whitelist from the provided names. Names are
// canonicalized and duplicates dropped; order is preserved.
func NewWhitelist(names ...string) Whitelist {
	w := Whitelist{set: make(map[string]struct{}, len(names))}
	for _, n := range names {
		c := CanonicalLabel(n)
		if c == "" {
			continue
		}
		if _, ok := w.set[c]; ok {
			continue
		}
		w.set[c] = struct{}{}
		w.order = append(w.order, c)
	}
	return w
}

// DefaultWhitelist returns the standard diet whitelist.
func DefaultWhitelist() Whitelist {
	return NewWhitelist("Paleo", "Vegan", "Keto", "Mediterranean", "Dash")
}

// Contains reports whether the canonical diet name is whitelisted.
func (w Whitelist) Contains(diet string) bool {
	_, ok := w.set[diet]
	return ok
}

// Diets returns a copy of the whitelist in declaration order.
func (w Whitelist) Diets() []string {
	out := make([]string, len(w.order))
	copy(out, w.order)
	return out
}

// Len returns the number of whitelisted diets.
func (w Whitelist) Len() int { return len(w.order) }

// CanonicalLabel trims whitespace and title-cases a label ("  keto " -> "Keto",
// "DASH" -> "Dash").
func CanonicalLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Title(language.Und).String(s)
}
