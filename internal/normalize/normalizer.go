// Package normalize turns raw dataset rows into the cleaned, whitelisted and
// deduplicated records every downstream view is computed from.
package normalize

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"dietinsights/internal/dataset"
	"dietinsights/pkg/domain"
)

// FillMode selects how missing macro values are filled.
type FillMode int

const (
	// FillMean replaces a missing value with the column mean computed over
	// the whole batch before any row is removed (0 when the column has no
	// values at all). Diet means are pulled towards the dataset-wide mean.
	FillMean FillMode = iota
	// FillZero replaces a missing value with 0. Diet means are pulled down.
	FillZero
)

func (m FillMode) String() string {
	switch m {
	case FillMean:
		return "mean"
	case FillZero:
		return "zero"
	default:
		return fmt.Sprintf("FillMode(%d)", int(m))
	}
}

// ParseFillMode accepts "mean" or "zero".
func ParseFillMode(s string) (FillMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mean", "":
		return FillMean, nil
	case "zero":
		return FillZero, nil
	default:
		return 0, fmt.Errorf("unknown fill mode %q (want mean or zero)", s)
	}
}

// Report carries the counters produced by one Normalize call.
type Report struct {
	Mode               string             `json:"fill_mode"`
	InputRows          int                `json:"input_rows"`
	OutputRows         int                `json:"output_rows"`
	EmptyRowsRemoved   int                `json:"empty_rows_removed"`
	DuplicatesRemoved  int                `json:"duplicates_removed"`
	InvalidDietRemoved int                `json:"invalid_diet_removed"`
	CoercionFailures   map[string]int     `json:"coercion_failures"`
	MissingValues      map[string]int     `json:"missing_values"`
	FillValues         map[string]float64 `json:"fill_values"`
}

// Normalizer applies the cleaning rules against an injected whitelist.
type Normalizer struct {
	whitelist domain.Whitelist
}

// New returns a Normalizer that keeps only diets in w.
func New(w domain.Whitelist) *Normalizer {
	return &Normalizer{whitelist: w}
}

// NormalizeCSV parses r and normalizes it. The only error it returns for
// well-formed CSV is domain.SchemaError.
func (n *Normalizer) NormalizeCSV(r io.Reader, mode FillMode) (domain.Dataset, Report, error) {
	tbl, err := dataset.ReadCSV(r)
	if err != nil {
		return domain.Dataset{}, Report{}, err
	}
	ds, rep := n.Normalize(tbl, mode)
	return ds, rep, nil
}

type parsedRow struct {
	rec     domain.Record
	missing [3]bool
}

// Normalize cleans tbl. Steps run in a fixed order: drop blank rows,
// canonicalize labels, coerce macros, fill, dedupe, whitelist, stable sort.
// Deduplicating after filling keeps the operation idempotent.
func (n *Normalizer) Normalize(tbl dataset.Table, mode FillMode) (domain.Dataset, Report) {
	rep := Report{
		Mode:             mode.String(),
		InputRows:        len(tbl.Rows),
		CoercionFailures: make(map[string]int, len(domain.MacroColumns)),
		MissingValues:    make(map[string]int, len(domain.MacroColumns)),
		FillValues:       make(map[string]float64, len(domain.MacroColumns)),
	}
	for _, col := range domain.MacroColumns {
		rep.CoercionFailures[col] = 0
		rep.MissingValues[col] = 0
	}

	var sums [3]float64
	var counts [3]int
	rows := make([]parsedRow, 0, len(tbl.Rows))
	for _, raw := range tbl.Rows {
		if raw.Blank() {
			rep.EmptyRowsRemoved++
			continue
		}
		pr := parsedRow{rec: domain.Record{
			DietType:    domain.CanonicalLabel(raw.DietType),
			RecipeName:  strings.TrimSpace(raw.RecipeName),
			CuisineType: domain.CanonicalLabel(raw.CuisineType),
		}}
		if len(raw.Extra) > 0 {
			pr.rec.Extra = append([]string(nil), raw.Extra...)
		}
		vals := [3]float64{}
		for i, col := range domain.MacroColumns {
			v, status := coerce(raw.Macro(col))
			switch status {
			case cellBlank:
				rep.MissingValues[col]++
				pr.missing[i] = true
			case cellInvalid:
				rep.CoercionFailures[col]++
				rep.MissingValues[col]++
				pr.missing[i] = true
			default:
				vals[i] = v
				sums[i] += v
				counts[i]++
			}
		}
		pr.rec.ProteinG, pr.rec.CarbsG, pr.rec.FatG = vals[0], vals[1], vals[2]
		rows = append(rows, pr)
	}

	var fill [3]float64
	if mode == FillMean {
		for i := range fill {
			if counts[i] > 0 {
				fill[i] = sums[i] / float64(counts[i])
			}
		}
	}
	for i, col := range domain.MacroColumns {
		rep.FillValues[col] = fill[i]
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([]domain.Record, 0, len(rows))
	for _, pr := range rows {
		rec := pr.rec
		if pr.missing[0] {
			rec.ProteinG = fill[0]
		}
		if pr.missing[1] {
			rec.CarbsG = fill[1]
		}
		if pr.missing[2] {
			rec.FatG = fill[2]
		}
		key := strings.Join(rec.Fields(), "\x1f")
		if _, dup := seen[key]; dup {
			rep.DuplicatesRemoved++
			continue
		}
		seen[key] = struct{}{}
		if !n.whitelist.Contains(rec.DietType) {
			rep.InvalidDietRemoved++
			continue
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DietType != out[j].DietType {
			return out[i].DietType < out[j].DietType
		}
		return out[i].RecipeName < out[j].RecipeName
	})
	rep.OutputRows = len(out)
	return domain.Dataset{ExtraColumns: append([]string(nil), tbl.ExtraColumns...), Records: out}, rep
}

type cellStatus int

const (
	cellOK cellStatus = iota
	cellBlank
	cellInvalid
)

// coerce parses a macro cell. Negative and non-finite numbers are treated
// like unparseable text.
func coerce(s string) (float64, cellStatus) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, cellBlank
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, cellInvalid
	}
	if v == 0 {
		v = 0 // drop the sign of -0
	}
	return v, cellOK
}
