// Package dataset reads and writes the tabular CSV wire format shared by the
// raw and cleaned nutrition datasets.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"dietinsights/pkg/domain"
)

const utf8BOM = "\ufeff"

// RawRow holds one unparsed input row. Required columns are addressed by
// name; any other columns are kept in header order in Extra.
type RawRow struct {
	DietType    string
	RecipeName  string
	CuisineType string
	Protein     string
	Carbs       string
	Fat         string
	Extra       []string
}

// Macro returns the raw cell for one of domain.MacroColumns.
func (r RawRow) Macro(column string) string {
	switch column {
	case domain.ColumnProtein:
		return r.Protein
	case domain.ColumnCarbs:
		return r.Carbs
	case domain.ColumnFat:
		return r.Fat
	default:
		return ""
	}
}

// Blank reports whether every cell in the row is empty after trimming.
func (r RawRow) Blank() bool {
	for _, c := range []string{r.DietType, r.RecipeName, r.CuisineType, r.Protein, r.Carbs, r.Fat} {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	for _, c := range r.Extra {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Table is a parsed but not yet normalized dataset.
type Table struct {
	ExtraColumns []string
	Rows         []RawRow
}

// ReadCSV parses a CSV stream. Required columns are matched
// case-insensitively after trimming; a missing one yields domain.SchemaError.
// Ragged rows are padded with empty cells.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, domain.SchemaError{Missing: append([]string(nil), domain.RequiredColumns...)}
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	required := make(map[string]int, len(domain.RequiredColumns))
	for i, name := range header {
		for _, want := range domain.RequiredColumns {
			if _, seen := required[want]; !seen && strings.EqualFold(strings.TrimSpace(name), want) {
				required[want] = i
			}
		}
	}
	var missing []string
	for _, want := range domain.RequiredColumns {
		if _, ok := required[want]; !ok {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return Table{}, domain.SchemaError{Missing: missing}
	}

	isRequired := make(map[int]bool, len(required))
	for _, idx := range required {
		isRequired[idx] = true
	}
	var extraIdx []int
	var t Table
	for i, name := range header {
		if isRequired[i] {
			continue
		}
		extraIdx = append(extraIdx, i)
		t.ExtraColumns = append(t.ExtraColumns, strings.TrimSpace(name))
	}

	cell := func(rec []string, i int) string {
		if i < len(rec) {
			return rec[i]
		}
		return ""
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row: %w", err)
		}
		row := RawRow{
			DietType:    cell(rec, required[domain.ColumnDietType]),
			RecipeName:  cell(rec, required[domain.ColumnRecipeName]),
			CuisineType: cell(rec, required[domain.ColumnCuisineType]),
			Protein:     cell(rec, required[domain.ColumnProtein]),
			Carbs:       cell(rec, required[domain.ColumnCarbs]),
			Fat:         cell(rec, required[domain.ColumnFat]),
		}
		if len(extraIdx) > 0 {
			row.Extra = make([]string, len(extraIdx))
			for j, idx := range extraIdx {
				row.Extra[j] = cell(rec, idx)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteCSV writes ds with the canonical header followed by its extra columns.
func WriteCSV(w io.Writer, ds domain.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Header()); err != nil {
		return err
	}
	for _, rec := range ds.Records {
		if err := cw.Write(rec.Fields()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
