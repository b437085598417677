// Package query filters and paginates normalized records for search.
package query

import (
	"strings"

	"dietinsights/pkg/domain"
)

// Params selects and pages records. An empty Diet or "All" disables the diet
// filter; an empty Keyword matches everything.
type Params struct {
	Diet     string
	Keyword  string
	Page     int
	PageSize int
}

// Pagination describes the page returned alongside the records.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// Result is one page of matching records. Columns names every field of a
// record in Fields order.
type Result struct {
	Columns    []string        `json:"columns"`
	Records    []domain.Record `json:"records"`
	Pagination Pagination      `json:"pagination"`
}

// Engine runs searches against an in-memory dataset.
type Engine struct {
	whitelist domain.Whitelist
}

// New returns an Engine that validates diet filters against w.
func New(w domain.Whitelist) *Engine {
	return &Engine{whitelist: w}
}

// Diet validates and canonicalizes a diet filter. The returned string is
// empty when no filtering applies.
func (e *Engine) Diet(diet string) (string, error) {
	trimmed := strings.TrimSpace(diet)
	if trimmed == "" || strings.EqualFold(trimmed, domain.DietAll) {
		return "", nil
	}
	canonical := domain.CanonicalLabel(trimmed)
	if !e.whitelist.Contains(canonical) {
		return "", domain.InvalidDietError{Diet: diet, Allowed: e.whitelist.Diets()}
	}
	return canonical, nil
}

// Validate checks pagination and the diet filter without touching any data.
func (e *Engine) Validate(p Params) error {
	if p.Page < 1 || p.PageSize < 1 {
		return domain.InvalidPaginationError{Page: p.Page, PageSize: p.PageSize}
	}
	_, err := e.Diet(p.Diet)
	return err
}

// Search filters ds by diet then keyword and returns the requested page.
// Parameters are validated before any filtering happens.
func (e *Engine) Search(ds domain.Dataset, p Params) (Result, error) {
	if err := e.Validate(p); err != nil {
		return Result{}, err
	}
	diet, _ := e.Diet(p.Diet)
	keyword := strings.ToLower(strings.TrimSpace(p.Keyword))

	matched := make([]domain.Record, 0, ds.Len())
	for _, r := range ds.Records {
		if diet != "" && r.DietType != diet {
			continue
		}
		if keyword != "" && !matches(r, keyword) {
			continue
		}
		matched = append(matched, r)
	}

	total := len(matched)
	pages := total / p.PageSize
	if total%p.PageSize != 0 {
		pages++
	}
	res := Result{
		Columns: ds.Header(),
		Records: []domain.Record{},
		Pagination: Pagination{
			Total:      total,
			Page:       p.Page,
			PageSize:   p.PageSize,
			TotalPages: pages,
		},
	}
	if p.Page > res.Pagination.TotalPages {
		return res, nil
	}
	// page <= pages keeps start below total; compare against the remainder
	// so a huge page size cannot overflow start+PageSize.
	start := (p.Page - 1) * p.PageSize
	end := total
	if total-start > p.PageSize {
		end = start + p.PageSize
	}
	res.Records = append(res.Records, matched[start:end]...)
	return res, nil
}

func matches(r domain.Record, keyword string) bool {
	for _, f := range r.Fields() {
		if strings.Contains(strings.ToLower(f), keyword) {
			return true
		}
	}
	return false
}
