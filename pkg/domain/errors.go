package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyDataset is returned when an aggregation is requested over zero rows.
var ErrEmptyDataset = errors.New("dataset has no rows")

// ErrDietNotFound is returned when a whitelisted diet has no rows to chart.
var ErrDietNotFound = errors.New("no rows for diet")

// SchemaError reports required columns absent from an input header.
type SchemaError struct {
	Missing []string
}

func (e SchemaError) Error() string {
	return fmt.Sprintf("dataset schema missing required columns: %s", strings.Join(e.Missing, ", "))
}

// InvalidDietError reports a diet filter value outside the whitelist.
type InvalidDietError struct {
	Diet    string
	Allowed []string
}

func (e InvalidDietError) Error() string {
	return fmt.Sprintf("invalid diet %q: must be one of: %s", e.Diet, strings.Join(e.Allowed, ", "))
}

// InvalidPaginationError reports a page or page size below one.
type InvalidPaginationError struct {
	Page     int
	PageSize int
}

func (e InvalidPaginationError) Error() string {
	return fmt.Sprintf("invalid pagination: page=%d page_size=%d (both must be >= 1)", e.Page, e.PageSize)
}

// CacheMissError explains why the cache artifact could not serve a view. It is
// an internal signal: the resolver always recovers from it.
type CacheMissError struct {
	View   ViewKind
	Reason string
	Err    error
}

func (e CacheMissError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache miss for %s: %s: %v", e.View, e.Reason, e.Err)
	}
	return fmt.Sprintf("cache miss for %s: %s", e.View, e.Reason)
}

func (e CacheMissError) Unwrap() error { return e.Err }

// StorageUnavailableError wraps a failure of the storage collaborator other
// than a missing key.
type StorageUnavailableError struct {
	Op  string
	Key string
	Err error
}

func (e StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e StorageUnavailableError) Unwrap() error { return e.Err }

// IsRejectedInput reports whether err stems from caller-supplied parameters.
func IsRejectedInput(err error) bool {
	var diet InvalidDietError
	var page InvalidPaginationError
	return errors.As(err, &diet) || errors.As(err, &page)
}

// StageError reports the pipeline stage during which a run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e StageError) Error() string {
	return fmt.Sprintf("pipeline failed during %s: %v", e.Stage, e.Err)
}

func (e StageError) Unwrap() error { return e.Err }
