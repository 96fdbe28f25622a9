// Package store provides the generic record store the import/export
// pipeline runs against. Callers address tables by name and filter with
// equality, case-folded equality, and in-list predicates only; no other
// query surface is exposed.
package store

import (
	"context"
	"time"
)

// Record is one stored row, keyed by canonical column name.
type Record map[string]any

// Filter narrows a Select or Delete. All predicates are ANDed.
type Filter struct {
	// Eq matches column = value.
	Eq map[string]any
	// FoldEq matches lower(column) = lower(value). Used for natural-key
	// duplicate detection, which is case-insensitive.
	FoldEq map[string]string
	// In matches column IN (values...).
	In map[string][]any
}

// Store is the persistence boundary for importable entities.
type Store interface {
	Select(ctx context.Context, table string, filter Filter) ([]Record, error)
	Insert(ctx context.Context, table string, rec Record) (Record, error)
	Update(ctx context.Context, table string, id string, patch Record) error
	Delete(ctx context.Context, table string, filter Filter) error
}

// ID returns the record's id column as a string, or "" when absent.
func (r Record) ID() string {
	return r.String("id")
}

// String reads a column as a string. Non-string values and missing
// columns yield "".
func (r Record) String(column string) string {
	v, ok := r[column]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// Time reads a column as a time.Time. Stored string values are parsed
// as RFC 3339; anything else yields the zero time.
func (r Record) Time(column string) time.Time {
	switch v := r[column].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}

// Bool reads a column as a bool. Missing or non-bool values yield false.
func (r Record) Bool(column string) bool {
	v, ok := r[column].(bool)
	return ok && v
}
