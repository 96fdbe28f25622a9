package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and local tooling. It
// mirrors the Postgres implementation's filter semantics, including
// case-folded equality.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]Record
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Record)}
}

func (m *Memory) Select(ctx context.Context, table string, filter Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0, 8)
	for _, rec := range m.tables[table] {
		if matches(rec, filter) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := cloneRecord(rec)
	if stored.ID() == "" {
		stored["id"] = uuid.NewString()
	}
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = time.Now().UTC()
	}
	m.tables[table] = append(m.tables[table], stored)
	return cloneRecord(stored), nil
}

func (m *Memory) Update(ctx context.Context, table string, id string, patch Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.tables[table] {
		if rec.ID() == id {
			for column, value := range patch {
				rec[column] = value
			}
			return nil
		}
	}
	return fmt.Errorf("update %s: no row with id %s", table, id)
}

func (m *Memory) Delete(ctx context.Context, table string, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.tables[table][:0]
	for _, rec := range m.tables[table] {
		if !matches(rec, filter) {
			kept = append(kept, rec)
		}
	}
	m.tables[table] = kept
	return nil
}

// Count reports how many rows a table holds. Test helper.
func (m *Memory) Count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

func matches(rec Record, filter Filter) bool {
	for column, want := range filter.Eq {
		if !looseEqual(rec[column], want) {
			return false
		}
	}
	for column, want := range filter.FoldEq {
		if !strings.EqualFold(rec.String(column), want) {
			return false
		}
	}
	for column, values := range filter.In {
		found := false
		for _, want := range values {
			if looseEqual(rec[column], want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// looseEqual compares across the numeric representations that show up
// when records round-trip through coercion (int vs int64 vs float64).
func looseEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for column, value := range rec {
		out[column] = value
	}
	return out
}
