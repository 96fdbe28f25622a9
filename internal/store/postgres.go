package store

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Postgres implements Store over a pgx connection pool. SQL is assembled
// from whitelisted identifiers only; values always travel as parameters.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Select(ctx context.Context, table string, filter Filter) ([]Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + table + where
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	records := make([]Record, 0, 16)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", table, err)
		}
		rec := make(Record, len(fields))
		for i, field := range fields {
			rec[field.Name] = normalizeValue(values[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return records, nil
}

func (p *Postgres) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	columns := sortedColumns(rec)
	if len(columns) == 0 {
		return nil, fmt.Errorf("insert %s: empty record", table)
	}

	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, column := range columns {
		if err := checkIdent(column); err != nil {
			return nil, err
		}
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = rec[column]
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	defer rows.Close()

	inserted, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (Record, error) {
		values, err := row.Values()
		if err != nil {
			return nil, err
		}
		fields := row.FieldDescriptions()
		out := make(Record, len(fields))
		for i, field := range fields {
			out[field.Name] = normalizeValue(values[i])
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return inserted, nil
}

func (p *Postgres) Update(ctx context.Context, table string, id string, patch Record) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	columns := sortedColumns(patch)
	if len(columns) == 0 {
		return nil
	}

	assignments := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, column := range columns {
		if err := checkIdent(column); err != nil {
			return err
		}
		assignments[i] = fmt.Sprintf("%s = $%d", column, i+1)
		args = append(args, patch[column])
	}
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d",
		table, strings.Join(assignments, ", "), len(args),
	)
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: no row with id %s", table, id)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, table string, filter Filter) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return err
	}
	if where == "" {
		return fmt.Errorf("delete %s: refusing unfiltered delete", table)
	}
	if _, err := p.pool.Exec(ctx, "DELETE FROM "+table+where, args...); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func buildWhere(filter Filter, firstArg int) (string, []any, error) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)
	next := firstArg

	for _, column := range sortedKeys(filter.Eq) {
		if err := checkIdent(column); err != nil {
			return "", nil, err
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, filter.Eq[column])
		next++
	}
	for _, column := range sortedKeys(filter.FoldEq) {
		if err := checkIdent(column); err != nil {
			return "", nil, err
		}
		// coalesce so a NULL column still matches a blank key component;
		// natural keys store omitted optional fields as NULL.
		clauses = append(clauses, fmt.Sprintf("lower(coalesce(%s, '')) = lower($%d)", column, next))
		args = append(args, filter.FoldEq[column])
		next++
	}
	for _, column := range sortedKeys(filter.In) {
		if err := checkIdent(column); err != nil {
			return "", nil, err
		}
		values := filter.In[column]
		if len(values) == 0 {
			// Empty in-list matches nothing.
			clauses = append(clauses, "FALSE")
			continue
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = fmt.Sprintf("$%d", next)
			args = append(args, v)
			next++
		}
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func sortedColumns(rec Record) []string {
	columns := make([]string, 0, len(rec))
	for column := range rec {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalizeValue flattens pgx-native values into the plain types the
// importer and exporters work with: uuids become strings, 16-byte arrays
// are assumed to be uuid columns.
func normalizeValue(v any) any {
	switch value := v.(type) {
	case [16]byte:
		return uuid.UUID(value).String()
	case uuid.UUID:
		return value.String()
	default:
		return v
	}
}
