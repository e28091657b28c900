package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/workbench/pkg/core"
)

// DefaultMaxRows caps the rows kept from one result.
const DefaultMaxRows = 1000

// Executor runs statements on one database and converts their rows.
type Executor struct {
	db      *sql.DB
	maxRows int
}

// NewExecutor wraps db. maxRows <= 0 means DefaultMaxRows.
func NewExecutor(db *sql.DB, maxRows int) *Executor {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Executor{db: db, maxRows: maxRows}
}

// Query runs query and returns at most maxRows rows. Truncated is set when
// more rows were available.
func (e *Executor) Query(ctx context.Context, query string) (*core.QueryResult, error) {
	if e.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	start := time.Now()

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	result := &core.QueryResult{
		Columns: make([]core.ResultColumn, len(cols)),
		Rows:    [][]any{},
	}
	for i, c := range cols {
		result.Columns[i] = core.ResultColumn{Name: c.Name(), Type: strings.ToLower(c.DatabaseTypeName())}
	}

	for rows.Next() {
		if len(result.Rows) == e.maxRows {
			result.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range vals {
			vals[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	result.ExecutionTimeMS = time.Since(start).Milliseconds()
	return result, nil
}

// Explain runs the plan query and returns one line per plan row, taken
// from the last column.
func (e *Executor) Explain(ctx context.Context, prefix, query string) ([]string, error) {
	if prefix == "" {
		return nil, nil
	}
	res, err := e.Query(ctx, prefix+strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if err != nil {
		return nil, fmt.Errorf("explain failed: %w", err)
	}
	lines := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprint(row[len(row)-1]))
	}
	return lines, nil
}

// normalizeValue makes driver values JSON friendly.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return val
	}
}
