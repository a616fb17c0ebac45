package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
)

// QueryRows runs a compiled criteria statement and returns every row as an
// object keyed by column name. Row order is the statement's ORDER BY.
// Statements whose result columns share a name are rejected.
//
// ir values carry no floats, so REAL columns are returned as their shortest
// decimal string. Returns an empty slice (not nil) when nothing matches.
func (s *Store) QueryRows(ctx context.Context, query string, args ...any) ([]ir.Object, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query rows: columns: %w", err)
	}
	seen := make(map[string]bool, len(cols))
	for _, col := range cols {
		if seen[col] {
			return nil, fmt.Errorf("query rows: duplicate column %q", col)
		}
		seen[col] = true
	}

	out := []ir.Object{}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		obj := make(ir.Object, len(cols))
		for i, col := range cols {
			v, err := columnValue(raw[i])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", len(out), col, err)
			}
			obj[col] = v
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func columnValue(v any) (ir.Value, error) {
	switch val := v.(type) {
	case nil:
		return ir.Null{}, nil
	case int64:
		return ir.Int(val), nil
	case string:
		return ir.String(val), nil
	case []byte:
		return ir.String(string(val)), nil
	case bool:
		return ir.Bool(val), nil
	case float64:
		return ir.String(strconv.FormatFloat(val, 'f', -1, 64)), nil
	case time.Time:
		return ir.String(val.UTC().Format(time.RFC3339Nano)), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", v)
	}
}
