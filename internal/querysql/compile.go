package querysql

import (
	"fmt"
	"strings"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
)

// SQLCompiler compiles a QueryIR criteria tree to parameterized SQL for SQLite.
//
// CRITICAL: Every query ends its ORDER BY with the root id so results are
// deterministic on every shard.
// CRITICAL: All literal values are parameterized, never interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a Select tree to (sql, params).
func (c *SQLCompiler) Compile(s *queryir.Select) (string, []any, error) {
	if s == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if result := queryir.Validate(s); !result.Valid {
		return "", nil, fmt.Errorf("invalid criteria tree: %s", strings.Join(result.Problems, "; "))
	}

	var b strings.Builder
	var params []any

	if s.Comment != "" {
		fmt.Fprintf(&b, "/* %s */ ", strings.ReplaceAll(s.Comment, "*/", "* /"))
	}

	b.WriteString("SELECT ")
	b.WriteString(c.compileProjection(s))
	fmt.Fprintf(&b, " FROM %s AS %s", s.Table, s.Alias)

	for _, j := range s.Joins {
		joinSQL, joinParams, err := c.compileJoin(j)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" ")
		b.WriteString(joinSQL)
		params = append(params, joinParams...)
	}

	if len(s.Filters) > 0 {
		whereSQL, whereParams, err := c.compilePredicate(queryir.And{Predicates: s.Filters})
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(whereSQL)
		params = append(params, whereParams...)
	}

	// Row counts collapse to one row; ordering would only reference
	// ungrouped columns.
	if s.Projection == nil || !s.Projection.RowCount || len(s.Projection.Properties) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(c.compileOrders(s))
	}

	if s.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, int64(s.Limit))
		if s.Offset > 0 {
			b.WriteString(" OFFSET ?")
			params = append(params, int64(s.Offset))
		}
	} else if s.Offset > 0 {
		// SQLite requires LIMIT before OFFSET; -1 means unlimited.
		b.WriteString(" LIMIT -1 OFFSET ?")
		params = append(params, int64(s.Offset))
	}

	return b.String(), params, nil
}

// compileProjection returns the SELECT column list.
// Without a projection the root entity's columns are selected. Projected
// properties are labelled with their qualified name so "c.name" and
// "o.name" stay distinct result columns.
func (c *SQLCompiler) compileProjection(s *queryir.Select) string {
	if s.Projection == nil || (len(s.Projection.Properties) == 0 && !s.Projection.RowCount) {
		return s.Alias + ".*"
	}
	parts := make([]string, 0, len(s.Projection.Properties)+1)
	for _, p := range s.Projection.Properties {
		q := queryir.QualifyProperty(p, s.Alias)
		parts = append(parts, fmt.Sprintf("%s AS \"%s\"", q, q))
	}
	if s.Projection.RowCount {
		parts = append(parts, "COUNT(*) AS row_count")
	}
	return strings.Join(parts, ", ")
}

// compileOrders returns ORDER BY terms followed by the stable tiebreaker.
func (c *SQLCompiler) compileOrders(s *queryir.Select) string {
	parts := make([]string, 0, len(s.Orders)+1)
	for _, o := range s.Orders {
		dir := "ASC"
		if o.Descending {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s %s", queryir.QualifyProperty(o.Property, s.Alias), dir))
	}
	parts = append(parts, c.stableOrderKey(s))
	return strings.Join(parts, ", ")
}

// stableOrderKey returns the mandatory tiebreaker.
// COLLATE BINARY keeps text ids ordered identically across SQLite builds.
func (c *SQLCompiler) stableOrderKey(s *queryir.Select) string {
	id := s.IDColumn
	if id == "" {
		id = "id"
	}
	return fmt.Sprintf("%s.%s COLLATE BINARY ASC", s.Alias, id)
}

// compileJoin compiles one sub-criteria join.
func (c *SQLCompiler) compileJoin(j *queryir.Join) (string, []any, error) {
	keyword, err := j.Type.SQL()
	if err != nil {
		return "", nil, fmt.Errorf("join %q: %w", j.Association, err)
	}
	on := fmt.Sprintf("%s.%s = %s.%s", j.ParentAlias, j.ParentKey, j.Alias, j.ChildKey)

	var params []any
	if j.With != nil {
		withSQL, withParams, err := c.compilePredicate(j.With)
		if err != nil {
			return "", nil, fmt.Errorf("join %q with-clause: %w", j.Association, err)
		}
		on += " AND " + withSQL
		params = withParams
	}
	return fmt.Sprintf("%s %s AS %s ON %s", keyword, j.Table, j.Alias, on), params, nil
}

// compilePredicate compiles a predicate to a WHERE fragment.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Compare:
		return c.compileCompare(pred)
	case *queryir.Compare:
		return c.compileCompare(*pred)
	case queryir.Like:
		return fmt.Sprintf("%s LIKE ?", pred.Field), []any{pred.Pattern}, nil
	case *queryir.Like:
		return c.compilePredicate(*pred)
	case queryir.In:
		return c.compileIn(pred)
	case *queryir.In:
		return c.compileIn(*pred)
	case queryir.IsNull:
		if pred.Negated {
			return pred.Field + " IS NOT NULL", nil, nil
		}
		return pred.Field + " IS NULL", nil, nil
	case *queryir.IsNull:
		return c.compilePredicate(*pred)
	case queryir.And:
		return c.compileJunction(pred.Predicates, " AND ", "1 = 1")
	case *queryir.And:
		return c.compilePredicate(*pred)
	case queryir.Or:
		return c.compileJunction(pred.Predicates, " OR ", "1 = 0")
	case *queryir.Or:
		return c.compilePredicate(*pred)
	case queryir.Not:
		inner, params, err := c.compilePredicate(pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + inner + ")", params, nil
	case *queryir.Not:
		return c.compilePredicate(*pred)
	case queryir.SQLRestriction:
		return c.compileRaw(pred)
	case *queryir.SQLRestriction:
		return c.compileRaw(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileCompare compiles "field <op> ?".
func (c *SQLCompiler) compileCompare(cmp queryir.Compare) (string, []any, error) {
	if !cmp.Op.Valid() {
		return "", nil, fmt.Errorf("unknown operator %q", cmp.Op)
	}
	if _, isNull := cmp.Value.(ir.Null); isNull || cmp.Value == nil {
		return "", nil, fmt.Errorf("field %q compared to NULL: use IsNull", cmp.Field)
	}
	param, err := valueToParam(cmp.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %q: %w", cmp.Field, err)
	}
	return fmt.Sprintf("%s %s ?", cmp.Field, cmp.Op), []any{param}, nil
}

func (c *SQLCompiler) compileIn(in queryir.In) (string, []any, error) {
	if len(in.Values) == 0 {
		return "1 = 0", nil, nil
	}
	params := make([]any, 0, len(in.Values))
	for i, v := range in.Values {
		param, err := valueToParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("field %q value[%d]: %w", in.Field, i, err)
		}
		params = append(params, param)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(params)), ", ")
	return fmt.Sprintf("%s IN (%s)", in.Field, marks), params, nil
}

func (c *SQLCompiler) compileJunction(preds []queryir.Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(preds))
	var params []any
	for _, p := range preds {
		sql, ps, err := c.compilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, sep) + ")", params, nil
}

// compileRaw passes a SQL restriction through, parenthesized.
// Its ? placeholders must match Args.
func (c *SQLCompiler) compileRaw(r queryir.SQLRestriction) (string, []any, error) {
	if strings.TrimSpace(r.SQL) == "" {
		return "", nil, fmt.Errorf("empty SQL restriction")
	}
	if n := strings.Count(r.SQL, "?"); n != len(r.Args) {
		return "", nil, fmt.Errorf("SQL restriction %q has %d placeholders but %d args", r.SQL, n, len(r.Args))
	}
	params := make([]any, 0, len(r.Args))
	for i, a := range r.Args {
		param, err := valueToParam(a)
		if err != nil {
			return "", nil, fmt.Errorf("SQL restriction arg[%d]: %w", i, err)
		}
		params = append(params, param)
	}
	return "(" + r.SQL + ")", params, nil
}

// valueToParam converts a literal to a Go value for a SQL parameter.
// Lists and objects cannot bind to a single placeholder.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	case ir.Null:
		return nil, nil
	case ir.List:
		return nil, fmt.Errorf("list cannot be used as SQL parameter directly")
	case ir.Object:
		return nil, fmt.Errorf("object cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported literal type for SQL parameter: %T", v)
	}
}
