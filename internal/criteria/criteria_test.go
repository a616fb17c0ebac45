package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/mapping"
	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
	"github.com/ruilorenzetti/hibernate-shards/internal/subcriteria"
)

func testRegistry(t *testing.T) *mapping.Registry {
	t.Helper()
	r := mapping.NewRegistry()
	require.NoError(t, r.Register(mapping.Entity{
		Name:  "customers",
		Table: "customers",
		Associations: map[string]mapping.Association{
			"orders": {Target: "orders", LocalKey: "id", ForeignKey: "customer_id"},
		},
	}))
	require.NoError(t, r.Register(mapping.Entity{
		Name:  "orders",
		Table: "orders",
		Associations: map[string]mapping.Association{
			"lines": {Target: "lines", LocalKey: "id", ForeignKey: "order_id"},
		},
	}))
	require.NoError(t, r.Register(mapping.Entity{Name: "lines", Table: "order_lines"}))
	return r
}

func TestNode_MaterializeOrdersScenario(t *testing.T) {
	root, err := New("shard-a", testRegistry(t), "customers", "c")
	require.NoError(t, err)

	recipe, err := subcriteria.WithAlias("orders", "o")
	require.NoError(t, err)

	sub, err := recipe.Materialize(root, []subcriteria.Event{
		subcriteria.Add(queryir.Restriction("o.total > 100")),
	})
	require.NoError(t, err)
	assert.Equal(t, "shard-a", subcriteria.ShardOf(sub))

	sql, params, err := root.Statement()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT c.* FROM customers AS c INNER JOIN orders AS o ON c.id = o.customer_id"+
			" WHERE (o.total > 100) ORDER BY c.id COLLATE BINARY ASC",
		sql)
	assert.Empty(t, params)
}

func TestNode_QualifiesBareProperties(t *testing.T) {
	root, err := New("shard-a", testRegistry(t), "customers", "c")
	require.NoError(t, err)

	sub, err := root.CreateCriteriaWithAliasAndJoin("orders", "o", ir.LeftOuterJoin)
	require.NoError(t, err)

	require.NoError(t, sub.Add(queryir.Gt("total", ir.Int(100))))
	require.NoError(t, sub.Add(queryir.Restriction("{alias}.status <> 'void'")))
	require.NoError(t, sub.AddOrder(queryir.Desc("total")))
	require.NoError(t, root.AddOrder(queryir.Asc("name")))
	require.NoError(t, sub.SetProjection(queryir.Projection{Properties: []string{"total", "c.name"}}))

	s := root.Select()
	assert.Equal(t, []queryir.Predicate{
		queryir.Gt("o.total", ir.Int(100)),
		queryir.Restriction("o.status <> 'void'"),
	}, s.Filters)
	assert.Equal(t, []queryir.Order{queryir.Desc("o.total"), queryir.Asc("c.name")}, s.Orders)
	assert.Equal(t, []string{"o.total", "c.name"}, s.Projection.Properties)
	assert.Equal(t, ir.LeftOuterJoin, s.Joins[0].Type)
}

func TestNode_AutoAliasAndNesting(t *testing.T) {
	root, err := New("shard-a", testRegistry(t), "customers", "")
	require.NoError(t, err)
	assert.Equal(t, "customers", root.Alias())

	first, err := root.CreateCriteria("orders")
	require.NoError(t, err)
	second, err := root.CreateCriteriaWithJoin("orders", ir.FullJoin)
	require.NoError(t, err)
	lines, err := first.CreateCriteria("lines")
	require.NoError(t, err)

	assert.Equal(t, "orders_1", first.(*Node).Alias())
	assert.Equal(t, "orders_2", second.(*Node).Alias())
	assert.Equal(t, "lines_1", lines.(*Node).Alias())
	assert.Equal(t, "lines", lines.(*Node).Entity())

	s := root.Select()
	require.Len(t, s.Joins, 3)
	assert.Equal(t, "orders_1", s.Joins[2].ParentAlias)
	assert.Equal(t, "order_lines", s.Joins[2].Table)
	assert.Equal(t, ir.FullJoin, s.Joins[1].Type)
}

func TestNode_JoinFilter(t *testing.T) {
	root, err := New("shard-a", testRegistry(t), "customers", "c")
	require.NoError(t, err)

	_, err = root.CreateCriteriaWithAliasJoinAndFilter("orders", "o", ir.LeftOuterJoin, queryir.Eq("status", ir.String("paid")))
	require.NoError(t, err)

	sql, params, err := root.Statement()
	require.NoError(t, err)
	assert.Contains(t, sql, "LEFT JOIN orders AS o ON c.id = o.customer_id AND o.status = ?")
	assert.Equal(t, []any{"paid"}, params)
}

func TestNode_Rejections(t *testing.T) {
	root, err := New("shard-a", testRegistry(t), "customers", "c")
	require.NoError(t, err)

	_, err = root.CreateCriteria("refunds")
	assert.ErrorIs(t, err, mapping.ErrUnknownAssociation)

	_, err = root.CreateCriteriaWithJoin("orders", ir.JoinType(7))
	assert.Error(t, err)

	_, err = root.CreateCriteriaWithAlias("orders", "c")
	assert.ErrorContains(t, err, "duplicate alias")

	_, err = root.CreateCriteriaWithAlias("orders", "")
	assert.Error(t, err)

	_, err = root.CreateCriteriaWithAliasJoinAndFilter("orders", "o", ir.InnerJoin, nil)
	assert.Error(t, err)

	assert.Error(t, root.Add(nil))
	assert.Error(t, root.AddOrder(queryir.Order{}))
	assert.Error(t, root.SetProjection(queryir.Projection{Properties: []string{""}}))
	assert.Error(t, root.SetMaxResults(-1))
	assert.Error(t, root.SetFirstResult(-1))

	// Rejected operations leave the tree untouched.
	s := root.Select()
	assert.Empty(t, s.Joins)
	assert.Empty(t, s.Filters)
	assert.Empty(t, s.Orders)
	assert.Nil(t, s.Projection)

	_, err = New("shard-a", testRegistry(t), "refunds", "")
	assert.ErrorIs(t, err, mapping.ErrUnknownEntity)
}

func TestNode_UnknownJoinCodeFailsAtCreation(t *testing.T) {
	root, err := New("shard-a", testRegistry(t), "customers", "c")
	require.NoError(t, err)

	recipe, err := subcriteria.WithJoin("orders", ir.JoinType(3))
	require.NoError(t, err)
	jt, _ := recipe.JoinType()
	assert.Equal(t, ir.JoinType(3), jt)

	_, err = recipe.Materialize(root, nil)
	assert.True(t, subcriteria.IsSubqueryCreation(err))
	assert.ErrorContains(t, err, "unknown join type code 3")
	assert.Empty(t, root.Select().Joins)
}

func TestNode_AliasesResolveAtCompileTime(t *testing.T) {
	root, err := New("shard-a", testRegistry(t), "customers", "c")
	require.NoError(t, err)

	// The parent names aliases of sub-criteria it has not created yet.
	require.NoError(t, root.Add(queryir.Gt("o.total", ir.Int(100))))
	require.NoError(t, root.AddOrder(queryir.Desc("l.qty")))
	require.NoError(t, root.SetProjection(queryir.Projection{Properties: []string{"name", "o.total"}}))

	orders, err := root.CreateCriteriaWithAlias("orders", "o")
	require.NoError(t, err)
	require.NoError(t, orders.Add(queryir.Gt("l.qty", ir.Int(2))))
	_, err = orders.CreateCriteriaWithAlias("lines", "l")
	require.NoError(t, err)

	sql, params, err := root.Statement()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT c.name AS "c.name", o.total AS "o.total" FROM customers AS c`+
			" INNER JOIN orders AS o ON c.id = o.customer_id"+
			" INNER JOIN order_lines AS l ON o.id = l.order_id"+
			" WHERE (o.total > ? AND l.qty > ?) ORDER BY l.qty DESC, c.id COLLATE BINARY ASC",
		sql)
	assert.Equal(t, []any{int64(100), int64(2)}, params)
}

func TestNode_UnknownAliasFailsStatement(t *testing.T) {
	tests := []struct {
		name  string
		build func(root *Node) error
		want  string
	}{
		{"filter", func(root *Node) error {
			return root.Add(queryir.Eq("o.total", ir.Int(1)))
		}, `filter[0] references unknown alias "o"`},
		{"order", func(root *Node) error {
			return root.AddOrder(queryir.Asc("o.total"))
		}, `order[0] references unknown alias "o"`},
		{"projection", func(root *Node) error {
			return root.SetProjection(queryir.Projection{Properties: []string{"o.total"}})
		}, `projection[0] references unknown alias "o"`},
		{"join filter", func(root *Node) error {
			_, err := root.CreateCriteriaWithAliasJoinAndFilter("orders", "o", ir.InnerJoin, queryir.Eq("x.id", ir.Int(1)))
			return err
		}, `join[0] with-clause references unknown alias "x"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := New("shard-a", testRegistry(t), "customers", "c")
			require.NoError(t, err)
			require.NoError(t, tt.build(root))

			_, _, err = root.Statement()
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestNode_SelectIsACopy(t *testing.T) {
	root, err := New("shard-a", testRegistry(t), "customers", "c")
	require.NoError(t, err)
	require.NoError(t, root.Add(queryir.Eq("name", ir.String("ada"))))

	s := root.Select()
	s.Filters[0] = nil
	s.Limit = 5

	again := root.Select()
	assert.NotNil(t, again.Filters[0])
	assert.Zero(t, again.Limit)
}

func TestNode_PagingAndComment(t *testing.T) {
	root, err := New("shard-a", testRegistry(t), "customers", "c")
	require.NoError(t, err)

	require.NoError(t, subcriteria.Replay(root, []subcriteria.Event{
		subcriteria.SetMaxResults(10),
		subcriteria.SetFirstResult(30),
		subcriteria.SetComment("report"),
	}))

	sql, params, err := root.Statement()
	require.NoError(t, err)
	assert.Equal(t, "/* report */ SELECT c.* FROM customers AS c ORDER BY c.id COLLATE BINARY ASC LIMIT ? OFFSET ?", sql)
	assert.Equal(t, []any{int64(10), int64(30)}, params)
}
