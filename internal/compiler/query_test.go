package compiler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
	"github.com/ruilorenzetti/hibernate-shards/internal/shard"
	"github.com/ruilorenzetti/hibernate-shards/internal/subcriteria"
	"github.com/ruilorenzetti/hibernate-shards/internal/testutil"
)

const entities = `
shards: [{id: "a"}, {id: "b"}]
entity: {
	customers: {
		table: "customers"
		associations: orders: {target: "orders", local_key: "id", foreign_key: "customer_id"}
	}
	orders: {
		table: "orders"
		associations: items: {target: "items", local_key: "id", foreign_key: "order_id"}
	}
	items: table: "items"
}
`

func compileQueryNamed(t *testing.T, query, name string) *Query {
	t.Helper()
	cfg, err := CompileConfig(compile(t, entities+query))
	require.NoError(t, err)
	q, err := cfg.Query(name)
	require.NoError(t, err)
	return q
}

func TestCompileQueryVariants(t *testing.T) {
	q := compileQueryNamed(t, `
query: q: {
	entity: "customers"
	subcriteria: [
		{association: "orders"},
		{association: "orders", join_type: "left"},
		{association: "orders", alias: "o"},
		{association: "orders", alias: "o2", join_type: 4},
		{association: "orders", alias: "o3", join_type: "right", filter: {type: "compare", field: "o3.total", op: ">=", value: 10}},
		{variant: "association", association: "orders", alias: "ignored"},
	]
}
`, "q")

	want := []subcriteria.Variant{
		subcriteria.VariantAssociation,
		subcriteria.VariantAssociationJoinType,
		subcriteria.VariantAssociationAlias,
		subcriteria.VariantAssociationAliasJoinType,
		subcriteria.VariantAssociationAliasJoinTypeFilter,
		subcriteria.VariantAssociation,
	}
	require.Len(t, q.Subcriteria, len(want))
	for i, v := range want {
		assert.Equal(t, v, q.Subcriteria[i].Recipe.Variant(), "subcriteria[%d]", i)
		assert.Equal(t, "orders", q.Subcriteria[i].Entity)
	}

	jt, ok := q.Subcriteria[3].Recipe.JoinType()
	require.True(t, ok)
	assert.Equal(t, ir.FullJoin, jt)
	assert.Equal(t,
		queryir.Compare{Field: "o3.total", Op: queryir.OpGe, Value: ir.Int(10)},
		q.Subcriteria[4].Recipe.Filter())
}

func TestCompileQueryEvents(t *testing.T) {
	q := compileQueryNamed(t, `
query: q: {
	entity: "customers"
	alias: "c"
	comment: "report"
	max_results: 10
	first_result: 20
	projection: {properties: ["name"], row_count: true}
	orders: ["name", "c.created_at desc", {property: "id", descending: false}]
	restrictions: ["c.active = 1", {type: "in", field: "country", values: ["PT", "ES"]}]
	subcriteria: [{
		association: "orders"
		alias: "o"
		restrictions: ["o.total > 100"]
		subcriteria: [{association: "items", max_results: 3}]
	}]
}
`, "q")

	assert.Equal(t, "c", q.Alias)
	assert.Equal(t, []subcriteria.Event{
		subcriteria.Add(queryir.SQLRestriction{SQL: "c.active = 1"}),
		subcriteria.Add(queryir.In{Field: "country", Values: ir.List{ir.String("PT"), ir.String("ES")}}),
		subcriteria.AddOrder(queryir.Order{Property: "name"}),
		subcriteria.AddOrder(queryir.Order{Property: "c.created_at", Descending: true}),
		subcriteria.AddOrder(queryir.Order{Property: "id"}),
		subcriteria.SetProjection(queryir.Projection{Properties: []string{"name"}, RowCount: true}),
		subcriteria.SetFirstResult(20),
		subcriteria.SetMaxResults(10),
		subcriteria.SetComment("report"),
	}, q.Events)

	require.Len(t, q.Subcriteria, 1)
	orders := q.Subcriteria[0]
	assert.Equal(t, []subcriteria.Event{subcriteria.Add(queryir.SQLRestriction{SQL: "o.total > 100"})}, orders.Events)
	require.Len(t, orders.Children, 1)
	assert.Equal(t, "items", orders.Children[0].Entity)
	assert.Equal(t, []subcriteria.Event{subcriteria.SetMaxResults(3)}, orders.Children[0].Events)
}

func TestCompileQueryErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
		msg   string
	}{
		{"unknown entity", `query: q: entity: "ghosts"`, "query.q.entity", "unknown entity"},
		{"missing entity", `query: q: alias: "c"`, "query.q.entity", "entity is required"},
		{"unknown association", `query: q: {entity: "customers", subcriteria: [{association: "invoices"}]}`,
			"query.q.subcriteria[0].association", "unknown association"},
		{"nested association is resolved on the target", `query: q: {entity: "customers", subcriteria: [{association: "orders", subcriteria: [{association: "orders"}]}]}`,
			"query.q.subcriteria[0].subcriteria[0].association", "unknown association"},
		{"filter without alias", `query: q: {entity: "customers", subcriteria: [{association: "orders", filter: "x = 1"}]}`,
			"query.q.subcriteria[0]", "requires both alias and join type"},
		{"missing declared field", `query: q: {entity: "customers", subcriteria: [{variant: "association_alias_join_type", association: "orders", alias: "o"}]}`,
			"query.q.subcriteria[0]", "join_type: is required"},
		{"unknown variant", `query: q: {entity: "customers", subcriteria: [{variant: "everything", association: "orders"}]}`,
			"query.q.subcriteria[0].variant", "unknown recipe variant"},
		{"bad join name", `query: q: {entity: "customers", subcriteria: [{association: "orders", join_type: "sideways"}]}`,
			"query.q.subcriteria[0].join_type", "unknown join type"},
		{"bad join code", `query: q: {entity: "customers", subcriteria: [{association: "orders", join_type: 3}]}`,
			"query.q.subcriteria[0].join_type", "unknown join type code 3"},
		{"empty alias", `query: q: {entity: "customers", subcriteria: [{association: "orders", alias: ""}]}`,
			"query.q.subcriteria[0]", "alias: is required"},
		{"negative limit", `query: q: {entity: "customers", max_results: -1}`, "query.q.max_results", "must not be negative"},
		{"bad order", `query: q: {entity: "customers", orders: ["name sideways"]}`, "query.q.orders[0]", "cannot parse order"},
		{"order without property", `query: q: {entity: "customers", orders: [{descending: true}]}`, "query.q.orders[0]", "property is required"},
		{"bad predicate", `query: q: {entity: "customers", restrictions: [{type: "regex"}]}`, "query.q.restrictions[0]", `unknown predicate type "regex"`},
		{"empty restriction", `query: q: {entity: "customers", restrictions: [" "]}`, "query.q.restrictions[0]", "empty SQL restriction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileConfig(compile(t, entities+tt.query))
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce), "want *CompileError, got %T: %v", err, err)
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, ce.Message, tt.msg)
		})
	}
}

func TestQueryNewCriteriaRecordsInOrder(t *testing.T) {
	q := compileQueryNamed(t, `
query: q: {
	entity: "customers"
	alias: "c"
	max_results: 5
	subcriteria: [{
		association: "orders"
		alias: "o"
		restrictions: ["o.total > 100"]
		subcriteria: [{association: "items", join_type: "left"}]
	}]
}
`, "q")

	log := testutil.NewCallLog()
	coord, err := shard.NewCoordinator(nil, []shard.Shard{{ID: "a"}, {ID: "b"}},
		shard.WithRootFactory(func(id, _, _ string) (subcriteria.Criteria, error) {
			return testutil.NewRecordingCriteria(log, id), nil
		}))
	require.NoError(t, err)

	c, err := q.NewCriteria(coord)
	require.NoError(t, err)
	_, err = c.Build(context.Background())
	require.NoError(t, err)

	for _, id := range []string{"a", "b"} {
		var got []string
		for _, call := range log.ForShard(id) {
			got = append(got, call.String())
		}
		assert.Equal(t, []string{
			"SetMaxResults(5)",
			"CreateCriteriaWithAlias(orders, o)",
			"Add(o.total > 100)",
			"CreateCriteriaWithJoin(items, left)",
		}, got, "shard %s", id)
	}
}

func TestQueryNewCriteriaCompilesSQL(t *testing.T) {
	cfg, err := CompileConfig(compile(t, shopConfig))
	require.NoError(t, err)
	q, err := cfg.Query("big_spenders")
	require.NoError(t, err)

	coord, err := shard.NewCoordinator(cfg.Registry, []shard.Shard{{ID: "eu"}, {ID: "us"}})
	require.NoError(t, err)
	c, err := q.NewCriteria(coord)
	require.NoError(t, err)

	stmts, err := c.Statements(context.Background())
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	for _, st := range stmts {
		assert.Equal(t,
			"SELECT c.* FROM customers AS c INNER JOIN orders AS o ON c.id = o.customer_id WHERE (o.total > 100) ORDER BY c.id COLLATE BINARY ASC LIMIT ?",
			st.SQL)
		assert.Equal(t, []any{int64(20)}, st.Params)
	}
}
