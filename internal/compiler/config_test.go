package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopConfig = `
shards: [
	{id: "eu", path: "eu.db"},
	{id: "us", path: "us.db"},
]

entity: {
	customers: {
		table: "customers"
		associations: orders: {target: "orders", local_key: "id", foreign_key: "customer_id"}
	}
	orders: {
		table: "orders"
		id:    "order_id"
		associations: items: {target: "items", local_key: "order_id", foreign_key: "order_id"}
	}
	items: table: "order_items"
}

query: big_spenders: {
	entity: "customers"
	alias:  "c"
	max_results: 20
	subcriteria: [{
		association: "orders"
		alias:       "o"
		restrictions: ["o.total > 100"]
	}]
}
`

func compile(t *testing.T, src string) cue.Value {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("config.cue"))
	require.NoError(t, v.Err())
	return v
}

func TestCompileConfigBasic(t *testing.T) {
	cfg, err := CompileConfig(compile(t, shopConfig))
	require.NoError(t, err)

	assert.Equal(t, []ShardConfig{{ID: "eu", Path: "eu.db"}, {ID: "us", Path: "us.db"}}, cfg.Shards)
	assert.Equal(t, []string{"customers", "items", "orders"}, cfg.Registry.Names())

	orders, err := cfg.Registry.Entity("orders")
	require.NoError(t, err)
	assert.Equal(t, "order_id", orders.IDColumn())

	items, err := cfg.Registry.Entity("items")
	require.NoError(t, err)
	assert.Equal(t, "order_items", items.Table)
	assert.Equal(t, "id", items.IDColumn())

	a, target, err := cfg.Registry.Association("customers", "orders")
	require.NoError(t, err)
	assert.Equal(t, "customer_id", a.ForeignKey)
	assert.Equal(t, "orders", target.Name)

	assert.Equal(t, []string{"big_spenders"}, cfg.QueryNames())
}

func TestCompileConfigQueryLookup(t *testing.T) {
	cfg, err := CompileConfig(compile(t, shopConfig))
	require.NoError(t, err)

	q, err := cfg.Query("big_spenders")
	require.NoError(t, err)
	assert.Equal(t, "customers", q.Entity)

	_, err = cfg.Query("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown query "missing"`)
	assert.Contains(t, err.Error(), "big_spenders")
}

func TestCompileConfigQueriesOptional(t *testing.T) {
	cfg, err := CompileConfig(compile(t, `
		shards: [{id: "only"}]
		entity: customers: table: "customers"
	`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Queries)
	assert.Equal(t, "", cfg.Shards[0].Path)
}

func TestCompileConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
		msg   string
	}{
		{
			name:  "no entities",
			src:   `shards: [{id: "a"}]`,
			field: "entity",
			msg:   "at least one entity is required",
		},
		{
			name:  "missing table",
			src:   `shards: [{id: "a"}], entity: customers: {id: "id"}`,
			field: "entity.customers.table",
			msg:   "table is required",
		},
		{
			name:  "association key missing",
			src:   `shards: [{id: "a"}], entity: customers: {table: "c", associations: orders: {target: "orders", local_key: "id"}}`,
			field: "entity.customers.associations.orders.foreign_key",
			msg:   "foreign_key is required",
		},
		{
			name:  "dangling target",
			src:   `shards: [{id: "a"}], entity: customers: {table: "c", associations: orders: {target: "orders", local_key: "id", foreign_key: "cid"}}`,
			field: "entity",
			msg:   "unknown entity",
		},
		{
			name:  "no shards",
			src:   `entity: customers: table: "customers"`,
			field: "shards",
			msg:   "at least one shard is required",
		},
		{
			name:  "empty shard list",
			src:   `shards: [], entity: customers: table: "customers"`,
			field: "shards",
			msg:   "at least one shard is required",
		},
		{
			name:  "duplicate shard",
			src:   `shards: [{id: "a"}, {id: "a"}], entity: customers: table: "customers"`,
			field: "shards[1].id",
			msg:   `duplicate shard id "a"`,
		},
		{
			name:  "shard id type",
			src:   `shards: [{id: 3}], entity: customers: table: "customers"`,
			field: "shards[0].id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileConfig(compile(t, tt.src))
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce), "want *CompileError, got %T: %v", err, err)
			assert.Equal(t, tt.field, ce.Field)
			if tt.msg != "" {
				assert.Contains(t, ce.Message, tt.msg)
			}
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	_, err := CompileConfig(compile(t, `
shards: [{id: "a"}, {id: "a"}]
entity: customers: table: "customers"
`))
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	require.True(t, ce.Pos.IsValid())
	assert.Equal(t, 2, ce.Pos.Line())
	assert.Contains(t, err.Error(), "config.cue:2:")
}

func TestCompileConfigCUEError(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`shards: [`, cue.Filename("bad.cue"))

	_, err := CompileConfig(v)
	require.Error(t, err)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "config", ce.Field)
}
