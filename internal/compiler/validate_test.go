package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validate(t *testing.T, query string) []ValidationError {
	t.Helper()
	cfg, err := CompileConfig(compile(t, entities+query))
	require.NoError(t, err)
	return Validate(cfg)
}

func TestValidateClean(t *testing.T) {
	errs := validate(t, `
query: q: {
	entity: "customers"
	alias: "c"
	restrictions: ["c.active = 1", {type: "compare", field: "o.total", op: ">", value: 5}]
	orders: ["o.created_at desc", "name"]
	subcriteria: [{
		association: "orders"
		alias: "o"
		subcriteria: [{
			association: "items"
			alias: "i"
			join_type: "left"
			filter: {type: "is_null", field: "i.sku", negated: true}
		}]
	}]
}
`)
	assert.Empty(t, errs)
}

func TestValidateRootAliasDefaultsToEntity(t *testing.T) {
	errs := validate(t, `
query: q: {
	entity: "customers"
	orders: ["customers.name"]
}
`)
	assert.Empty(t, errs)
}

func TestValidateDuplicateAlias(t *testing.T) {
	errs := validate(t, `
query: q: {
	entity: "customers"
	alias: "c"
	subcriteria: [
		{association: "orders", alias: "o"},
		{association: "orders", alias: "o", subcriteria: [{association: "items", alias: "c"}]},
	]
}
`)
	require.Len(t, errs, 2)

	assert.Equal(t, ErrDuplicateAlias, errs[0].Code)
	assert.Equal(t, "query.q.subcriteria[1].alias", errs[0].Field)
	assert.Contains(t, errs[0].Message, "query.q.subcriteria[0]")

	assert.Equal(t, ErrDuplicateAlias, errs[1].Code)
	assert.Equal(t, "query.q.subcriteria[1].subcriteria[0].alias", errs[1].Field)
}

func TestValidateUnknownAlias(t *testing.T) {
	errs := validate(t, `
query: q: {
	entity: "customers"
	alias: "c"
	orders: ["x.name"]
	projection: properties: ["c.name", "y.total"]
	subcriteria: [{
		association: "orders"
		alias: "o"
		join_type: "inner"
		filter: {type: "compare", field: "z.total", op: "=", value: 1}
		restrictions: [{type: "in", field: "w.status", values: ["paid"]}]
	}]
}
`)

	var fields []string
	for _, e := range errs {
		assert.Equal(t, ErrUnknownAlias, e.Code, e.Error())
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{
		"query.q.events[0]",
		"query.q.events[1]",
		"query.q.subcriteria[0].filter",
		"query.q.subcriteria[0].events[0]",
	}, fields)
}

func TestValidateCollectsAcrossQueries(t *testing.T) {
	errs := validate(t, `
query: b: {entity: "customers", orders: ["nope.name"]}
query: a: {entity: "customers", orders: ["nada.name"]}
`)
	require.Len(t, errs, 2)
	assert.Equal(t, "query.a.events[0]", errs[0].Field)
	assert.Equal(t, "query.b.events[0]", errs[1].Field)
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "query.q.events[0]", Message: `references undeclared alias "x"`, Code: ErrUnknownAlias}
	assert.Equal(t, `[E202] query.q.events[0]: references undeclared alias "x"`, e.Error())
}
