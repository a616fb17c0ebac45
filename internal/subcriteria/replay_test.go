package subcriteria

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
)

func TestMaterialize_DispatchesOnVariant(t *testing.T) {
	paid := queryir.Eq("o.status", ir.String("paid"))

	// Every recipe carries every field; only the declared ones may reach
	// the engine.
	all := []Option{WithAliasName("o"), WithJoinType(ir.LeftOuterJoin), WithFilter(paid)}

	testCases := []struct {
		variant Variant
		method  string
		args    []any
	}{
		{VariantAssociation, "CreateCriteria", []any{"orders"}},
		{VariantAssociationJoinType, "CreateCriteriaWithJoin", []any{"orders", ir.LeftOuterJoin}},
		{VariantAssociationAlias, "CreateCriteriaWithAlias", []any{"orders", "o"}},
		{VariantAssociationAliasJoinType, "CreateCriteriaWithAliasAndJoin", []any{"orders", "o", ir.LeftOuterJoin}},
		{VariantAssociationAliasJoinTypeFilter, "CreateCriteriaWithAliasJoinAndFilter", []any{"orders", "o", ir.LeftOuterJoin, paid}},
	}

	for _, tc := range testCases {
		t.Run(tc.variant.String(), func(t *testing.T) {
			recipe, err := Capture(tc.variant, "orders", all...)
			require.NoError(t, err)

			parent := &mockCriteria{shard: "shard-a"}
			child := &mockCriteria{shard: "shard-a"}
			parent.On(tc.method, tc.args...).Return(child, nil).Once()

			got, err := recipe.Materialize(parent, nil)
			require.NoError(t, err)
			assert.Same(t, child, got)

			parent.AssertExpectations(t)
			require.Len(t, parent.Calls, 1, "exactly one create operation")
			assert.Equal(t, tc.method, parent.Calls[0].Method)
			assert.Empty(t, child.Calls)
		})
	}
}

func TestMaterialize_OrdersScenario(t *testing.T) {
	recipe, err := WithAlias("orders", "o")
	require.NoError(t, err)
	restriction := queryir.Restriction("o.total > 100")

	var calls []string
	parent := &mockCriteria{}
	child := &mockCriteria{}
	parent.On("CreateCriteriaWithAlias", "orders", "o").Return(child, nil).Once().
		Run(func(mock.Arguments) { calls = append(calls, "createSubquery(orders, o)") })
	child.On("Add", restriction).Return(nil).Once().
		Run(func(mock.Arguments) { calls = append(calls, "addRestriction(o.total > 100)") })

	got, err := recipe.Materialize(parent, []Event{Add(restriction)})
	require.NoError(t, err)
	assert.Same(t, child, got)

	assert.Equal(t, []string{"createSubquery(orders, o)", "addRestriction(o.total > 100)"}, calls)
	parent.AssertNumberOfCalls(t, "CreateCriteriaWithAlias", 1)
	child.AssertNumberOfCalls(t, "Add", 1)
}

func TestMaterialize_EventsAppliedInRecordedOrder(t *testing.T) {
	recipe, err := Association("orders")
	require.NoError(t, err)

	var log []string
	events := []Event{
		logEvent{name: "e1", log: &log},
		logEvent{name: "e2", log: &log},
		logEvent{name: "e3", log: &log},
		logEvent{name: "e4", log: &log},
	}

	parent := &mockCriteria{}
	parent.On("CreateCriteria", "orders").Return(&mockCriteria{}, nil)

	_, err = recipe.Materialize(parent, events)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, log)
}

func TestMaterialize_IndependentParents(t *testing.T) {
	recipe, err := WithAliasAndJoin("orders", "o", ir.InnerJoin)
	require.NoError(t, err)
	events := []Event{
		Add(queryir.Gt("o.total", ir.Int(100))),
		AddOrder(queryir.Desc("o.total")),
	}
	snapshot := append([]Event(nil), events...)

	newShard := func(id string) (*mockCriteria, *mockCriteria) {
		parent := &mockCriteria{shard: id}
		child := &mockCriteria{shard: id}
		parent.On("CreateCriteriaWithAliasAndJoin", "orders", "o", ir.InnerJoin).Return(child, nil).Once()
		child.On("Add", mock.Anything).Return(nil)
		child.On("AddOrder", mock.Anything).Return(nil)
		return parent, child
	}
	parentA, childA := newShard("shard-a")
	parentB, childB := newShard("shard-b")

	gotA, err := recipe.Materialize(parentA, events)
	require.NoError(t, err)
	gotB, err := recipe.Materialize(parentB, events)
	require.NoError(t, err)

	assert.NotSame(t, gotA, gotB)
	assert.Len(t, childA.Calls, 2)
	assert.Len(t, childB.Calls, 2)
	assert.Equal(t, snapshot, events, "events are read-only")

	// Further mutation of one shard's sub-criteria leaves the other alone.
	require.NoError(t, Replay(gotA, []Event{Add(queryir.Lt("o.total", ir.Int(500)))}))
	assert.Len(t, childA.Calls, 3)
	assert.Len(t, childB.Calls, 2)
}

func TestMaterialize_FailingEventAborts(t *testing.T) {
	recipe, err := Association("orders")
	require.NoError(t, err)

	rejected := errors.New("unknown property")
	var log []string
	events := []Event{
		logEvent{name: "e1", log: &log},
		logEvent{name: "e2", log: &log, err: rejected},
		logEvent{name: "e3", log: &log},
	}

	parent := &mockCriteria{shard: "shard-b"}
	parent.On("CreateCriteria", "orders").Return(&mockCriteria{shard: "shard-b"}, nil)

	got, err := recipe.Materialize(parent, events)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, []string{"e1", "e2"}, log, "e3 never applied")

	assert.True(t, IsEventApplication(err))
	assert.ErrorIs(t, err, rejected)

	var eae *EventApplicationError
	require.ErrorAs(t, err, &eae)
	assert.Equal(t, 1, eae.Index)
	assert.Equal(t, "log:e2", eae.Kind)
	assert.Equal(t, "shard-b", eae.Shard)
	assert.Contains(t, err.Error(), "shard shard-b")
}

func TestMaterialize_CreationFailure(t *testing.T) {
	recipe, err := WithJoin("refunds", ir.InnerJoin)
	require.NoError(t, err)

	refused := errors.New(`unknown association "refunds"`)
	var log []string
	parent := &mockCriteria{shard: "shard-c"}
	parent.On("CreateCriteriaWithJoin", "refunds", ir.InnerJoin).Return(nil, refused)

	_, err = recipe.Materialize(parent, []Event{logEvent{name: "e1", log: &log}})
	require.Error(t, err)
	assert.True(t, IsSubqueryCreation(err))
	assert.ErrorIs(t, err, refused)
	assert.Empty(t, log)

	var sce *SubqueryCreationError
	require.ErrorAs(t, err, &sce)
	assert.Equal(t, "refunds", sce.Association)
	assert.Equal(t, "shard-c", sce.Shard)
	assert.Equal(t, VariantAssociationJoinType, sce.Variant)
}

func TestMaterialize_NilResults(t *testing.T) {
	recipe, err := Association("orders")
	require.NoError(t, err)

	_, err = recipe.Materialize(nil, nil)
	assert.True(t, IsSubqueryCreation(err))

	parent := &mockCriteria{}
	parent.On("CreateCriteria", "orders").Return(nil, nil)
	_, err = recipe.Materialize(parent, nil)
	assert.True(t, IsSubqueryCreation(err))

	parent = &mockCriteria{}
	parent.On("CreateCriteria", "orders").Return(&mockCriteria{}, nil)
	_, err = recipe.Materialize(parent, []Event{nil})
	assert.True(t, IsEventApplication(err))
}

func TestMaterialize_CorruptVariant(t *testing.T) {
	recipe := Recipe{variant: Variant(99), association: "orders", alias: "o"}
	parent := &mockCriteria{}

	_, err := recipe.Materialize(parent, nil)
	require.Error(t, err)
	assert.True(t, IsUnsupportedVariant(err))
	assert.False(t, IsSubqueryCreation(err))
	assert.Contains(t, err.Error(), "Variant(99)")
	assert.Empty(t, parent.Calls)
}

func TestReplay_RootCriteria(t *testing.T) {
	root := &mockCriteria{shard: "shard-a"}
	root.On("SetMaxResults", 10).Return(nil).Once()
	root.On("SetFirstResult", 20).Return(nil).Once()
	root.On("SetComment", "nightly").Return(nil).Once()
	root.On("SetProjection", queryir.Projection{RowCount: true}).Return(nil).Once()

	err := Replay(root, []Event{
		SetMaxResults(10),
		SetFirstResult(20),
		SetComment("nightly"),
		SetProjection(queryir.Projection{RowCount: true}),
	})
	require.NoError(t, err)
	root.AssertExpectations(t)

	methods := make([]string, 0, len(root.Calls))
	for _, c := range root.Calls {
		methods = append(methods, c.Method)
	}
	assert.Equal(t, []string{"SetMaxResults", "SetFirstResult", "SetComment", "SetProjection"}, methods)
}
