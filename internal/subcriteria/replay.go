package subcriteria

import (
	"fmt"
)

// Materialize creates the sub-criteria described by r on parent and replays
// events on it in order.
//
// Exactly one create operation is invoked on parent. A refusal is returned
// as *SubqueryCreationError; the first failing event stops replay and is
// returned as *EventApplicationError. Events are only read.
func (r Recipe) Materialize(parent Criteria, events []Event) (Criteria, error) {
	if parent == nil {
		return nil, &SubqueryCreationError{
			Variant:     r.variant,
			Association: r.association,
			Err:         fmt.Errorf("nil parent criteria"),
		}
	}

	shard := ShardOf(parent)
	sub, err := r.create(parent)
	if err != nil {
		if IsUnsupportedVariant(err) {
			return nil, err
		}
		return nil, &SubqueryCreationError{Variant: r.variant, Association: r.association, Shard: shard, Err: err}
	}
	if sub == nil {
		return nil, &SubqueryCreationError{
			Variant:     r.variant,
			Association: r.association,
			Shard:       shard,
			Err:         fmt.Errorf("engine returned no criteria"),
		}
	}

	if err := replay(sub, events, shard); err != nil {
		return nil, err
	}
	return sub, nil
}

// create invokes the one create operation r.variant names, passing only the
// fields that variant declares.
func (r Recipe) create(parent Criteria) (Criteria, error) {
	switch r.variant {
	case VariantAssociation:
		return parent.CreateCriteria(r.association)
	case VariantAssociationJoinType:
		return parent.CreateCriteriaWithJoin(r.association, r.joinType)
	case VariantAssociationAlias:
		return parent.CreateCriteriaWithAlias(r.association, r.alias)
	case VariantAssociationAliasJoinType:
		return parent.CreateCriteriaWithAliasAndJoin(r.association, r.alias, r.joinType)
	case VariantAssociationAliasJoinTypeFilter:
		return parent.CreateCriteriaWithAliasJoinAndFilter(r.association, r.alias, r.joinType, r.filter)
	default:
		return nil, &UnsupportedRecipeVariantError{Variant: r.variant}
	}
}

// Replay applies events to target in order, stopping at the first failure.
// Root criteria use it directly; sub-criteria go through Materialize.
func Replay(target Criteria, events []Event) error {
	return replay(target, events, ShardOf(target))
}

func replay(target Criteria, events []Event, shard string) error {
	for i, e := range events {
		if e == nil {
			return &EventApplicationError{Index: i, Kind: "nil", Shard: shard, Err: fmt.Errorf("nil event")}
		}
		if err := e.Apply(target); err != nil {
			return &EventApplicationError{Index: i, Kind: e.Kind(), Shard: shard, Err: err}
		}
	}
	return nil
}
