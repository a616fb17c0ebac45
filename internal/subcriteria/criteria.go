package subcriteria

import (
	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
)

// Criteria is a shard-local query node: a root criteria or a sub-criteria.
//
// The five Create methods are the call shapes a Recipe can dispatch to.
// The remaining methods are the mutations an Event can apply.
type Criteria interface {
	// CreateCriteria traverses association with the engine's default join
	// and alias.
	CreateCriteria(association string) (Criteria, error)

	// CreateCriteriaWithJoin traverses association with an explicit join type.
	CreateCriteriaWithJoin(association string, joinType ir.JoinType) (Criteria, error)

	// CreateCriteriaWithAlias traverses association under alias.
	CreateCriteriaWithAlias(association, alias string) (Criteria, error)

	// CreateCriteriaWithAliasAndJoin traverses association under alias with
	// an explicit join type.
	CreateCriteriaWithAliasAndJoin(association, alias string, joinType ir.JoinType) (Criteria, error)

	// CreateCriteriaWithAliasJoinAndFilter is CreateCriteriaWithAliasAndJoin
	// with an extra join condition.
	CreateCriteriaWithAliasJoinAndFilter(association, alias string, joinType ir.JoinType, with queryir.Predicate) (Criteria, error)

	Add(p queryir.Predicate) error
	AddOrder(o queryir.Order) error
	SetProjection(p queryir.Projection) error
	SetMaxResults(n int) error
	SetFirstResult(n int) error
	SetComment(comment string) error
}

// ShardIdentifier is implemented by criteria that know which shard they
// belong to. Errors name the shard when it is available.
type ShardIdentifier interface {
	ShardID() string
}

// ShardOf returns c's shard id, or "" when c does not report one.
func ShardOf(c Criteria) string {
	if s, ok := c.(ShardIdentifier); ok {
		return s.ShardID()
	}
	return ""
}
