// Package criteria is the shard-local criteria engine. A root Node and the
// sub-criteria created from it build one queryir.Select tree, which compiles
// to SQL for that shard.
//
// Nodes are not safe for concurrent use. The fan-out coordinator drives each
// shard's tree from a single goroutine.
package criteria

import (
	"fmt"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/mapping"
	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
	"github.com/ruilorenzetti/hibernate-shards/internal/querysql"
	"github.com/ruilorenzetti/hibernate-shards/internal/subcriteria"
)

// DefaultJoinType is used by create operations that take no join type.
const DefaultJoinType = ir.InnerJoin

// tree is the state shared by every node of one shard's criteria.
type tree struct {
	shard    string
	registry *mapping.Registry
	sel      *queryir.Select
	aliasSeq map[string]int
}

// Node is a root criteria or one of its sub-criteria.
type Node struct {
	t      *tree
	entity string
	alias  string
}

var _ subcriteria.Criteria = (*Node)(nil)

// New creates the root criteria for entity on shard. An empty alias
// defaults to the entity name.
func New(shard string, registry *mapping.Registry, entity, alias string) (*Node, error) {
	if registry == nil {
		return nil, fmt.Errorf("criteria: nil registry")
	}
	e, err := registry.Entity(entity)
	if err != nil {
		return nil, fmt.Errorf("criteria root on shard %s: %w", shard, err)
	}
	if alias == "" {
		alias = e.Name
	}
	t := &tree{
		shard:    shard,
		registry: registry,
		sel: &queryir.Select{
			Entity:   e.Name,
			Table:    e.Table,
			Alias:    alias,
			IDColumn: e.IDColumn(),
		},
		aliasSeq: make(map[string]int),
	}
	return &Node{t: t, entity: e.Name, alias: alias}, nil
}

// ShardID returns the shard this criteria belongs to.
func (n *Node) ShardID() string { return n.t.shard }

// Alias returns the node's SQL alias.
func (n *Node) Alias() string { return n.alias }

// Entity returns the node's entity name.
func (n *Node) Entity() string { return n.entity }

// CreateCriteria implements subcriteria.Criteria.
func (n *Node) CreateCriteria(association string) (subcriteria.Criteria, error) {
	return n.create(association, "", DefaultJoinType, nil)
}

// CreateCriteriaWithJoin implements subcriteria.Criteria.
func (n *Node) CreateCriteriaWithJoin(association string, joinType ir.JoinType) (subcriteria.Criteria, error) {
	return n.create(association, "", joinType, nil)
}

// CreateCriteriaWithAlias implements subcriteria.Criteria.
func (n *Node) CreateCriteriaWithAlias(association, alias string) (subcriteria.Criteria, error) {
	if alias == "" {
		return nil, fmt.Errorf("empty alias for association %q", association)
	}
	return n.create(association, alias, DefaultJoinType, nil)
}

// CreateCriteriaWithAliasAndJoin implements subcriteria.Criteria.
func (n *Node) CreateCriteriaWithAliasAndJoin(association, alias string, joinType ir.JoinType) (subcriteria.Criteria, error) {
	if alias == "" {
		return nil, fmt.Errorf("empty alias for association %q", association)
	}
	return n.create(association, alias, joinType, nil)
}

// CreateCriteriaWithAliasJoinAndFilter implements subcriteria.Criteria.
func (n *Node) CreateCriteriaWithAliasJoinAndFilter(association, alias string, joinType ir.JoinType, with queryir.Predicate) (subcriteria.Criteria, error) {
	if alias == "" {
		return nil, fmt.Errorf("empty alias for association %q", association)
	}
	if with == nil {
		return nil, fmt.Errorf("nil join filter for association %q", association)
	}
	return n.create(association, alias, joinType, with)
}

func (n *Node) create(association, alias string, joinType ir.JoinType, with queryir.Predicate) (subcriteria.Criteria, error) {
	if !joinType.Valid() {
		return nil, fmt.Errorf("association %q: unknown join type code %d", association, int(joinType))
	}
	assoc, target, err := n.t.registry.Association(n.entity, association)
	if err != nil {
		return nil, err
	}

	if alias == "" {
		alias = n.t.nextAlias(association)
	} else if n.t.sel.HasAlias(alias) {
		return nil, fmt.Errorf("duplicate alias %q", alias)
	}

	j := &queryir.Join{
		Association: association,
		Entity:      target.Name,
		Table:       target.Table,
		Alias:       alias,
		ParentAlias: n.alias,
		ParentKey:   assoc.LocalKey,
		ChildKey:    assoc.ForeignKey,
		Type:        joinType,
	}
	if with != nil {
		q, err := queryir.Qualify(with, alias)
		if err != nil {
			return nil, fmt.Errorf("join filter: %w", err)
		}
		j.With = q
	}

	n.t.sel.Joins = append(n.t.sel.Joins, j)
	return &Node{t: n.t, entity: target.Name, alias: alias}, nil
}

// nextAlias generates "<association>_<n>", skipping aliases already taken.
func (t *tree) nextAlias(association string) string {
	for {
		t.aliasSeq[association]++
		alias := fmt.Sprintf("%s_%d", association, t.aliasSeq[association])
		if !t.sel.HasAlias(alias) {
			return alias
		}
	}
}

func checkProperty(property string) error {
	if property == "" {
		return fmt.Errorf("empty property")
	}
	return nil
}

// Add qualifies p with this node's alias and adds it to the WHERE clause.
// Aliases are resolved when the tree is compiled, so p may name a
// sub-criteria created after this node's events were recorded.
func (n *Node) Add(p queryir.Predicate) error {
	if p == nil {
		return fmt.Errorf("nil restriction")
	}
	q, err := queryir.Qualify(p, n.alias)
	if err != nil {
		return err
	}
	n.t.sel.Filters = append(n.t.sel.Filters, q)
	return nil
}

// AddOrder appends an ORDER BY term, qualified with this node's alias.
func (n *Node) AddOrder(o queryir.Order) error {
	if err := checkProperty(o.Property); err != nil {
		return err
	}
	o.Property = queryir.QualifyProperty(o.Property, n.alias)
	n.t.sel.Orders = append(n.t.sel.Orders, o)
	return nil
}

// SetProjection replaces the projection of the whole query.
func (n *Node) SetProjection(p queryir.Projection) error {
	props := make([]string, 0, len(p.Properties))
	for _, prop := range p.Properties {
		if err := checkProperty(prop); err != nil {
			return err
		}
		props = append(props, queryir.QualifyProperty(prop, n.alias))
	}
	n.t.sel.Projection = &queryir.Projection{Properties: props, RowCount: p.RowCount}
	return nil
}

// SetMaxResults limits the query. Zero removes the limit.
func (n *Node) SetMaxResults(max int) error {
	if max < 0 {
		return fmt.Errorf("negative max results %d", max)
	}
	n.t.sel.Limit = max
	return nil
}

// SetFirstResult skips leading rows.
func (n *Node) SetFirstResult(first int) error {
	if first < 0 {
		return fmt.Errorf("negative first result %d", first)
	}
	n.t.sel.Offset = first
	return nil
}

// SetComment sets the SQL comment.
func (n *Node) SetComment(comment string) error {
	n.t.sel.Comment = comment
	return nil
}

// Select returns a copy of the tree built so far.
func (n *Node) Select() *queryir.Select {
	s := *n.t.sel
	s.Joins = make([]*queryir.Join, len(n.t.sel.Joins))
	for i, j := range n.t.sel.Joins {
		jc := *j
		s.Joins[i] = &jc
	}
	s.Filters = append([]queryir.Predicate(nil), n.t.sel.Filters...)
	s.Orders = append([]queryir.Order(nil), n.t.sel.Orders...)
	if n.t.sel.Projection != nil {
		p := *n.t.sel.Projection
		p.Properties = append([]string(nil), p.Properties...)
		s.Projection = &p
	}
	return &s
}

// Statement compiles the whole tree to SQL. Unknown aliases in filters,
// orders and projections are reported here.
func (n *Node) Statement() (string, []any, error) {
	return querysql.NewSQLCompiler().Compile(n.t.sel)
}
