package shard

import (
	"fmt"
	"sync"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
	"github.com/ruilorenzetti/hibernate-shards/internal/subcriteria"
)

// logicalTree is the shard-independent state of one logical query.
// Every handle of the tree shares its mutex.
type logicalTree struct {
	mu         sync.Mutex
	entity     string
	alias      string
	rootEvents []subcriteria.Event
	nodes      []*logicalNode // Creation order; a parent precedes its children
	clock      *Clock
	ids        IDGenerator
}

// logicalNode is one captured sub-criteria.
type logicalNode struct {
	id       string
	parentID string // "" for children of the root
	seq      int64
	recipe   subcriteria.Recipe
	events   []subcriteria.Event
}

// handle records calls against the root (node == nil) or a sub-criteria.
// Nothing is executed until the coordinator builds the tree per shard.
type handle struct {
	t    *logicalTree
	node *logicalNode
}

// Criteria is a logical root criteria spanning every shard.
// It implements subcriteria.Criteria by recording, never executing.
type Criteria struct {
	handle
	coord *Coordinator
}

// Subcriteria is a logical sub-criteria. Its recipe is captured at creation
// and its mutations are recorded for replay on every shard.
type Subcriteria struct {
	handle
}

var (
	_ subcriteria.Criteria = (*Criteria)(nil)
	_ subcriteria.Criteria = (*Subcriteria)(nil)
)

// ID returns the sub-criteria's node id within its plan.
func (s *Subcriteria) ID() string { return s.node.id }

// Recipe returns the captured recipe.
func (s *Subcriteria) Recipe() subcriteria.Recipe { return s.node.recipe }

// Entity returns the root entity.
func (c *Criteria) Entity() string { return c.t.entity }

// Alias returns the root alias.
func (c *Criteria) Alias() string { return c.t.alias }

func (h handle) capture(r subcriteria.Recipe, err error) (subcriteria.Criteria, error) {
	if err != nil {
		return nil, err
	}
	h.t.mu.Lock()
	defer h.t.mu.Unlock()

	n := &logicalNode{
		id:     h.t.ids.Generate(),
		seq:    h.t.clock.Next(),
		recipe: r,
	}
	if h.node != nil {
		n.parentID = h.node.id
	}
	h.t.nodes = append(h.t.nodes, n)
	return &Subcriteria{handle: handle{t: h.t, node: n}}, nil
}

func (h handle) record(e subcriteria.Event) error {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()

	if h.node == nil {
		h.t.rootEvents = append(h.t.rootEvents, e)
	} else {
		h.node.events = append(h.node.events, e)
	}
	return nil
}

// Attach adds a sub-criteria from an already captured recipe.
func (h handle) Attach(r subcriteria.Recipe) (*Subcriteria, error) {
	if !r.Variant().Valid() {
		return nil, &subcriteria.UnsupportedRecipeVariantError{Variant: r.Variant()}
	}
	c, err := h.capture(r, nil)
	if err != nil {
		return nil, err
	}
	return c.(*Subcriteria), nil
}

func (h handle) CreateCriteria(association string) (subcriteria.Criteria, error) {
	return h.capture(subcriteria.Association(association))
}

func (h handle) CreateCriteriaWithJoin(association string, joinType ir.JoinType) (subcriteria.Criteria, error) {
	return h.capture(subcriteria.WithJoin(association, joinType))
}

func (h handle) CreateCriteriaWithAlias(association, alias string) (subcriteria.Criteria, error) {
	return h.capture(subcriteria.WithAlias(association, alias))
}

func (h handle) CreateCriteriaWithAliasAndJoin(association, alias string, joinType ir.JoinType) (subcriteria.Criteria, error) {
	return h.capture(subcriteria.WithAliasAndJoin(association, alias, joinType))
}

func (h handle) CreateCriteriaWithAliasJoinAndFilter(association, alias string, joinType ir.JoinType, with queryir.Predicate) (subcriteria.Criteria, error) {
	return h.capture(subcriteria.WithAliasJoinAndFilter(association, alias, joinType, with))
}

func (h handle) Add(p queryir.Predicate) error {
	if p == nil {
		return fmt.Errorf("nil restriction")
	}
	return h.record(subcriteria.Add(p))
}

func (h handle) AddOrder(o queryir.Order) error {
	if o.Property == "" {
		return fmt.Errorf("order without property")
	}
	return h.record(subcriteria.AddOrder(o))
}

func (h handle) SetProjection(p queryir.Projection) error {
	return h.record(subcriteria.SetProjection(p))
}

func (h handle) SetMaxResults(n int) error {
	if n < 0 {
		return fmt.Errorf("negative max results %d", n)
	}
	return h.record(subcriteria.SetMaxResults(n))
}

func (h handle) SetFirstResult(n int) error {
	if n < 0 {
		return fmt.Errorf("negative first result %d", n)
	}
	return h.record(subcriteria.SetFirstResult(n))
}

func (h handle) SetComment(comment string) error {
	return h.record(subcriteria.SetComment(comment))
}

// snapshot is an immutable copy of a logical tree, safe to replay
// concurrently while the tree keeps recording.
type snapshot struct {
	entity     string
	alias      string
	rootEvents []subcriteria.Event
	nodes      []logicalNode
}

func (t *logicalTree) snapshot() snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := snapshot{
		entity:     t.entity,
		alias:      t.alias,
		rootEvents: append([]subcriteria.Event(nil), t.rootEvents...),
		nodes:      make([]logicalNode, len(t.nodes)),
	}
	for i, n := range t.nodes {
		s.nodes[i] = *n
		s.nodes[i].events = append([]subcriteria.Event(nil), n.events...)
	}
	return s
}
