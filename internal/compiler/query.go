package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/mapping"
	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
	"github.com/ruilorenzetti/hibernate-shards/internal/shard"
	"github.com/ruilorenzetti/hibernate-shards/internal/subcriteria"
)

// Query is a named logical query: root events plus a tree of captured
// sub-criteria recipes with their events.
type Query struct {
	Name        string
	Entity      string
	Alias       string
	Events      []subcriteria.Event
	Subcriteria []Node
}

// Node is one sub-criteria of a query.
type Node struct {
	Recipe   subcriteria.Recipe
	Events   []subcriteria.Event
	Children []Node

	// Entity is the association's target entity, resolved at compile time.
	Entity string
}

// attacher is a logical criteria node that accepts captured recipes.
type attacher interface {
	subcriteria.Criteria
	Attach(subcriteria.Recipe) (*shard.Subcriteria, error)
}

// NewCriteria records q on a new logical criteria of coord.
func (q *Query) NewCriteria(coord *shard.Coordinator) (*shard.Criteria, error) {
	c, err := coord.NewCriteria(q.Entity, q.Alias)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Name, err)
	}
	if err := subcriteria.Replay(c, q.Events); err != nil {
		return nil, fmt.Errorf("query %s: root: %w", q.Name, err)
	}
	if err := attachAll(c, q.Subcriteria); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Name, err)
	}
	return c, nil
}

func attachAll(parent attacher, nodes []Node) error {
	for _, n := range nodes {
		sub, err := parent.Attach(n.Recipe)
		if err != nil {
			return err
		}
		if err := subcriteria.Replay(sub, n.Events); err != nil {
			return fmt.Errorf("sub-criteria %q: %w", n.Recipe.Association(), err)
		}
		if err := attachAll(sub, n.Children); err != nil {
			return err
		}
	}
	return nil
}

// compileQuery parses one entry of the query struct.
func compileQuery(registry *mapping.Registry, name string, v cue.Value) (*Query, error) {
	field := "query." + name
	q := &Query{Name: name}

	var err error
	if q.Entity, err = requiredString(v, field, "entity"); err != nil {
		return nil, err
	}
	if _, err := registry.Entity(q.Entity); err != nil {
		return nil, &CompileError{Field: field + ".entity", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("entity")).Pos()}
	}
	if q.Alias, err = optionalString(v, field, "alias"); err != nil {
		return nil, err
	}
	if q.Events, err = compileEvents(v, field); err != nil {
		return nil, err
	}
	if q.Subcriteria, err = compileNodes(registry, q.Entity, v, field); err != nil {
		return nil, err
	}
	return q, nil
}

// compileNodes parses the subcriteria list of v, whose entity is owner.
func compileNodes(registry *mapping.Registry, owner string, v cue.Value, field string) ([]Node, error) {
	listVal := v.LookupPath(cue.ParsePath("subcriteria"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(field+".subcriteria", err)
	}

	var nodes []Node
	for i := 0; iter.Next(); i++ {
		n, err := compileNode(registry, owner, iter.Value(), fmt.Sprintf("%s.subcriteria[%d]", field, i))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// compileNode parses one sub-criteria. The variant is taken from the variant
// field when present, otherwise inferred from which recipe fields are set.
func compileNode(registry *mapping.Registry, owner string, v cue.Value, field string) (Node, error) {
	assoc, err := requiredString(v, field, "association")
	if err != nil {
		return Node{}, err
	}
	_, target, err := registry.Association(owner, assoc)
	if err != nil {
		return Node{}, &CompileError{Field: field + ".association", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("association")).Pos()}
	}

	var opts []subcriteria.Option
	hasJoin, hasAlias, hasFilter := false, false, false

	if jv := v.LookupPath(cue.ParsePath("join_type")); jv.Exists() {
		jt, err := compileJoinType(jv, field+".join_type")
		if err != nil {
			return Node{}, err
		}
		opts = append(opts, subcriteria.WithJoinType(jt))
		hasJoin = true
	}
	if av := v.LookupPath(cue.ParsePath("alias")); av.Exists() {
		alias, err := av.String()
		if err != nil {
			return Node{}, formatCUEError(field+".alias", err)
		}
		opts = append(opts, subcriteria.WithAliasName(alias))
		hasAlias = true
	}
	if fv := v.LookupPath(cue.ParsePath("filter")); fv.Exists() {
		p, err := compilePredicate(fv, field+".filter")
		if err != nil {
			return Node{}, err
		}
		opts = append(opts, subcriteria.WithFilter(p))
		hasFilter = true
	}

	var variant subcriteria.Variant
	if vv := v.LookupPath(cue.ParsePath("variant")); vv.Exists() {
		name, err := vv.String()
		if err != nil {
			return Node{}, formatCUEError(field+".variant", err)
		}
		if variant, err = subcriteria.ParseVariant(name); err != nil {
			return Node{}, &CompileError{Field: field + ".variant", Message: err.Error(), Pos: vv.Pos()}
		}
	} else if variant, err = subcriteria.InferVariant(hasJoin, hasAlias, hasFilter); err != nil {
		return Node{}, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}

	recipe, err := subcriteria.Capture(variant, assoc, opts...)
	if err != nil {
		return Node{}, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}

	n := Node{Recipe: recipe, Entity: target.Name}
	if n.Events, err = compileEvents(v, field); err != nil {
		return Node{}, err
	}
	if n.Children, err = compileNodes(registry, target.Name, v, field); err != nil {
		return Node{}, err
	}
	return n, nil
}

// compileJoinType accepts a join name or its integer code.
func compileJoinType(v cue.Value, field string) (ir.JoinType, error) {
	if v.IncompleteKind() == cue.IntKind {
		n, err := v.Int64()
		if err != nil {
			return 0, formatCUEError(field, err)
		}
		jt := ir.JoinType(n)
		if !jt.Valid() {
			return 0, &CompileError{Field: field, Message: fmt.Sprintf("unknown join type code %d", n), Pos: v.Pos()}
		}
		return jt, nil
	}
	s, err := v.String()
	if err != nil {
		return 0, formatCUEError(field, err)
	}
	jt, err := ir.ParseJoinType(s)
	if err != nil {
		return 0, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return jt, nil
}

// compileEvents reads the mutation fields of a query or sub-criteria, in
// the order they are recorded: restrictions, orders, projection,
// first_result, max_results, comment.
func compileEvents(v cue.Value, field string) ([]subcriteria.Event, error) {
	var events []subcriteria.Event

	if rv := v.LookupPath(cue.ParsePath("restrictions")); rv.Exists() {
		iter, err := rv.List()
		if err != nil {
			return nil, formatCUEError(field+".restrictions", err)
		}
		for i := 0; iter.Next(); i++ {
			p, err := compilePredicate(iter.Value(), fmt.Sprintf("%s.restrictions[%d]", field, i))
			if err != nil {
				return nil, err
			}
			events = append(events, subcriteria.Add(p))
		}
	}

	if ov := v.LookupPath(cue.ParsePath("orders")); ov.Exists() {
		iter, err := ov.List()
		if err != nil {
			return nil, formatCUEError(field+".orders", err)
		}
		for i := 0; iter.Next(); i++ {
			o, err := compileOrder(iter.Value(), fmt.Sprintf("%s.orders[%d]", field, i))
			if err != nil {
				return nil, err
			}
			events = append(events, subcriteria.AddOrder(o))
		}
	}

	if pv := v.LookupPath(cue.ParsePath("projection")); pv.Exists() {
		var p struct {
			Properties []string `json:"properties"`
			RowCount   bool     `json:"row_count"`
		}
		if err := pv.Decode(&p); err != nil {
			return nil, formatCUEError(field+".projection", err)
		}
		events = append(events, subcriteria.SetProjection(queryir.Projection{Properties: p.Properties, RowCount: p.RowCount}))
	}

	for _, lim := range []struct {
		name string
		ev   func(int) subcriteria.Event
	}{
		{"first_result", subcriteria.SetFirstResult},
		{"max_results", subcriteria.SetMaxResults},
	} {
		lv := v.LookupPath(cue.ParsePath(lim.name))
		if !lv.Exists() {
			continue
		}
		n, err := lv.Int64()
		if err != nil {
			return nil, formatCUEError(field+"."+lim.name, err)
		}
		if n < 0 {
			return nil, &CompileError{Field: field + "." + lim.name, Message: "must not be negative", Pos: lv.Pos()}
		}
		events = append(events, lim.ev(int(n)))
	}

	comment, err := optionalString(v, field, "comment")
	if err != nil {
		return nil, err
	}
	if comment != "" {
		events = append(events, subcriteria.SetComment(comment))
	}
	return events, nil
}

// compileOrder accepts "property", "property desc" or a struct.
func compileOrder(v cue.Value, field string) (queryir.Order, error) {
	if s, err := v.String(); err == nil {
		parts := strings.Fields(s)
		switch {
		case len(parts) == 1:
			return queryir.Order{Property: parts[0]}, nil
		case len(parts) == 2 && strings.EqualFold(parts[1], "asc"):
			return queryir.Order{Property: parts[0]}, nil
		case len(parts) == 2 && strings.EqualFold(parts[1], "desc"):
			return queryir.Order{Property: parts[0], Descending: true}, nil
		default:
			return queryir.Order{}, &CompileError{Field: field, Message: fmt.Sprintf("cannot parse order %q", s), Pos: v.Pos()}
		}
	}
	var o struct {
		Property   string `json:"property"`
		Descending bool   `json:"descending"`
	}
	if err := v.Decode(&o); err != nil {
		return queryir.Order{}, formatCUEError(field, err)
	}
	if o.Property == "" {
		return queryir.Order{}, &CompileError{Field: field, Message: "property is required", Pos: v.Pos()}
	}
	return queryir.Order{Property: o.Property, Descending: o.Descending}, nil
}

// compilePredicate accepts a raw SQL string or a predicate struct in its
// tagged JSON form.
func compilePredicate(v cue.Value, field string) (queryir.Predicate, error) {
	if s, err := v.String(); err == nil {
		if strings.TrimSpace(s) == "" {
			return nil, &CompileError{Field: field, Message: "empty SQL restriction", Pos: v.Pos()}
		}
		return queryir.SQLRestriction{SQL: s}, nil
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(field, err)
	}
	p, err := queryir.UnmarshalPredicate(data)
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return p, nil
}
