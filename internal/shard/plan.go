package shard

import (
	"encoding/json"
	"fmt"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/store"
	"github.com/ruilorenzetti/hibernate-shards/internal/subcriteria"
)

// Plan is a serializable snapshot of a logical criteria tree.
// Replaying a plan on a shard yields the same criteria as the tree it was
// taken from.
type Plan struct {
	ID         string
	Name       string
	Entity     string
	Alias      string
	RootEvents []subcriteria.Event
	Nodes      []PlanNode // Creation order
}

// PlanNode is one sub-criteria of a plan.
type PlanNode struct {
	ID       string
	ParentID string
	Seq      int64
	Recipe   subcriteria.Recipe
	Events   []subcriteria.Event
}

// Plan snapshots c under a fresh plan id.
func (c *Criteria) Plan(name string) *Plan {
	snap := c.t.snapshot()
	p := &Plan{
		ID:         c.coord.ids.Generate(),
		Name:       name,
		Entity:     snap.entity,
		Alias:      snap.alias,
		RootEvents: snap.rootEvents,
		Nodes:      make([]PlanNode, len(snap.nodes)),
	}
	for i, n := range snap.nodes {
		p.Nodes[i] = PlanNode{ID: n.id, ParentID: n.parentID, Seq: n.seq, Recipe: n.recipe, Events: n.events}
	}
	return p
}

// FromPlan recreates a logical criteria from p. Further calls extend it.
func (c *Coordinator) FromPlan(p *Plan) (*Criteria, error) {
	crit, err := c.NewCriteria(p.Entity, p.Alias)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", p.ID, err)
	}

	t := crit.t
	known := map[string]bool{"": true}
	var maxSeq int64
	for i, n := range p.Nodes {
		if n.ID == "" || known[n.ID] {
			return nil, fmt.Errorf("plan %s: node[%d] has empty or duplicate id %q", p.ID, i, n.ID)
		}
		if !known[n.ParentID] {
			return nil, fmt.Errorf("plan %s: node %s precedes its parent %s", p.ID, n.ID, n.ParentID)
		}
		known[n.ID] = true
		if n.Seq > maxSeq {
			maxSeq = n.Seq
		}
		t.nodes = append(t.nodes, &logicalNode{
			id:       n.ID,
			parentID: n.ParentID,
			seq:      n.Seq,
			recipe:   n.Recipe,
			events:   append([]subcriteria.Event(nil), n.Events...),
		})
	}
	t.rootEvents = append([]subcriteria.Event(nil), p.RootEvents...)
	t.clock = NewClockAt(maxSeq)
	t.ids = &sequentialGenerator{prefix: "n", clock: NewClockAt(int64(len(p.Nodes)))}
	return crit, nil
}

// Subcriteria returns the logical sub-criteria with the given node id.
func (c *Criteria) Subcriteria(id string) (*Subcriteria, bool) {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	for _, n := range c.t.nodes {
		if n.id == id {
			return &Subcriteria{handle: handle{t: c.t, node: n}}, true
		}
	}
	return nil, false
}

// Record encodes p for the plan catalog.
func (p *Plan) Record() (store.PlanRecord, error) {
	hash, err := p.Hash()
	if err != nil {
		return store.PlanRecord{}, err
	}
	rec := store.PlanRecord{ID: p.ID, Name: p.Name, Entity: p.Entity, Alias: p.Alias, Hash: hash}
	if rec.RootEvents, err = encodeEvents(p.RootEvents); err != nil {
		return store.PlanRecord{}, fmt.Errorf("root: %w", err)
	}
	for _, n := range p.Nodes {
		recipe, err := json.Marshal(n.Recipe)
		if err != nil {
			return store.PlanRecord{}, fmt.Errorf("node %s recipe: %w", n.ID, err)
		}
		events, err := encodeEvents(n.Events)
		if err != nil {
			return store.PlanRecord{}, fmt.Errorf("node %s: %w", n.ID, err)
		}
		rec.Nodes = append(rec.Nodes, store.NodeRecord{
			ID:       n.ID,
			ParentID: n.ParentID,
			Seq:      n.Seq,
			Recipe:   recipe,
			Events:   events,
		})
	}
	return rec, nil
}

// PlanFromRecord decodes a catalog record and checks its hash.
func PlanFromRecord(rec store.PlanRecord) (*Plan, error) {
	p := &Plan{ID: rec.ID, Name: rec.Name, Entity: rec.Entity, Alias: rec.Alias}
	var err error
	if p.RootEvents, err = decodeEvents(rec.RootEvents); err != nil {
		return nil, fmt.Errorf("plan %s root: %w", rec.ID, err)
	}
	for _, n := range rec.Nodes {
		var r subcriteria.Recipe
		if err := json.Unmarshal(n.Recipe, &r); err != nil {
			return nil, fmt.Errorf("plan %s node %s recipe: %w", rec.ID, n.ID, err)
		}
		events, err := decodeEvents(n.Events)
		if err != nil {
			return nil, fmt.Errorf("plan %s node %s: %w", rec.ID, n.ID, err)
		}
		p.Nodes = append(p.Nodes, PlanNode{ID: n.ID, ParentID: n.ParentID, Seq: n.Seq, Recipe: r, Events: events})
	}

	hash, err := p.Hash()
	if err != nil {
		return nil, err
	}
	if rec.Hash != "" && hash != rec.Hash {
		return nil, fmt.Errorf("plan %s: hash mismatch: stored %s, computed %s", rec.ID, rec.Hash, hash)
	}
	return p, nil
}

// Hash returns the content hash of p. The plan id and name are excluded,
// so two saves of the same tree hash identically.
func (p *Plan) Hash() (string, error) {
	type nodeJSON struct {
		ID       string             `json:"id"`
		ParentID string             `json:"parent_id"`
		Recipe   subcriteria.Recipe `json:"recipe"`
		Events   []json.RawMessage  `json:"events"`
	}
	doc := struct {
		Entity     string            `json:"entity"`
		Alias      string            `json:"alias"`
		RootEvents []json.RawMessage `json:"root_events"`
		Nodes      []nodeJSON        `json:"nodes"`
	}{Entity: p.Entity, Alias: p.Alias, Nodes: []nodeJSON{}}

	var err error
	if doc.RootEvents, err = encodeEvents(p.RootEvents); err != nil {
		return "", fmt.Errorf("plan hash: %w", err)
	}
	for _, n := range p.Nodes {
		events, err := encodeEvents(n.Events)
		if err != nil {
			return "", fmt.Errorf("plan hash: node %s: %w", n.ID, err)
		}
		doc.Nodes = append(doc.Nodes, nodeJSON{ID: n.ID, ParentID: n.ParentID, Recipe: n.Recipe, Events: events})
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("plan hash: %w", err)
	}
	v, err := ir.UnmarshalValue(b)
	if err != nil {
		return "", fmt.Errorf("plan hash: %w", err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return "", fmt.Errorf("plan hash: expected object, got %T", v)
	}
	return ir.PlanHash(obj)
}

func encodeEvents(events []subcriteria.Event) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(events))
	for i, e := range events {
		b, err := subcriteria.MarshalEvent(e)
		if err != nil {
			return nil, fmt.Errorf("event[%d]: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeEvents(raw []json.RawMessage) ([]subcriteria.Event, error) {
	var out []subcriteria.Event
	for i, r := range raw {
		e, err := subcriteria.UnmarshalEvent(r)
		if err != nil {
			return nil, fmt.Errorf("event[%d]: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}
