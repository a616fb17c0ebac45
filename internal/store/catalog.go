package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrPlanNotFound is returned by ReadPlan for an unknown plan id.
var ErrPlanNotFound = errors.New("plan not found")

// RootNodeID names the root criteria in plan_events.node_id.
const RootNodeID = ""

// PlanRecord is a saved logical criteria tree.
// Recipes and events are opaque JSON documents.
type PlanRecord struct {
	ID         string
	Name       string
	Entity     string
	Alias      string
	Hash       string
	Seq        int64
	RootEvents []json.RawMessage
	Nodes      []NodeRecord
}

// NodeRecord is one saved sub-criteria.
type NodeRecord struct {
	ID       string
	ParentID string // RootNodeID for children of the root
	Seq      int64
	Recipe   json.RawMessage
	Events   []json.RawMessage
}

// PlanSummary is a catalog listing entry.
type PlanSummary struct {
	ID     string
	Name   string
	Entity string
	Hash   string
	Seq    int64
}

// WritePlan saves a plan and its nodes and events in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency; inserted is false when a
// plan with the same id already exists. Seq is assigned by the store.
func (s *Store) WritePlan(ctx context.Context, p PlanRecord) (inserted bool, err error) {
	if p.ID == "" {
		return false, fmt.Errorf("write plan: empty id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write plan: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO plans (id, name, entity, alias, hash, seq)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM plans))
		ON CONFLICT(id) DO NOTHING
	`, p.ID, p.Name, p.Entity, p.Alias, p.Hash)
	if err != nil {
		return false, fmt.Errorf("write plan: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write plan: rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := insertEvents(ctx, tx, p.ID, RootNodeID, p.RootEvents); err != nil {
		return false, err
	}
	for _, node := range p.Nodes {
		if node.ID == RootNodeID {
			return false, fmt.Errorf("write plan: node with empty id")
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO plan_nodes (plan_id, id, parent_id, seq, recipe)
			VALUES (?, ?, ?, ?, ?)
		`, p.ID, node.ID, node.ParentID, node.Seq, string(node.Recipe))
		if err != nil {
			return false, fmt.Errorf("write plan node %s: %w", node.ID, err)
		}
		if err := insertEvents(ctx, tx, p.ID, node.ID, node.Events); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write plan: commit: %w", err)
	}
	return true, nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, planID, nodeID string, events []json.RawMessage) error {
	for i, e := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO plan_events (plan_id, node_id, seq, event)
			VALUES (?, ?, ?, ?)
		`, planID, nodeID, i, string(e))
		if err != nil {
			return fmt.Errorf("write plan event %s[%d]: %w", nodeID, i, err)
		}
	}
	return nil
}

// ReadPlan loads a plan with nodes ordered by seq and events in recorded order.
func (s *Store) ReadPlan(ctx context.Context, id string) (PlanRecord, error) {
	var p PlanRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, entity, alias, hash, seq FROM plans WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Entity, &p.Alias, &p.Hash, &p.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanRecord{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	if err != nil {
		return PlanRecord{}, fmt.Errorf("read plan: %w", err)
	}

	events, err := s.readPlanEvents(ctx, id)
	if err != nil {
		return PlanRecord{}, err
	}
	p.RootEvents = events[RootNodeID]

	// Deterministic ordering - ORDER BY seq ASC, id COLLATE BINARY ASC
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, seq, recipe FROM plan_nodes
		WHERE plan_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, id)
	if err != nil {
		return PlanRecord{}, fmt.Errorf("query plan nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n NodeRecord
		var recipe string
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Seq, &recipe); err != nil {
			return PlanRecord{}, fmt.Errorf("scan plan node: %w", err)
		}
		n.Recipe = json.RawMessage(recipe)
		n.Events = events[n.ID]
		p.Nodes = append(p.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return PlanRecord{}, fmt.Errorf("iterate plan nodes: %w", err)
	}
	return p, nil
}

func (s *Store) readPlanEvents(ctx context.Context, planID string) (map[string][]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, event FROM plan_events
		WHERE plan_id = ?
		ORDER BY node_id COLLATE BINARY ASC, seq ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("query plan events: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]json.RawMessage)
	for rows.Next() {
		var nodeID, event string
		if err := rows.Scan(&nodeID, &event); err != nil {
			return nil, fmt.Errorf("scan plan event: %w", err)
		}
		out[nodeID] = append(out[nodeID], json.RawMessage(event))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plan events: %w", err)
	}
	return out, nil
}

// ListPlans returns saved plans in save order.
// Returns an empty slice (not nil) for an empty catalog.
func (s *Store) ListPlans(ctx context.Context) ([]PlanSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, entity, hash, seq FROM plans
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	plans := []PlanSummary{}
	for rows.Next() {
		var p PlanSummary
		if err := rows.Scan(&p.ID, &p.Name, &p.Entity, &p.Hash, &p.Seq); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}
