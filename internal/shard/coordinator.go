// Package shard fans a logical criteria out to every physical shard.
//
// Application code builds a logical Criteria through the same interface a
// shard-local criteria offers. Nothing runs until Build: then each shard gets
// its own root criteria, the recorded root events are replayed on it, and
// every captured sub-criteria recipe is materialized on its parent in
// creation order. Aliases are resolved when a shard's tree is compiled, so
// an event may name a sub-criteria created after it was recorded.
//
// Shards are built concurrently, bounded by the configured parallelism. Each
// shard's replay is sequential; there is no ordering between shards. A
// failure on one shard never stops the others.
package shard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ruilorenzetti/hibernate-shards/internal/criteria"
	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/mapping"
	"github.com/ruilorenzetti/hibernate-shards/internal/subcriteria"
)

// DefaultParallelism bounds concurrent shard builds when none is configured.
const DefaultParallelism = 4

// Querier executes a compiled statement on one shard.
// *store.Store implements it.
type Querier interface {
	QueryRows(ctx context.Context, query string, args ...any) ([]ir.Object, error)
}

// Shard is one physical partition.
type Shard struct {
	ID    string
	Store Querier // nil when the shard is only planned, never run
}

// RootFactory creates a shard-local root criteria.
type RootFactory func(shardID, entity, alias string) (subcriteria.Criteria, error)

// Statementer is implemented by shard-local criteria that compile to SQL.
type Statementer interface {
	Statement() (string, []any, error)
}

// Coordinator builds logical criteria on every shard.
type Coordinator struct {
	registry    *mapping.Registry
	shards      []Shard
	parallelism int
	metrics     *Metrics
	logger      *slog.Logger
	ids         IDGenerator
	newRoot     RootFactory
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithParallelism bounds concurrent shard builds. Values below 1 are ignored.
func WithParallelism(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithIDGenerator sets the plan id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Coordinator) { c.ids = g }
}

// WithRootFactory replaces the shard-local criteria engine.
func WithRootFactory(f RootFactory) Option {
	return func(c *Coordinator) { c.newRoot = f }
}

// NewCoordinator creates a coordinator over shards. Shard ids must be
// unique and non-empty.
func NewCoordinator(registry *mapping.Registry, shards []Shard, opts ...Option) (*Coordinator, error) {
	if len(shards) == 0 {
		return nil, fmt.Errorf("no shards configured")
	}
	seen := make(map[string]bool, len(shards))
	for i, s := range shards {
		if s.ID == "" {
			return nil, fmt.Errorf("shard[%d] has no id", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate shard id %q", s.ID)
		}
		seen[s.ID] = true
	}

	c := &Coordinator{
		registry:    registry,
		shards:      append([]Shard(nil), shards...),
		parallelism: DefaultParallelism,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:         UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	if c.newRoot == nil {
		if registry == nil {
			return nil, fmt.Errorf("nil registry")
		}
		c.newRoot = func(shardID, entity, alias string) (subcriteria.Criteria, error) {
			return criteria.New(shardID, registry, entity, alias)
		}
	}
	return c, nil
}

// Shards returns the configured shards.
func (c *Coordinator) Shards() []Shard {
	return append([]Shard(nil), c.shards...)
}

// NewCriteria starts a logical query over entity. The entity must be
// registered when the coordinator uses the default engine.
func (c *Coordinator) NewCriteria(entity, alias string) (*Criteria, error) {
	if entity == "" {
		return nil, fmt.Errorf("empty entity")
	}
	if c.registry != nil {
		e, err := c.registry.Entity(entity)
		if err != nil {
			return nil, err
		}
		if alias == "" {
			alias = e.Name
		}
	}
	t := &logicalTree{
		entity: entity,
		alias:  alias,
		clock:  NewClock(),
	}
	t.ids = &sequentialGenerator{prefix: "n", clock: NewClock()}
	return &Criteria{handle: handle{t: t}, coord: c}, nil
}

// ShardResult is the outcome of building one shard.
type ShardResult struct {
	Shard string
	Root  subcriteria.Criteria
	// Subcriteria holds materialized sub-criteria by logical node id.
	Subcriteria map[string]subcriteria.Criteria
	Err         error
}

// ShardError reports a failed shard. Node is the logical sub-criteria that
// failed, or "" when the root failed.
type ShardError struct {
	Shard string
	Node  string
	Err   error
}

func (e *ShardError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("shard %s: node %s: %v", e.Shard, e.Node, e.Err)
	}
	return fmt.Sprintf("shard %s: %v", e.Shard, e.Err)
}

func (e *ShardError) Unwrap() error { return e.Err }

// FanOutError collects per-shard failures of one Build or Run.
type FanOutError struct {
	Failures []*ShardError
	Total    int
}

func (e *FanOutError) Error() string {
	msg := fmt.Sprintf("%d of %d shards failed", len(e.Failures), e.Total)
	for _, f := range e.Failures {
		msg += "; " + f.Error()
	}
	return msg
}

// Unwrap exposes every shard failure to errors.Is and errors.As.
func (e *FanOutError) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f
	}
	return out
}

// Build materializes c on every shard. Results are in shard order and
// include failed shards. The error is a *FanOutError when any shard failed.
func (c *Criteria) Build(ctx context.Context) ([]ShardResult, error) {
	return c.coord.build(ctx, c.t.snapshot())
}

func (c *Coordinator) build(ctx context.Context, snap snapshot) ([]ShardResult, error) {
	start := time.Now()
	defer func() { c.metrics.buildDuration.Observe(time.Since(start).Seconds()) }()

	results := make([]ShardResult, len(c.shards))
	g := new(errgroup.Group)
	g.SetLimit(c.parallelism)

	for i, sh := range c.shards {
		i, sh := i, sh
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = ShardResult{Shard: sh.ID, Err: &ShardError{Shard: sh.ID, Err: err}}
				return nil
			}
			results[i] = c.buildShard(sh.ID, snap)
			return nil
		})
	}
	_ = g.Wait() // Shard goroutines report through results

	return results, collect(results, func(r ShardResult) error { return r.Err })
}

func (c *Coordinator) buildShard(shardID string, snap snapshot) ShardResult {
	res := ShardResult{Shard: shardID, Subcriteria: make(map[string]subcriteria.Criteria, len(snap.nodes))}

	root, err := c.newRoot(shardID, snap.entity, snap.alias)
	if err != nil {
		res.Err = &ShardError{Shard: shardID, Err: fmt.Errorf("create root criteria: %w", err)}
		return res
	}
	res.Root = root

	if err := subcriteria.Replay(root, snap.rootEvents); err != nil {
		res.Err = &ShardError{Shard: shardID, Err: err}
		return res
	}
	replayed := len(snap.rootEvents)

	for _, n := range snap.nodes {
		parent := root
		if n.parentID != "" {
			parent = res.Subcriteria[n.parentID]
		}
		sub, err := n.recipe.Materialize(parent, n.events)
		c.metrics.materialized(shardID, err)
		if err != nil {
			c.metrics.replayed(shardID, replayed)
			c.logger.Warn("sub-criteria materialization failed",
				"shard", shardID,
				"node", n.id,
				"association", n.recipe.Association(),
				"error", err)
			res.Err = &ShardError{Shard: shardID, Node: n.id, Err: err}
			return res
		}
		res.Subcriteria[n.id] = sub
		replayed += len(n.events)
	}

	c.metrics.replayed(shardID, replayed)
	c.logger.Debug("shard criteria built",
		"shard", shardID,
		"subcriteria", len(snap.nodes),
		"events", replayed)
	return res
}

// ShardStatement is the compiled SQL for one shard.
type ShardStatement struct {
	Shard  string
	SQL    string
	Params []any
	Err    error
}

// Statements builds c and compiles each shard's criteria to SQL.
// The root criteria engine must implement Statementer.
func (c *Criteria) Statements(ctx context.Context) ([]ShardStatement, error) {
	results, _ := c.Build(ctx)

	out := make([]ShardStatement, len(results))
	for i, r := range results {
		out[i] = ShardStatement{Shard: r.Shard, Err: r.Err}
		if r.Err != nil {
			continue
		}
		st, ok := r.Root.(Statementer)
		if !ok {
			out[i].Err = &ShardError{Shard: r.Shard, Err: fmt.Errorf("criteria %T cannot compile to SQL", r.Root)}
			continue
		}
		sql, params, err := st.Statement()
		if err != nil {
			out[i].Err = &ShardError{Shard: r.Shard, Err: fmt.Errorf("compile: %w", err)}
			continue
		}
		out[i].SQL = sql
		out[i].Params = params
	}
	return out, collect(out, func(s ShardStatement) error { return s.Err })
}

// ShardRows is the result set of one shard. Rows are not merged across
// shards.
type ShardRows struct {
	Shard string
	SQL   string
	Rows  []ir.Object
	Err   error
}

// Run builds and compiles c, then executes each shard's statement on its
// store concurrently.
func (c *Criteria) Run(ctx context.Context) ([]ShardRows, error) {
	stmts, _ := c.Statements(ctx)
	coord := c.coord

	out := make([]ShardRows, len(stmts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(coord.parallelism)

	for i, st := range stmts {
		i, st := i, st
		out[i] = ShardRows{Shard: st.Shard, SQL: st.SQL, Err: st.Err}
		if st.Err != nil {
			continue
		}
		q := coord.shards[i].Store
		if q == nil {
			out[i].Err = &ShardError{Shard: st.Shard, Err: fmt.Errorf("shard has no store")}
			continue
		}
		g.Go(func() error {
			rows, err := q.QueryRows(gctx, st.SQL, st.Params...)
			if err != nil {
				out[i].Err = &ShardError{Shard: st.Shard, Err: err}
				return nil
			}
			out[i].Rows = rows
			return nil
		})
	}
	_ = g.Wait()

	return out, collect(out, func(r ShardRows) error { return r.Err })
}

func collect[T any](items []T, errOf func(T) error) error {
	var fe FanOutError
	fe.Total = len(items)
	for _, it := range items {
		err := errOf(it)
		if err == nil {
			continue
		}
		var se *ShardError
		if !errors.As(err, &se) {
			se = &ShardError{Err: err}
		}
		fe.Failures = append(fe.Failures, se)
	}
	if len(fe.Failures) == 0 {
		return nil
	}
	return &fe
}
