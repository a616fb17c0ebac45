// Package harness provides scenario-driven conformance tests for sub-criteria
// fan-out.
//
// A scenario describes one logical query: its root events, the sub-criteria
// tree with each sub-criteria's recipe fields and events, and optional
// failures injected on individual shards. The harness records that query
// through a shard.Coordinator whose shards are recording criteria, builds it
// on every shard, and checks the recorded calls.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: orders_alias_restriction
//	description: "Alias and restriction replay on every shard"
//	shards: [shard-a, shard-b]
//	entity: customers
//	alias: c
//	root:
//	  - set_max_results: 10
//	subcriteria:
//	  - association: orders
//	    alias: o
//	    events:
//	      - restriction: "o.total > 100"
//	    children:
//	      - association: items
//	        join_type: left
//	fail:
//	  - shard: shard-b
//	    target: root/orders(o)
//	    method: Add
//	    message: rejected
//	assertions:
//	  - type: calls_order
//	    shard: shard-a
//	    calls: ["CreateCriteriaWithAlias(orders, o)", "Add(o.total > 100)"]
//
// The recipe variant of a sub-criteria is inferred from the fields present
// unless variant names it explicitly.
//
// # Assertion Types
//
//   - calls_order: the calls appear in this order on a shard, gaps allowed
//   - calls_exact: the shard's calls are exactly these
//   - call_count: a method is called exactly N times on a shard
//   - shard_error: the kind of error a shard build ended with
//
// Assertions without a shard apply to every shard of the scenario.
//
// # Golden Files
//
// RunWithGolden writes the per-shard call trace as canonical JSON and
// compares it with testdata/golden/{name}.golden. Shards build
// concurrently, so the trace carries each shard's calls in order without
// the global sequence numbers.
package harness
