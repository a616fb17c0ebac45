// Package subcriteria creates sub-criteria identically on every shard.
//
// A logical query spans N shards, and a criteria object built for one shard
// cannot be reused against another shard's connection. Instead of building
// sub-criteria eagerly, the logical layer captures a Recipe (which create
// operation to call, with which arguments) and records every later mutation
// as an Event. For each shard, Materialize invokes the recipe's create
// operation on that shard's parent criteria and replays the events in order:
//
//	recipe, err := subcriteria.WithAlias("orders", "o")
//	if err != nil {
//	    return err
//	}
//	events := []subcriteria.Event{subcriteria.Add(queryir.Restriction("o.total > 100"))}
//	for _, parent := range shardParents {
//	    sub, err := recipe.Materialize(parent, events)
//	    ...
//	}
//
// CRITICAL PATTERNS:
//
// Dispatch is on the recipe's Variant only. Fields a variant does not declare
// are never passed to the underlying engine, even when they were captured.
//
// Events are replayed in recorded order, exactly once, and the first failure
// aborts that shard's materialization. Nothing is rolled back; the fan-out
// coordinator owns partial state.
//
// Recipe and event slices are read-only during replay, so one recipe may be
// materialized concurrently for many shards.
package subcriteria
