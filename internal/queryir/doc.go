// Package queryir provides the query intermediate representation (IR) built
// by shard-local criteria and compiled by backends.
//
// ARCHITECTURE:
//
// The IR sits between the criteria API and the SQL backend:
//
//	[logical criteria] → [mutation events] → [shard criteria] → [Query IR] → [SQL]
//
// Every shard replays the same events against its own criteria, so every
// shard ends up with a structurally identical Select tree. Only the backend
// connection differs.
//
// TREE SHAPE:
//
// A Select is the root criteria. Each sub-criteria adds a Join that traverses
// one association from a parent alias. Joins are kept flat in creation order;
// ParentAlias links a nested sub-criteria to its parent.
//
// SEALED INTERFACES:
//
// Predicate is sealed using the marker method pattern. Only types in this
// package implement it, which keeps type switches in the SQL compiler, the
// codec and the validator exhaustive:
//
//	switch p := pred.(type) {
//	case Compare:
//	case And:
//	...
//	default:
//	    // unreachable for values built by this package
//	}
//
// CRITICAL PATTERNS:
//
// Literals are ir.Value (no floats) so the same restriction compares
// identically on every shard and hashes identically in stored plans.
//
// Properties are alias-qualified by the shard engine when they are added,
// so compiled SQL never depends on which criteria node a term came from.
package queryir
