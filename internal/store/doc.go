// Package store provides SQLite-backed storage for shards and the plan
// catalog.
//
// A shard store is a plain SQLite database holding one partition of the
// data. The catalog store additionally holds saved logical criteria plans:
//   - plans: one row per saved plan
//   - plan_nodes: sub-criteria recipes, parent first
//   - plan_events: mutation events per node, in recorded order
//
// # Critical Patterns
//
// Deterministic ordering:
//   - Catalog reads use ORDER BY seq ASC, id COLLATE BINARY ASC
//   - seq is a logical counter, never a timestamp
//
// Idempotent writes:
//   - WritePlan uses ON CONFLICT(id) DO NOTHING; saving a plan twice is a no-op
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
