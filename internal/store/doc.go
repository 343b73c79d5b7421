// Package store provides SQLite-backed durable storage for the dojo.
//
// The store persists four record kinds:
//   - Patterns: ingested payloads with their validation status and impact score
//   - Edges: typed, weighted relationships between patterns
//   - Specialists: lifecycle state, trained pattern refs and compression ratio
//   - Tasks: arena work items and their outcomes
//   - Escalations: privilege escalation requests and their approvals
//
// Writes are upserts keyed by id, so a record's latest state always wins.
// Components call the Save methods before making a change visible in memory;
// a failed write leaves the in-memory state untouched.
//
// # Ordering
//
// Load methods return records in a stable order: patterns and edges by id,
// specialists by created_at then id, tasks by submitted_at then id. Restore
// paths depend on this to rebuild queues and indexes deterministically.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Edges must reference stored patterns
package store
