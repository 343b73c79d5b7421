// Package harness runs dojo scenarios.
//
// A scenario is a YAML file naming a field configuration, setup steps, a
// flow of boundary operations with expected outcomes, and assertions over
// the resulting trace and the persisted state. Each run gets a fresh
// in-memory store, a deterministic clock and sequential ids, so the trace of
// a scenario is reproducible and can be compared against a golden file.
//
// # Trace
//
// Every operation contributes an invocation event and a completion event.
// Specialist lifecycle transitions observed while an operation runs are
// recorded between the two as "transition" events, in publish order:
//
//	[1] invocation train {domain: algebra, actor: desktop}
//	[2] transition id-1 queued -> training
//	[3] transition id-1 training -> benchmarking
//	[4] transition id-1 benchmarking -> deployed
//	[5] completion ok {specialist_id: id-1, state: deployed}
//
// # Assertions
//
//   - trace_contains: an invocation of op with matching args (subset match)
//   - trace_order: ops appear in the given order
//   - trace_count: op is invoked exactly count times
//   - transitions: a specialist went through exactly the listed states
//   - final_state: one row of a store table matches (subset match)
package harness
