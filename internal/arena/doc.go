// Package arena schedules training tasks onto domain specialists.
//
// Tasks are submitted to a bounded queue partitioned by domain. Workers take
// the oldest task whose domain is idle, so each domain is processed in
// submission order while different domains run in parallel.
//
// A specialist moves through
//
//	queued -> training -> benchmarking -> deployed -> retired
//	              \-> failed      \-> retired (regression)
//
// At most one non-terminal specialist exists per domain. A task for a domain
// with a Deployed specialist (or one halted awaiting deploy) reuses it.
// Training selects the graph's applicable patterns; benchmarking scores
// them against the neural baseline. A specialist whose requesting actor may
// not deploy halts at benchmarking until Deploy is called by an actor that
// may.
//
// Every transition is persisted before it is committed and announced with
// exactly one notify.StateChanged, in transition order.
package arena
