// Package reactive is a dependency-tracking, incremental recomputation engine.
//
// A ReactiveSystem owns one dependency graph made of three kinds of nodes:
//
//   - WriteableSignal: a mutable value cell created with Signal.
//   - ReadonlySignal: a lazily memoized value derived from other nodes,
//     created with Computed.
//   - EffectRunner: a side-effecting observer created with Effect that re-runs
//     whenever something it read changes.
//
// Dependencies are discovered automatically: any Get performed while a
// computed or effect body is running records an edge against it. Edges are
// forgotten and rebuilt on every run, so conditional reads are supported.
//
// Writes mark dependents dirty and schedule them on the system's update queue,
// which recomputes them in ascending depth order so that a node never observes
// a stale upstream value. Batch coalesces any number of writes into a single
// pass.
//
// A ReactiveSystem is not safe for concurrent use. Default returns a system
// bound to the calling goroutine.
package reactive
