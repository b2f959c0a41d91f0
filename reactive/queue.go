package reactive

import (
	"cmp"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// DefaultMaxUpdateDepth is the number of times a single computation may be
// recomputed within one flush before the flush is treated as a runaway cycle.
// The depth of an acyclic graph does not count against it.
const DefaultMaxUpdateDepth = 100

// updateQueue collects dirty computations and flushes them in dependency
// order.
type updateQueue struct {
	rs *ReactiveSystem

	pending      mapset.Set[*Computation]
	pendingOrder []*Computation
	// recomputations per computation in the current flush
	runs map[*Computation]int

	flushing bool
	// held > 0 defers flushing while a notification marks several dependents.
	held int
}

func newUpdateQueue(rs *ReactiveSystem) *updateQueue {
	return &updateQueue{
		rs:      rs,
		pending: mapset.NewThreadUnsafeSet[*Computation](),
		runs:    map[*Computation]int{},
	}
}

func (q *updateQueue) schedule(c *Computation) {
	if !q.pending.Contains(c) {
		q.pending.Add(c)
		q.pendingOrder = append(q.pendingOrder, c)
	}
	if q.flushing || q.held > 0 {
		return
	}
	q.process()
}

// hold runs fn with flushing deferred, then flushes once.
func (q *updateQueue) hold(fn func()) {
	q.held++
	func() {
		defer func() { q.held-- }()
		fn()
	}()
	if q.held == 0 && !q.flushing {
		q.process()
	}
}

func (q *updateQueue) forget(c *Computation) {
	q.pending.Remove(c)
}

func (q *updateQueue) drain() []*Computation {
	batch := make([]*Computation, 0, len(q.pendingOrder))
	for _, c := range q.pendingOrder {
		if q.pending.Contains(c) {
			batch = append(batch, c)
		}
	}
	q.pending.Clear()
	q.pendingOrder = q.pendingOrder[:0]
	return batch
}

func (q *updateQueue) reset() {
	q.pending.Clear()
	q.pendingOrder = nil
	clear(q.runs)
	q.flushing = false
	q.held = 0
}

// process drains the queue until it is empty. Each round is sorted by
// ascending depth so dependencies settle before their dependents. Entries
// scheduled while a round runs land in the next round.
func (q *updateQueue) process() {
	if q.pending.Cardinality() == 0 {
		q.pendingOrder = q.pendingOrder[:0]
		return
	}

	rs := q.rs
	q.flushing = true
	start := time.Now()
	rounds, processed := 0, 0

	var batch []*Computation
	next := 0

	defer func() {
		q.flushing = false
		clear(q.runs)
		r := recover()
		if r == nil {
			rs.hooks.Flushed(rounds, processed, time.Since(start), nil)
			return
		}

		// whatever the failing round did not reach stays scheduled
		for _, c := range batch[min(next, len(batch)):] {
			if !c.disposed && c.dirty && !q.pending.Contains(c) {
				q.pending.Add(c)
				q.pendingOrder = append(q.pendingOrder, c)
			}
		}
		rs.hooks.Flushed(rounds, processed, time.Since(start), asError(r))
		panic(r)
	}()

	for q.pending.Cardinality() > 0 {
		rounds++
		batch = q.drain()
		slices.SortStableFunc(batch, func(a, b *Computation) int {
			return cmp.Compare(a.depth, b.depth)
		})

		for next = 0; next < len(batch); {
			c := batch[next]
			next++
			if c.disposed || !c.dirty {
				continue
			}
			q.runs[c]++
			if q.runs[c] > rs.maxUpdateDepth {
				q.pending.Clear()
				q.pendingOrder = q.pendingOrder[:0]
				batch, next = nil, 0
				rs.logger.Error("update depth exceeded",
					"node", c.owner.Name(),
					"rounds", rounds,
					"max", rs.maxUpdateDepth,
				)
				panic(&Error{Op: OpFlush, Node: c.owner.Name(), Err: ErrMaxUpdateDepth})
			}
			processed++
			c.owner.recompute()
		}
	}
}
