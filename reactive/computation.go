package reactive

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Computation is the graph bookkeeping shared by computed signals and
// effects: the sources read during the last run, a dirty flag and a depth
// used to order recomputation.
type Computation struct {
	rs    *ReactiveSystem
	owner owner

	dependencies mapset.Set[source]

	dirty    bool
	disposed bool
	running  bool

	// depth is 0 unless a dependency is a computed signal, in which case it is
	// 1 + the deepest such dependency.
	depth int
}

func newComputation(rs *ReactiveSystem, o owner) *Computation {
	return &Computation{
		rs:           rs,
		owner:        o,
		dependencies: mapset.NewThreadUnsafeSet[source](),
		dirty:        true,
	}
}

func (c *Computation) Depth() int {
	return c.depth
}

func (c *Computation) IsDirty() bool {
	return c.dirty
}

func (c *Computation) IsDisposed() bool {
	return c.disposed
}

// addDependency links c to src in both directions.
func (c *Computation) addDependency(src source) {
	if src.IsDisposed() {
		panic(&Error{Op: OpSubscribe, Node: src.Name(), Err: ErrDisposed})
	}
	if c.disposed || c.dependencies.Contains(src) {
		return
	}

	c.dependencies.Add(src)
	src.addDependent(c)

	if d := src.driver(); d != nil && d.depth+1 > c.depth {
		c.depth = d.depth + 1
		// while running the final depth is settled once the body returns
		if !c.running {
			c.propagateDepth()
		}
	}
}

func (c *Computation) removeDependency(src source) {
	if !c.dependencies.Contains(src) {
		return
	}
	c.dependencies.Remove(src)
	src.removeDependent(c)

	if src.driver() != nil {
		c.updateDepth()
	}
}

// clearDependencies forgets every edge so the next run can rebuild them from
// scratch. Depth is not propagated here, see settleDepth.
func (c *Computation) clearDependencies() {
	for _, src := range c.dependencies.ToSlice() {
		src.removeDependent(c)
	}
	c.dependencies.Clear()
	c.depth = 0
}

func (c *Computation) sources() []source {
	srcs := c.dependencies.ToSlice()
	slices.SortFunc(srcs, func(a, b source) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return srcs
}

func (c *Computation) hasDisposedDependency() bool {
	found := false
	c.dependencies.Each(func(src source) bool {
		found = src.IsDisposed()
		return found
	})
	return found
}

func (c *Computation) dependencyNodes() []Node {
	srcs := c.sources()
	nodes := make([]Node, len(srcs))
	for i, src := range srcs {
		nodes[i] = src
	}
	return nodes
}

// markDirty flags c for recomputation and schedules it.
func (c *Computation) markDirty() {
	if c.disposed {
		return
	}
	c.dirty = true
	c.rs.queue.schedule(c)
}

func (c *Computation) computeDepth() int {
	depth := 0
	c.dependencies.Each(func(src source) bool {
		if d := src.driver(); d != nil && d.depth+1 > depth {
			depth = d.depth + 1
		}
		return false
	})
	return depth
}

func (c *Computation) updateDepth() {
	if d := c.computeDepth(); d != c.depth {
		c.depth = d
		c.propagateDepth()
	}
}

// settleDepth propagates a depth change made during a run.
func (c *Computation) settleDepth(before int) {
	if c.depth != before {
		c.propagateDepth()
	}
}

// propagateDepth walks downstream recomputing depths until they stop
// changing.
func (c *Computation) propagateDepth() {
	visited := mapset.NewThreadUnsafeSet[*Computation]()
	stack := []*Computation{c}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited.Contains(n) {
			continue
		}
		visited.Add(n)

		for _, dep := range n.dependents() {
			if dep.running {
				continue
			}
			if d := dep.computeDepth(); d != dep.depth {
				dep.depth = d
				stack = append(stack, dep)
			}
		}
	}
}

// dependents are the computations reading the value c produces, if any.
func (c *Computation) dependents() []*Computation {
	if src, ok := c.owner.(source); ok {
		return src.dependentComputations()
	}
	return nil
}

// release disposes the computation itself: edges cleared, never scheduled
// again.
func (c *Computation) release() {
	if c.disposed {
		return
	}
	c.disposed = true
	c.dirty = false
	c.clearDependencies()
	c.rs.queue.forget(c)
}
