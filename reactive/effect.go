package reactive

import (
	"time"
)

// Cleanup undoes what an effect run did. It runs before the next run and on
// disposal.
type Cleanup func()

// EffectFunc is the body of an effect. Reads inside it are tracked; the
// returned cleanup may be nil.
type EffectFunc func() (Cleanup, error)

// EffectRunner re-runs a side-effecting function whenever something it read
// changes.
type EffectRunner struct {
	rs   *ReactiveSystem
	c    *Computation
	id   uint64
	name string

	fn       EffectFunc
	cleanup  Cleanup
	disposed bool
}

// Effect runs fn immediately and again after every change to what it read.
//
// A failure of the first run is returned and the effect is disposed. Later
// failures are logged and handed back to whoever triggered the run: the Set,
// Batch or EndBatch call that flushed it.
func Effect(rs *ReactiveSystem, fn EffectFunc) (e *EffectRunner, err error) {
	e = &EffectRunner{
		rs: rs,
		id: rs.newID(),
		fn: fn,
	}
	e.c = newComputation(rs, e)

	defer func() {
		if r := recover(); r != nil {
			err = asError(r)
			e.Dispose()
			e = nil
		}
	}()
	e.execute()
	return e, nil
}

// Named sets the debug name.
func (e *EffectRunner) Named(name string) *EffectRunner {
	e.name = name
	return e
}

func (e *EffectRunner) ID() uint64 {
	return e.id
}

func (e *EffectRunner) Name() string {
	return nodeName(KindEffect, e.id, e.name)
}

func (e *EffectRunner) Kind() NodeKind {
	return KindEffect
}

func (e *EffectRunner) Depth() int {
	return e.c.depth
}

func (e *EffectRunner) IsDisposed() bool {
	return e.disposed
}

func (e *EffectRunner) Dependencies() []Node {
	return e.c.dependencyNodes()
}

func (e *EffectRunner) Dependents() []Node {
	return nil
}

// recompute is a re-run scheduled by the update queue.
func (e *EffectRunner) recompute() {
	e.runCleanup()
	e.execute()
}

func (e *EffectRunner) execute() {
	rs, c := e.rs, e.c
	before := c.depth
	start := time.Now()

	var err error
	c.clearDependencies()
	rs.push(c)
	rs.activeEffects.Add(e)
	c.running = true
	defer func() {
		rs.pop()
		rs.activeEffects.Remove(e)
		c.running = false
		c.dirty = false
		if c.disposed {
			c.clearDependencies()
		} else {
			c.settleDepth(before)
		}

		if r := recover(); r != nil {
			err = asError(r)
		}
		rs.hooks.EffectRan(e, time.Since(start), err)
		if err != nil {
			rs.logger.Error("effect failed",
				"node", e.Name(),
				"err", err,
			)
			panic(&Error{Op: OpEffect, Node: e.Name(), Err: err})
		}
	}()

	cleanup, ferr := e.fn()
	if ferr != nil {
		err = ferr
		return
	}
	if e.disposed {
		// disposed from inside its own body
		if cleanup != nil {
			e.cleanup = cleanup
			e.runCleanup()
		}
		return
	}
	e.cleanup = cleanup
}

// runCleanup runs and forgets the pending cleanup. Panics are logged, never
// propagated.
func (e *EffectRunner) runCleanup() {
	cleanup := e.cleanup
	e.cleanup = nil
	if cleanup == nil {
		return
	}

	rs := e.rs
	rs.push(nil)
	defer func() {
		rs.pop()
		if r := recover(); r != nil {
			rs.logger.Warn("effect cleanup failed",
				"node", e.Name(),
				"err", asError(r),
			)
		}
	}()
	cleanup()
}

// Dispose runs the final cleanup and stops the effect for good. It is
// idempotent.
func (e *EffectRunner) Dispose() {
	e.rs.dispose(e)
}

func (e *EffectRunner) release() []disposer {
	if e.disposed {
		return nil
	}
	e.disposed = true
	e.c.release()
	e.rs.activeEffects.Remove(e)
	e.runCleanup()
	e.rs.hooks.Disposed(e)
	return nil
}
