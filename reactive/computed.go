package reactive

import "time"

// ReadonlySignal is a value derived from other nodes. It is both something
// others can depend on and a computation depending on what its function
// reads. The function runs lazily on first read, then again whenever a
// dependency changes.
type ReadonlySignal[T any] struct {
	signalCore[T]

	c           *Computation
	getter      func() T
	initialized bool
}

// Computed creates a derived signal from a pure function of other nodes.
// Creating one while an effect body is running is rejected with ErrCycle.
func Computed[T any](rs *ReactiveSystem, getter func() T) (*ReadonlySignal[T], error) {
	if rs.activeEffects.Cardinality() > 0 {
		return nil, &Error{Op: OpConstruct, Node: KindComputed.String(), Err: ErrCycle}
	}

	var zero T
	s := &ReadonlySignal[T]{
		signalCore: newSignalCore(rs, zero),
		getter:     getter,
	}
	s.c = newComputation(rs, s)
	return s, nil
}

// MustComputed is Computed panicking on failure.
func MustComputed[T any](rs *ReactiveSystem, getter func() T) *ReadonlySignal[T] {
	s, err := Computed(rs, getter)
	if err != nil {
		panic(err)
	}
	return s
}

// Named sets the debug name.
func (s *ReadonlySignal[T]) Named(name string) *ReadonlySignal[T] {
	s.name = name
	return s
}

// WithEquals replaces the equality used to decide whether a recomputation
// produced a new value worth notifying.
func (s *ReadonlySignal[T]) WithEquals(fn EqualsFunc[T]) *ReadonlySignal[T] {
	if fn != nil {
		s.equals = fn
	}
	return s
}

func (s *ReadonlySignal[T]) Name() string {
	return nodeName(KindComputed, s.id, s.name)
}

func (s *ReadonlySignal[T]) Kind() NodeKind {
	return KindComputed
}

func (s *ReadonlySignal[T]) Depth() int {
	return s.c.depth
}

func (s *ReadonlySignal[T]) IsDirty() bool {
	return s.c.dirty
}

func (s *ReadonlySignal[T]) Dependencies() []Node {
	return s.c.dependencyNodes()
}

func (s *ReadonlySignal[T]) driver() *Computation {
	return s.c
}

// Get returns the memoized value, recomputing it first if it is dirty, and
// records it as a dependency of the running computation.
//
// If a dependency was disposed the signal disposes itself and Get panics with
// ErrDisposed; it also panics on ErrCycle if the value is requested while
// being computed, and re-panics whatever the function panicked with.
func (s *ReadonlySignal[T]) Get() T {
	s.refresh()
	s.track(s)
	return s.value
}

// TryGet is Get returning the failure instead of panicking.
func (s *ReadonlySignal[T]) TryGet() (v T, err error) {
	defer catch(&err)
	return s.Get(), nil
}

// Peek returns the up to date value without tracking it.
func (s *ReadonlySignal[T]) Peek() T {
	s.refresh()
	return s.value
}

// Set always fails: computed signals are written by their function only.
func (s *ReadonlySignal[T]) Set(T) error {
	if s.disposed {
		return &Error{Op: OpWrite, Node: s.Name(), Err: ErrDisposed}
	}
	return &Error{Op: OpWrite, Node: s.Name(), Err: ErrReadOnly}
}

func (s *ReadonlySignal[T]) refresh() {
	if s.disposed {
		panic(&Error{Op: OpRead, Node: s.Name(), Err: ErrDisposed})
	}
	if s.c.hasDisposedDependency() {
		name := s.Name()
		s.Dispose()
		panic(&Error{Op: OpReadThrough, Node: name, Err: ErrDisposed})
	}
	if s.c.dirty {
		s.recompute()
	}
}

// recompute runs the function and notifies dependents if the value changed.
func (s *ReadonlySignal[T]) recompute() {
	if s.evaluate() {
		s.rs.notify(s)
	}
}

func (s *ReadonlySignal[T]) evaluate() (changed bool) {
	rs, c := s.rs, s.c
	if c.running {
		panic(&Error{Op: OpCompute, Node: s.Name(), Err: ErrCycle})
	}

	before := c.depth
	start := time.Now()
	rs.push(c)
	c.running = true
	defer func() {
		rs.pop()
		c.running = false
		c.dirty = false
		if c.disposed {
			c.clearDependencies()
		} else {
			c.settleDepth(before)
		}
		rs.hooks.Recomputed(s, changed, time.Since(start))
	}()

	c.clearDependencies()
	next := s.getter()
	if s.initialized && s.equals(s.value, next) {
		return false
	}
	s.value = next
	s.initialized = true
	return true
}

// Dispose tears down the computation and everything derived from it. It is
// idempotent.
func (s *ReadonlySignal[T]) Dispose() {
	s.rs.dispose(s)
}

func (s *ReadonlySignal[T]) release() []disposer {
	if s.disposed {
		return nil
	}
	s.disposed = true
	s.c.release()
	deps := s.releaseDependents(s)
	s.rs.hooks.Disposed(s)
	return deps
}
