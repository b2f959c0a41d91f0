package reactive

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// signalCore holds what every readable node shares: the value, its equality
// and the computations depending on it.
type signalCore[T any] struct {
	rs   *ReactiveSystem
	id   uint64
	name string

	value  T
	equals EqualsFunc[T]

	dependents mapset.Set[*Computation]
	disposed   bool
}

func newSignalCore[T any](rs *ReactiveSystem, value T) signalCore[T] {
	return signalCore[T]{
		rs:         rs,
		id:         rs.newID(),
		value:      value,
		equals:     StrictEqual[T],
		dependents: mapset.NewThreadUnsafeSet[*Computation](),
	}
}

func (s *signalCore[T]) ID() uint64 {
	return s.id
}

func (s *signalCore[T]) IsDisposed() bool {
	return s.disposed
}

func (s *signalCore[T]) addDependent(c *Computation) {
	s.dependents.Add(c)
}

func (s *signalCore[T]) removeDependent(c *Computation) {
	s.dependents.Remove(c)
}

// dependentComputations returns a snapshot ordered by creation, so
// notification order does not depend on set iteration.
func (s *signalCore[T]) dependentComputations() []*Computation {
	deps := s.dependents.ToSlice()
	slices.SortFunc(deps, func(a, b *Computation) int {
		switch {
		case a.owner.ID() < b.owner.ID():
			return -1
		case a.owner.ID() > b.owner.ID():
			return 1
		}
		return 0
	})
	return deps
}

func (s *signalCore[T]) Dependents() []Node {
	deps := s.dependentComputations()
	nodes := make([]Node, len(deps))
	for i, c := range deps {
		nodes[i] = c.owner
	}
	return nodes
}

// track records self as a dependency of the running computation, if any.
func (s *signalCore[T]) track(self source) {
	if c := s.rs.current(); c != nil {
		c.addDependency(self)
	}
}

// releaseDependents unlinks every dependent and hands them to the disposal
// cascade: a derived value cannot outlive what it derives from.
func (s *signalCore[T]) releaseDependents(self source) []disposer {
	deps := s.dependentComputations()
	out := make([]disposer, 0, len(deps))
	for _, c := range deps {
		c.removeDependency(self)
		out = append(out, c.owner)
	}
	s.dependents.Clear()
	return out
}

// WriteableSignal is a mutable value cell.
type WriteableSignal[T any] struct {
	signalCore[T]
}

// Signal creates a writable signal holding initial.
func Signal[T any](rs *ReactiveSystem, initial T) *WriteableSignal[T] {
	return &WriteableSignal[T]{
		signalCore: newSignalCore(rs, initial),
	}
}

// Named sets the debug name.
func (s *WriteableSignal[T]) Named(name string) *WriteableSignal[T] {
	s.name = name
	return s
}

// WithEquals replaces the equality used to decide whether a write changes
// anything.
func (s *WriteableSignal[T]) WithEquals(fn EqualsFunc[T]) *WriteableSignal[T] {
	if fn != nil {
		s.equals = fn
	}
	return s
}

func (s *WriteableSignal[T]) Name() string {
	return nodeName(KindSignal, s.id, s.name)
}

func (s *WriteableSignal[T]) Kind() NodeKind {
	return KindSignal
}

func (s *WriteableSignal[T]) Depth() int {
	return 0
}

func (s *WriteableSignal[T]) Dependencies() []Node {
	return nil
}

func (s *WriteableSignal[T]) driver() *Computation {
	return nil
}

// Get returns the value and records it as a dependency of the running
// computation. It panics with ErrDisposed once the signal is disposed.
func (s *WriteableSignal[T]) Get() T {
	if s.disposed {
		panic(&Error{Op: OpRead, Node: s.Name(), Err: ErrDisposed})
	}
	s.track(s)
	return s.value
}

// TryGet is Get returning the failure instead of panicking.
func (s *WriteableSignal[T]) TryGet() (v T, err error) {
	defer catch(&err)
	return s.Get(), nil
}

// Peek returns the value without tracking it.
func (s *WriteableSignal[T]) Peek() T {
	if s.disposed {
		panic(&Error{Op: OpRead, Node: s.Name(), Err: ErrDisposed})
	}
	return s.value
}

// Set stores v and notifies dependents when it differs from the current
// value. Failures raised by the recomputation it triggers are returned.
func (s *WriteableSignal[T]) Set(v T) (err error) {
	if s.disposed {
		return &Error{Op: OpWrite, Node: s.Name(), Err: ErrDisposed}
	}

	defer catch(&err)
	if s.equals(s.value, v) {
		return nil
	}
	s.value = v
	s.rs.notify(s)
	return nil
}

// Update is Set(fn(current)).
func (s *WriteableSignal[T]) Update(fn func(T) T) error {
	if s.disposed {
		return &Error{Op: OpWrite, Node: s.Name(), Err: ErrDisposed}
	}
	return s.Set(fn(s.value))
}

// Dispose tears the signal down together with everything derived from it.
// It is idempotent.
func (s *WriteableSignal[T]) Dispose() {
	s.rs.dispose(s)
}

func (s *WriteableSignal[T]) release() []disposer {
	if s.disposed {
		return nil
	}
	s.disposed = true
	deps := s.releaseDependents(s)
	s.rs.hooks.Disposed(s)
	return deps
}
