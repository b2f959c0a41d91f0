package reactive

import (
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
)

// ReactiveSystem tracks which computation is running, batches writes and
// schedules recomputation for one dependency graph.
type ReactiveSystem struct {
	nextID uint64

	// stack of running computations, the top is the one reads are tracked
	// against. A nil entry suspends tracking.
	stack []*Computation

	batchDepth   int
	batched      mapset.Set[source]
	batchedOrder []source

	activeEffects mapset.Set[*EffectRunner]

	queue *updateQueue

	logger         *slog.Logger
	hooks          Hooks
	maxUpdateDepth int
}

type Option func(*ReactiveSystem)

// WithLogger sets the logger effect failures are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(rs *ReactiveSystem) {
		if logger != nil {
			rs.logger = logger
		}
	}
}

// WithHooks installs instrumentation.
func WithHooks(hooks Hooks) Option {
	return func(rs *ReactiveSystem) {
		if hooks != nil {
			rs.hooks = hooks
		}
	}
}

// WithMaxUpdateDepth bounds how often one computation may rerun in a single
// flush.
func WithMaxUpdateDepth(n int) Option {
	return func(rs *ReactiveSystem) {
		if n > 0 {
			rs.maxUpdateDepth = n
		}
	}
}

func CreateReactiveSystem(opts ...Option) *ReactiveSystem {
	rs := &ReactiveSystem{
		batched:        mapset.NewThreadUnsafeSet[source](),
		activeEffects:  mapset.NewThreadUnsafeSet[*EffectRunner](),
		logger:         slog.Default(),
		hooks:          NopHooks{},
		maxUpdateDepth: DefaultMaxUpdateDepth,
	}
	rs.queue = newUpdateQueue(rs)
	for _, opt := range opts {
		opt(rs)
	}
	return rs
}

// Reset drops all transient state: the computation stack, open batches,
// pending writes and scheduled computations. Existing nodes are left as they
// are but nothing queued before the reset will run.
func (rs *ReactiveSystem) Reset() {
	rs.stack = rs.stack[:0]
	rs.batchDepth = 0
	rs.batched.Clear()
	rs.batchedOrder = nil
	rs.activeEffects.Clear()
	rs.queue.reset()
}

func (rs *ReactiveSystem) Logger() *slog.Logger {
	return rs.logger
}

func (rs *ReactiveSystem) newID() uint64 {
	rs.nextID++
	return rs.nextID
}

func (rs *ReactiveSystem) current() *Computation {
	if n := len(rs.stack); n > 0 {
		return rs.stack[n-1]
	}
	return nil
}

func (rs *ReactiveSystem) push(c *Computation) {
	rs.stack = append(rs.stack, c)
}

func (rs *ReactiveSystem) pop() {
	if n := len(rs.stack); n > 0 {
		rs.stack[n-1] = nil
		rs.stack = rs.stack[:n-1]
	}
}

// IsTracking reports whether a read right now would record a dependency.
func (rs *ReactiveSystem) IsTracking() bool {
	return rs.current() != nil
}

// ActiveEffects is the number of effect bodies currently running.
func (rs *ReactiveSystem) ActiveEffects() int {
	return rs.activeEffects.Cardinality()
}

func (rs *ReactiveSystem) BatchDepth() int {
	return rs.batchDepth
}

func (rs *ReactiveSystem) IsBatching() bool {
	return rs.batchDepth > 0
}

func (rs *ReactiveSystem) StartBatch() {
	rs.batchDepth++
}

// EndBatch closes a batch opened with StartBatch. Closing the outermost batch
// notifies the dependents of every signal written inside it and flushes once;
// failures raised by that flush are returned.
func (rs *ReactiveSystem) EndBatch() (err error) {
	defer catch(&err)
	rs.endBatch()
	return nil
}

func (rs *ReactiveSystem) endBatch() {
	if rs.batchDepth == 0 {
		return
	}
	rs.batchDepth--
	if rs.batchDepth > 0 {
		return
	}

	signals := rs.batchedOrder
	rs.batchedOrder = nil
	rs.batched.Clear()
	rs.hooks.BatchCommitted(len(signals))

	if len(signals) == 0 {
		return
	}
	rs.queue.hold(func() {
		for _, s := range signals {
			for _, c := range s.dependentComputations() {
				c.markDirty()
			}
		}
	})
}

// enqueue records a write made while batching.
func (rs *ReactiveSystem) enqueue(s source) {
	if rs.batched.Contains(s) {
		return
	}
	rs.batched.Add(s)
	rs.batchedOrder = append(rs.batchedOrder, s)
}

// notify marks every dependent of s dirty, or defers that to the end of the
// current batch.
func (rs *ReactiveSystem) notify(s source) {
	if rs.batchDepth > 0 {
		rs.enqueue(s)
		return
	}
	deps := s.dependentComputations()
	if len(deps) == 0 {
		return
	}
	rs.queue.hold(func() {
		for _, c := range deps {
			c.markDirty()
		}
	})
}

// Batch runs fn with notifications deferred until it returns, so any number
// of writes inside it cause at most one recomputation per affected node.
// Batches nest; only the outermost one flushes. The result of fn is returned,
// and a failure raised while flushing replaces fn's error.
func Batch[T any](rs *ReactiveSystem, fn func() (T, error)) (result T, err error) {
	defer catch(&err)
	rs.StartBatch()
	defer rs.endBatch()
	return fn()
}

// BatchVoid is Batch for functions without a result.
func BatchVoid(rs *ReactiveSystem, fn func()) error {
	_, err := Batch(rs, func() (struct{}, error) {
		fn()
		return struct{}{}, nil
	})
	return err
}

// Untrack runs fn without recording any of its reads as dependencies of the
// running computation.
func Untrack[T any](rs *ReactiveSystem, fn func() T) T {
	rs.push(nil)
	defer rs.pop()
	return fn()
}
