package reactive_test

import (
	"testing"
	"time"

	"github.com/delaneyj/cascade/reactive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHooks struct {
	recomputed int
	changed    int
	effects    int
	flushes    int
	rounds     int
	batches    []int
	disposed   []string
}

func (h *recordingHooks) Recomputed(_ reactive.Node, changed bool, _ time.Duration) {
	h.recomputed++
	if changed {
		h.changed++
	}
}

func (h *recordingHooks) EffectRan(reactive.Node, time.Duration, error) {
	h.effects++
}

func (h *recordingHooks) Flushed(rounds, _ int, _ time.Duration, _ error) {
	h.flushes++
	h.rounds += rounds
}

func (h *recordingHooks) BatchCommitted(signals int) {
	h.batches = append(h.batches, signals)
}

func (h *recordingHooks) Disposed(n reactive.Node) {
	h.disposed = append(h.disposed, n.Name())
}

func TestHooks(t *testing.T) {
	hooks := &recordingHooks{}
	rs := reactive.CreateReactiveSystem(reactive.WithHooks(hooks))

	a := reactive.Signal(rs, 1).Named("a")
	b := reactive.MustComputed(rs, func() int { return a.Get() * 2 }).Named("b")
	e, err := reactive.Effect(rs, func() (reactive.Cleanup, error) {
		b.Get()
		return nil, nil
	})
	require.NoError(t, err)
	e.Named("e")

	assert.Equal(t, 1, hooks.recomputed)
	assert.Equal(t, 1, hooks.effects)
	assert.Zero(t, hooks.flushes)

	err = reactive.BatchVoid(rs, func() {
		a.Set(2)
		a.Set(3)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, hooks.batches)
	assert.Equal(t, 2, hooks.recomputed)
	assert.Equal(t, 2, hooks.changed)
	assert.Equal(t, 2, hooks.effects)
	assert.Equal(t, 1, hooks.flushes)
	assert.Equal(t, 2, hooks.rounds)

	a.Dispose()
	assert.Equal(t, []string{"a", "b", "e"}, hooks.disposed)
}

func TestWalk(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	a := reactive.Signal(rs, 1).Named("a")
	b := reactive.MustComputed(rs, func() int { return a.Get() + 1 }).Named("b")
	e, err := reactive.Effect(rs, func() (reactive.Cleanup, error) {
		b.Get()
		return nil, nil
	})
	require.NoError(t, err)
	e.Named("e")
	reactive.Signal(rs, 0).Named("unrelated")

	names := []string{}
	reactive.Walk(func(n reactive.Node) bool {
		names = append(names, n.Name())
		return true
	}, b)
	assert.Equal(t, []string{"b", "a", "e"}, names)

	count := 0
	reactive.Walk(func(reactive.Node) bool {
		count++
		return false
	}, a, b)
	assert.Equal(t, 1, count)
}

func TestReset(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	a := reactive.Signal(rs, 0)

	runs := 0
	_, err := reactive.Effect(rs, func() (reactive.Cleanup, error) {
		a.Get()
		runs++
		return nil, nil
	})
	require.NoError(t, err)

	rs.StartBatch()
	a.Set(1)
	rs.Reset()

	assert.Zero(t, rs.BatchDepth())
	assert.False(t, rs.IsTracking())
	assert.Equal(t, 1, runs)

	require.NoError(t, a.Set(2))
	assert.Equal(t, 2, runs)
}

func TestDefaultIsPerGoroutine(t *testing.T) {
	reactive.ResetDefault()
	t.Cleanup(reactive.ResetDefault)

	rs := reactive.Default()
	assert.Same(t, rs, reactive.Default())

	other := make(chan *reactive.ReactiveSystem)
	go func() {
		defer reactive.ResetDefault()
		other <- reactive.Default()
	}()
	assert.NotSame(t, rs, <-other)

	reactive.ResetDefault()
	assert.NotSame(t, rs, reactive.Default())
}

func TestNodeKindString(t *testing.T) {
	assert.Equal(t, "signal", reactive.KindSignal.String())
	assert.Equal(t, "computed", reactive.KindComputed.String())
	assert.Equal(t, "effect", reactive.KindEffect.String())
}
