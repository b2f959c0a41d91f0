package reactive_test

import (
	"errors"
	"testing"

	"github.com/delaneyj/cascade/reactive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchCollapsesWrites(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	a := reactive.Signal(rs, 0)

	seen := []int{}
	_, err := reactive.Effect(rs, func() (reactive.Cleanup, error) {
		seen = append(seen, a.Get())
		return nil, nil
	})
	require.NoError(t, err)

	err = reactive.BatchVoid(rs, func() {
		require.NoError(t, a.Set(1))
		require.NoError(t, a.Set(2))
		assert.True(t, rs.IsBatching())
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, seen)
	assert.False(t, rs.IsBatching())
}

func TestBatchRecomputesComputedOnce(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	a := reactive.Signal(rs, 1)
	b := reactive.Signal(rs, 2)

	calls := 0
	sum := reactive.MustComputed(rs, func() int {
		calls++
		return a.Get() + b.Get()
	})
	assert.Equal(t, 3, sum.Get())

	err := reactive.BatchVoid(rs, func() {
		a.Set(10)
		b.Set(20)
		a.Set(11)
	})
	require.NoError(t, err)
	assert.Equal(t, 31, sum.Get())
	assert.Equal(t, 2, calls)
}

func TestBatchReturnsResult(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	a := reactive.Signal(rs, 1)

	v, err := reactive.Batch(rs, func() (int, error) {
		return 42, a.Set(2)
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	errNope := errors.New("nope")
	_, err = reactive.Batch(rs, func() (string, error) {
		return "", errNope
	})
	require.ErrorIs(t, err, errNope)
	assert.Zero(t, rs.BatchDepth())
}

func TestBatchNested(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	a := reactive.Signal(rs, 0)

	runs := 0
	_, err := reactive.Effect(rs, func() (reactive.Cleanup, error) {
		a.Get()
		runs++
		return nil, nil
	})
	require.NoError(t, err)

	err = reactive.BatchVoid(rs, func() {
		a.Set(1)
		inner := reactive.BatchVoid(rs, func() {
			assert.Equal(t, 2, rs.BatchDepth())
			a.Set(2)
		})
		assert.NoError(t, inner)
		assert.Equal(t, 1, runs)
		a.Set(3)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
}

func TestBatchManual(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	a := reactive.Signal(rs, 0)

	seen := []int{}
	_, err := reactive.Effect(rs, func() (reactive.Cleanup, error) {
		seen = append(seen, a.Get())
		return nil, nil
	})
	require.NoError(t, err)

	rs.StartBatch()
	rs.StartBatch()
	a.Set(1)
	require.NoError(t, rs.EndBatch())
	assert.Equal(t, []int{0}, seen)
	require.NoError(t, rs.EndBatch())
	assert.Equal(t, []int{0, 1}, seen)

	// unbalanced EndBatch is a no-op
	require.NoError(t, rs.EndBatch())
	assert.Zero(t, rs.BatchDepth())
}

func TestBatchPanicResetsDepth(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	a := reactive.Signal(rs, 0)

	seen := []int{}
	_, err := reactive.Effect(rs, func() (reactive.Cleanup, error) {
		seen = append(seen, a.Get())
		return nil, nil
	})
	require.NoError(t, err)

	err = reactive.BatchVoid(rs, func() {
		a.Set(5)
		panic("half way")
	})
	var pe *reactive.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Zero(t, rs.BatchDepth())
	// writes made before the panic are still committed
	assert.Equal(t, []int{0, 5}, seen)
}

func TestBatchSurfacesFlushFailure(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	a := reactive.Signal(rs, 0)
	errOdd := errors.New("odd")

	_, err := reactive.Effect(rs, func() (reactive.Cleanup, error) {
		if a.Get()%2 == 1 {
			return nil, errOdd
		}
		return nil, nil
	})
	require.NoError(t, err)

	err = reactive.BatchVoid(rs, func() {
		a.Set(1)
	})
	require.ErrorIs(t, err, errOdd)
	assert.Zero(t, rs.BatchDepth())
	assert.False(t, rs.IsTracking())

	require.NoError(t, a.Set(2))
}
